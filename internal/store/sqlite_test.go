package store

import (
	"path/filepath"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

var _ pahomqtt.Store = (*SQLite)(nil)

type testLogger struct{ t *testing.T }

func (l testLogger) Debug(msg string, args ...any) { l.t.Logf("DEBUG %s %v", msg, args) }
func (l testLogger) Info(msg string, args ...any)  { l.t.Logf("INFO %s %v", msg, args) }
func (l testLogger) Warn(msg string, args ...any)  { l.t.Logf("WARN %s %v", msg, args) }
func (l testLogger) Error(msg string, args ...any) { l.t.Logf("ERROR %s %v", msg, args) }

func testStore(t *testing.T) *SQLite {
	t.Helper()
	s := NewSQLite(filepath.Join(t.TempDir(), "session.db"), testLogger{t})
	s.Open()
	t.Cleanup(s.Close)
	return s
}

func testPublishPacket(topic string, id uint16) *packets.PublishPacket {
	p := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	p.TopicName = topic
	p.Qos = 1
	p.MessageID = id
	p.Payload = []byte(`{"on":true}`)
	return p
}

func TestPutGetRoundtrip(t *testing.T) {
	s := testStore(t)

	s.Put("o.1", testPublishPacket("demo/switch", 1))

	got := s.Get("o.1")
	if got == nil {
		t.Fatal("Get() = nil, want stored packet")
	}
	pub, ok := got.(*packets.PublishPacket)
	if !ok {
		t.Fatalf("Get() returned %T, want *packets.PublishPacket", got)
	}
	if pub.TopicName != "demo/switch" || pub.MessageID != 1 {
		t.Errorf("Get() = topic %q id %d, want demo/switch 1", pub.TopicName, pub.MessageID)
	}
	if string(pub.Payload) != `{"on":true}` {
		t.Errorf("Get() payload = %q", pub.Payload)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := testStore(t)
	if got := s.Get("o.404"); got != nil {
		t.Errorf("Get() = %v, want nil for missing key", got)
	}
}

func TestPutReplaces(t *testing.T) {
	s := testStore(t)

	s.Put("o.1", testPublishPacket("first", 1))
	s.Put("o.1", testPublishPacket("second", 1))

	pub := s.Get("o.1").(*packets.PublishPacket)
	if pub.TopicName != "second" {
		t.Errorf("Get() topic = %q, want replacement", pub.TopicName)
	}
}

func TestAllAndDel(t *testing.T) {
	s := testStore(t)

	s.Put("i.1", testPublishPacket("a", 1))
	s.Put("o.2", testPublishPacket("b", 2))

	keys := s.All()
	if len(keys) != 2 {
		t.Fatalf("All() = %v, want 2 keys", keys)
	}

	s.Del("i.1")
	keys = s.All()
	if len(keys) != 1 || keys[0] != "o.2" {
		t.Errorf("All() after Del = %v, want [o.2]", keys)
	}
}

func TestReset(t *testing.T) {
	s := testStore(t)

	s.Put("o.1", testPublishPacket("a", 1))
	s.Put("o.2", testPublishPacket("b", 2))
	s.Reset()

	if keys := s.All(); len(keys) != 0 {
		t.Errorf("All() after Reset = %v, want empty", keys)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	s := NewSQLite(path, testLogger{t})
	s.Open()
	s.Put("o.7", testPublishPacket("demo/persist", 7))
	s.Close()

	reopened := NewSQLite(path, testLogger{t})
	reopened.Open()
	defer reopened.Close()

	got := reopened.Get("o.7")
	if got == nil {
		t.Fatal("Get() after reopen = nil, want persisted packet")
	}
	if pub := got.(*packets.PublishPacket); pub.TopicName != "demo/persist" {
		t.Errorf("Get() topic = %q, want demo/persist", pub.TopicName)
	}
}
