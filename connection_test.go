package jmqtt

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Dev-CorliJoni/jmqtt/identity"
	"github.com/Dev-CorliJoni/jmqtt/internal/transport"
)

// fakeTransport implements transport.Transport in-memory and records every
// observable action in order, so tests can assert lifecycle sequencing.
type fakeTransport struct {
	mu       sync.Mutex
	events   transport.Events
	settings transport.Settings
	log      []string
	subs     map[string]transport.Subscription

	connectErr error
}

func (f *fakeTransport) record(entry string) {
	f.mu.Lock()
	f.log = append(f.log, entry)
	f.mu.Unlock()
}

func (f *fakeTransport) entries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.record("transport:connect")
	f.events.OnUp(transport.ConnectInfo{})
	return nil
}

func (f *fakeTransport) Disconnect(ctx context.Context) error {
	f.record("transport:disconnect")
	return nil
}

func (f *fakeTransport) Close() error {
	f.record("transport:close")
	return nil
}

func (f *fakeTransport) Publish(ctx context.Context, p transport.Publish) error {
	f.record("publish:" + string(p.Payload))
	return nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, s transport.Subscription) error {
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[string]transport.Subscription)
	}
	f.subs[s.Filter] = s
	f.mu.Unlock()
	f.record("subscribe:" + s.Filter)
	return nil
}

func (f *fakeTransport) Unsubscribe(ctx context.Context, filters ...string) error {
	f.mu.Lock()
	for _, filter := range filters {
		delete(f.subs, filter)
	}
	f.mu.Unlock()
	for _, filter := range filters {
		f.record("unsubscribe:" + filter)
	}
	return nil
}

// deliver injects an inbound message as the native client would.
func (f *fakeTransport) deliver(topic string, payload []byte) {
	f.events.OnMessage(transport.Message{Topic: topic, Payload: payload, QoS: 1})
}

// testBuilder returns a builder wired to a fakeTransport and fixed device
// facts, so tests are deterministic and touch no hardware or network.
func testBuilder(t *testing.T) (*Builder, *fakeTransport) {
	t.Helper()
	return testBuilderFor(t, V311)
}

func testBuilderFor(t *testing.T, protocol ProtocolVersion) (*Builder, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	b := NewV3Builder("broker.test", "test-app")
	if protocol == V5 {
		b = NewV5Builder("broker.test", "test-app")
	}
	b.collectFacts = func() (string, []identity.Fact) {
		return "SN-0001", nil
	}
	b.newTransport = func(s transport.Settings, ev transport.Events) (transport.Transport, error) {
		ft.settings = s
		ft.events = ev
		return ft, nil
	}
	return b, ft
}

func mustBuild(t *testing.T, b *Builder) *Connection {
	t.Helper()
	conn, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return conn
}

func assertSequence(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("event log = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event log = %v, want %v", got, want)
		}
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestConnectBlocksUntilHooksRan(t *testing.T) {
	b, _ := testBuilder(t)
	conn := mustBuild(t, b)

	var hookRan bool
	conn.AddOnConnect(func(*Connection, ConnectEvent) { hookRan = true })

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !hookRan {
		t.Error("on-connect hook did not run before Connect returned")
	}
	if got := conn.State(); got != StateConnected {
		t.Errorf("State() = %v, want %v", got, StateConnected)
	}
}

func TestConnectTwice(t *testing.T) {
	b, _ := testBuilder(t)
	conn := mustBuild(t, b)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	err := conn.Connect(context.Background())
	if !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}
}

func TestConnectAfterClose(t *testing.T) {
	b, _ := testBuilder(t)
	conn := mustBuild(t, b)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	err := conn.Connect(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() after Close error = %v, want ErrClosed", err)
	}
}

func TestConnectFailureRestoresBuiltState(t *testing.T) {
	b, ft := testBuilder(t)
	conn := mustBuild(t, b)
	ft.connectErr = errors.New("network unreachable")

	err := conn.Connect(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Connect() error = %v, want *ConnectionError", err)
	}
	if got := conn.State(); got != StateBuilt {
		t.Errorf("State() after failed connect = %v, want %v", got, StateBuilt)
	}
}

func TestAvailabilityPublishedBeforeConnectHooks(t *testing.T) {
	b, ft := testBuilder(t)
	b.Availability("app/status", "online", "offline", AtLeastOnce, true)
	conn := mustBuild(t, b)
	conn.AddOnConnect(func(c *Connection, _ ConnectEvent) { ft.record("hook:connect") })

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	assertSequence(t, ft.entries(), []string{
		"transport:connect",
		"publish:online",
		"hook:connect",
	})
}

func TestDisconnectOrdering(t *testing.T) {
	b, ft := testBuilder(t)
	b.Availability("app/status", "online", "offline", AtLeastOnce, true)
	conn := mustBuild(t, b)
	conn.AddBeforeDisconnect(func(*Connection) { ft.record("hook:before") })
	conn.AddOnDisconnect(func(*Connection, DisconnectEvent) { ft.record("hook:disconnect") })

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ft.mu.Lock()
	ft.log = nil
	ft.mu.Unlock()

	if err := conn.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	assertSequence(t, ft.entries(), []string{
		"hook:before",
		"publish:offline",
		"transport:disconnect",
		"hook:disconnect",
	})
	if got := conn.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}
}

func TestDisconnectWhenNotConnected(t *testing.T) {
	b, ft := testBuilder(t)
	conn := mustBuild(t, b)

	if err := conn.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() on built connection error = %v", err)
	}
	if entries := ft.entries(); len(entries) != 0 {
		t.Errorf("unexpected transport activity: %v", entries)
	}
}

func TestCloseIdempotent(t *testing.T) {
	b, _ := testBuilder(t)
	conn := mustBuild(t, b)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
	if got := conn.State(); got != StateClosed {
		t.Errorf("State() = %v, want %v", got, StateClosed)
	}
}

func TestUnexpectedDisconnectRunsHooks(t *testing.T) {
	b, ft := testBuilder(t)
	conn := mustBuild(t, b)

	var gotEvent DisconnectEvent
	conn.AddOnDisconnect(func(_ *Connection, ev DisconnectEvent) { gotEvent = ev })

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	cause := errors.New("broker went away")
	ft.events.OnDown(cause, 0)

	if !errors.Is(gotEvent.Err, cause) {
		t.Errorf("DisconnectEvent.Err = %v, want %v", gotEvent.Err, cause)
	}
	if got := conn.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}
}

func TestUnexpectedDisconnectWithAutoReconnect(t *testing.T) {
	b, ft := testBuilder(t)
	b.AutoReconnect(0, 0)
	conn := mustBuild(t, b)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ft.events.OnDown(errors.New("lost"), 0)

	if got := conn.State(); got != StateConnecting {
		t.Errorf("State() = %v, want %v", got, StateConnecting)
	}
}

func TestHookPanicDoesNotBreakLifecycle(t *testing.T) {
	b, _ := testBuilder(t)
	conn := mustBuild(t, b)

	var secondRan bool
	conn.AddOnConnect(func(*Connection, ConnectEvent) { panic("hook bug") })
	conn.AddOnConnect(func(*Connection, ConnectEvent) { secondRan = true })

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !secondRan {
		t.Error("hook after the panicking one did not run")
	}
}

func TestHookRegistrationOrder(t *testing.T) {
	b, ft := testBuilder(t)
	conn := mustBuild(t, b)
	conn.AddOnConnect(func(*Connection, ConnectEvent) { ft.record("hook:1") })
	conn.AddOnConnect(func(*Connection, ConnectEvent) { ft.record("hook:2") })
	conn.AddOnConnect(func(*Connection, ConnectEvent) { ft.record("hook:3") })

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	assertSequence(t, ft.entries(), []string{
		"transport:connect", "hook:1", "hook:2", "hook:3",
	})
}

func TestReconnectRestoresSubscriptions(t *testing.T) {
	b, ft := testBuilder(t)
	conn := mustBuild(t, b)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := conn.Subscribe(context.Background(), "demo/#", AtLeastOnce, func(*Message) {}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Simulate the native client reconnecting on its own.
	ft.events.OnUp(transport.ConnectInfo{})

	entries := ft.entries()
	if entries[len(entries)-1] != "subscribe:demo/#" {
		t.Errorf("subscription not restored after reconnect, log = %v", entries)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublishBeforeConnect(t *testing.T) {
	b, _ := testBuilder(t)
	conn := mustBuild(t, b)

	err := conn.Publish(context.Background(), "demo/topic", []byte("x"), AtLeastOnce, false)
	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("Publish() error = %v, want *PublishError", err)
	}
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected in chain", err)
	}
	if pubErr.Topic != "demo/topic" {
		t.Errorf("PublishError.Topic = %q, want %q", pubErr.Topic, "demo/topic")
	}
}

func TestPublishValidation(t *testing.T) {
	b, _ := testBuilder(t)
	conn := mustBuild(t, b)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     QoS
	}{
		{name: "wildcard topic", topic: "demo/+", payload: []byte("x"), qos: AtMostOnce},
		{name: "empty topic", topic: "", payload: []byte("x"), qos: AtMostOnce},
		{name: "invalid qos", topic: "demo/a", payload: []byte("x"), qos: QoS(3)},
		{name: "oversized payload", topic: "demo/a", payload: make([]byte, maxPayloadSize+1), qos: AtMostOnce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := conn.Publish(context.Background(), tt.topic, tt.payload, tt.qos, false)
			var pubErr *PublishError
			if !errors.As(err, &pubErr) {
				t.Errorf("Publish() error = %v, want *PublishError", err)
			}
		})
	}
}

func TestPublishString(t *testing.T) {
	b, ft := testBuilder(t)
	conn := mustBuild(t, b)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := conn.PublishString(context.Background(), "demo/a", "hello", AtMostOnce, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}
	entries := ft.entries()
	if entries[len(entries)-1] != "publish:hello" {
		t.Errorf("publish not forwarded, log = %v", entries)
	}
}

// =============================================================================
// Subscription Tests
// =============================================================================

func TestSubscribeRoutesMatchingTopics(t *testing.T) {
	b, ft := testBuilder(t)
	conn := mustBuild(t, b)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var got []string
	err := conn.Subscribe(context.Background(), "demo/#", AtLeastOnce, func(msg *Message) {
		got = append(got, msg.Topic())
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ft.deliver("demo/x", []byte("1"))
	ft.deliver("other/x", []byte("2"))
	ft.deliver("demo/deep/y", []byte("3"))

	want := []string{"demo/x", "demo/deep/y"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("delivered topics = %v, want %v", got, want)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b, ft := testBuilder(t)
	conn := mustBuild(t, b)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var count int
	if err := conn.Subscribe(context.Background(), "demo/#", AtLeastOnce, func(*Message) { count++ }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	ft.deliver("demo/x", []byte("1"))

	if err := conn.Unsubscribe(context.Background(), "demo/#"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	ft.deliver("demo/x", []byte("2"))

	if count != 1 {
		t.Errorf("handler invocations = %d, want 1", count)
	}
}

func TestSubscribeValidation(t *testing.T) {
	b, _ := testBuilder(t)
	conn := mustBuild(t, b)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tests := []struct {
		name    string
		filter  string
		qos     QoS
		handler MessageHandler
	}{
		{name: "bad wildcard", filter: "demo/#/more", qos: AtMostOnce, handler: func(*Message) {}},
		{name: "empty filter", filter: "", qos: AtMostOnce, handler: func(*Message) {}},
		{name: "invalid qos", filter: "demo/#", qos: QoS(7), handler: func(*Message) {}},
		{name: "nil handler", filter: "demo/#", qos: AtMostOnce, handler: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := conn.Subscribe(context.Background(), tt.filter, tt.qos, tt.handler)
			var subErr *SubscriptionError
			if !errors.As(err, &subErr) {
				t.Errorf("Subscribe() error = %v, want *SubscriptionError", err)
			}
		})
	}
}

func TestOverlappingFiltersDeliverOncePerHandler(t *testing.T) {
	b, ft := testBuilder(t)
	conn := mustBuild(t, b)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var exact, wildcard int
	if err := conn.Subscribe(context.Background(), "demo/a", AtLeastOnce, func(*Message) { exact++ }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := conn.Subscribe(context.Background(), "demo/#", AtLeastOnce, func(*Message) { wildcard++ }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// One inbound packet on a topic both filters match.
	ft.deliver("demo/a", []byte("x"))

	if exact != 1 || wildcard != 1 {
		t.Errorf("handler invocations = %d/%d, want exactly 1 each", exact, wildcard)
	}
}

func TestHandlerPanicDoesNotStopDispatch(t *testing.T) {
	b, ft := testBuilder(t)
	conn := mustBuild(t, b)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var delivered int
	if err := conn.Subscribe(context.Background(), "demo/a", AtMostOnce, func(*Message) { panic("handler bug") }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := conn.Subscribe(context.Background(), "demo/#", AtMostOnce, func(*Message) { delivered++ }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ft.deliver("demo/a", []byte("x"))

	if delivered != 1 {
		t.Errorf("second handler invocations = %d, want 1", delivered)
	}
}
