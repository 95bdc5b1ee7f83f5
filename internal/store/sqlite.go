// Package store provides a SQLite-backed implementation of the paho message
// store, so in-flight QoS>0 packets survive process restarts when a
// persistent session is configured.
package store

import (
	"bytes"
	"database/sql"
	"sync"

	"github.com/eclipse/paho.mqtt.golang/packets"
	_ "github.com/mattn/go-sqlite3"
)

// Logger is the minimal logging surface the store needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// schema holds serialized control packets keyed by paho's inbound/outbound
// message keys.
const schema = `
CREATE TABLE IF NOT EXISTS packets (
	key  TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
`

// SQLite persists paho control packets in a single-file database. It
// implements the paho Store interface, whose methods do not return errors;
// failures are logged and degrade to in-flight state loss, matching the
// behaviour of paho's own file store.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type SQLite struct {
	path string
	log  Logger

	mu     sync.Mutex
	db     *sql.DB
	opened bool
}

// NewSQLite creates a store for the given database path. The database is
// opened lazily by Open, which paho calls before the first connect.
func NewSQLite(path string, log Logger) *SQLite {
	return &SQLite{path: path, log: log}
}

// Open opens the database and ensures the schema exists.
func (s *SQLite) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return
	}

	// Busy timeout and WAL keep concurrent paho goroutines from tripping
	// over the file lock.
	db, err := sql.Open("sqlite3", s.path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		s.log.Error("message store open failed", "path", s.path, "error", err)
		return
	}
	if _, err := db.Exec(schema); err != nil {
		s.log.Error("message store schema failed", "path", s.path, "error", err)
		db.Close()
		return
	}

	s.db = db
	s.opened = true
	s.log.Debug("message store opened", "path", s.path)
}

// Put stores a packet under the given key, replacing any previous packet.
func (s *SQLite) Put(key string, message packets.ControlPacket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return
	}

	var buf bytes.Buffer
	if err := message.Write(&buf); err != nil {
		s.log.Warn("message store serialize failed", "key", key, "error", err)
		return
	}
	if _, err := s.db.Exec(
		"INSERT OR REPLACE INTO packets (key, data) VALUES (?, ?)",
		key, buf.Bytes(),
	); err != nil {
		s.log.Warn("message store put failed", "key", key, "error", err)
	}
}

// Get returns the packet stored under key, or nil if absent or unreadable.
func (s *SQLite) Get(key string) packets.ControlPacket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}

	var data []byte
	err := s.db.QueryRow("SELECT data FROM packets WHERE key = ?", key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		s.log.Warn("message store get failed", "key", key, "error", err)
		return nil
	}

	packet, err := packets.ReadPacket(bytes.NewReader(data))
	if err != nil {
		s.log.Warn("message store decode failed", "key", key, "error", err)
		return nil
	}
	return packet
}

// All returns the keys of all stored packets.
func (s *SQLite) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}

	rows, err := s.db.Query("SELECT key FROM packets ORDER BY key")
	if err != nil {
		s.log.Warn("message store list failed", "error", err)
		return nil
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			s.log.Warn("message store list failed", "error", err)
			return keys
		}
		keys = append(keys, key)
	}
	return keys
}

// Del removes the packet stored under key, if any.
func (s *SQLite) Del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return
	}
	if _, err := s.db.Exec("DELETE FROM packets WHERE key = ?", key); err != nil {
		s.log.Warn("message store delete failed", "key", key, "error", err)
	}
}

// Close closes the database. The store can be reopened with Open.
func (s *SQLite) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return
	}
	if err := s.db.Close(); err != nil {
		s.log.Warn("message store close failed", "error", err)
	}
	s.db = nil
	s.opened = false
}

// Reset discards all stored packets.
func (s *SQLite) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return
	}
	if _, err := s.db.Exec("DELETE FROM packets"); err != nil {
		s.log.Warn("message store reset failed", "error", err)
	}
}
