// Package transport defines the narrow port through which jmqtt drives an
// underlying native MQTT client, and provides adapters for
// eclipse/paho.mqtt.golang (v3.1.1) and eclipse/paho.golang (v5).
//
// The port deliberately excludes protocol machinery: packet framing, QoS
// retry state and reconnect timing all belong to the native clients. jmqtt
// only hands them configuration and reacts to their events.
package transport

import (
	"context"
	"crypto/tls"
	"time"
)

// Logger is the minimal logging surface the adapters need. The root
// package's Logger satisfies it structurally.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Will is a Last Will and Testament registration.
type Will struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Reconnect bounds the native client's reconnect backoff.
type Reconnect struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Settings is the pre-resolved connection configuration handed to an
// adapter at construction time. The adapter must not connect until
// Connect is called.
type Settings struct {
	Host           string
	Port           int
	ClientID       string
	KeepAlive      time.Duration
	Username       string
	Password       string
	CleanSession   bool
	SessionExpiry  time.Duration
	TLS            *tls.Config // nil = plaintext
	Will           *Will
	Reconnect      *Reconnect // nil = no auto-reconnect
	ConnectTimeout time.Duration

	// StorePath enables a durable packet store for in-flight QoS>0 state
	// (v3 transport only; v5 session state lives broker-side).
	StorePath string

	Logger Logger
}

// ConnectInfo carries transport-level metadata for a successful connect.
// ReasonCode and Properties are populated under MQTT v5 only.
type ConnectInfo struct {
	SessionPresent bool
	ReasonCode     byte
	Properties     map[string]string
}

// Message is a raw inbound publish delivered by the native client.
// Properties carries MQTT v5 user properties and is nil under v3.
type Message struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retain     bool
	Properties map[string]string
}

// Events are the callbacks an adapter fires from its network loop. All
// fields must be non-nil.
type Events struct {
	// OnUp fires after every successful connect, initial or reconnect.
	OnUp func(ConnectInfo)

	// OnDown fires when the connection is lost for any reason other than a
	// deliberate local disconnect. ReasonCode is v5-only.
	OnDown func(err error, reasonCode byte)

	// OnMessage fires for every inbound publish.
	OnMessage func(Message)
}

// Publish is an outbound publish request. When Wait is set the call blocks
// until the broker acknowledges delivery per the QoS level (no wait at QoS
// 0); otherwise delivery outcome is reported through the logger only.
type Publish struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retain     bool
	Wait       bool
	Properties map[string]string
}

// Subscription is a subscribe request. NoLocal, RetainAsPublished and
// RetainHandling are honoured by the v5 adapter and ignored by v3.
type Subscription struct {
	Filter            string
	QoS               byte
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    byte
}

// Transport is the underlying-client port.
type Transport interface {
	// Connect establishes the network connection, blocking until the broker
	// accepts it or ctx is done. Events.OnUp has completed before Connect
	// returns.
	Connect(ctx context.Context) error

	// Disconnect performs a graceful protocol disconnect. It does not fire
	// Events.OnDown.
	Disconnect(ctx context.Context) error

	// Close stops the network loop and releases resources. Idempotent.
	Close() error

	Publish(ctx context.Context, p Publish) error
	Subscribe(ctx context.Context, s Subscription) error
	Unsubscribe(ctx context.Context, filters ...string) error
}
