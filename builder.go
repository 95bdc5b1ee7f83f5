package jmqtt

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Dev-CorliJoni/jmqtt/identity"
	"github.com/Dev-CorliJoni/jmqtt/internal/topics"
	"github.com/Dev-CorliJoni/jmqtt/internal/transport"
)

// Builder accumulates connection options through chained calls and produces
// an immutable Config snapshot wrapped in a Connection.
//
// Each setter validates its input immediately; the first invalid input is
// recorded and surfaced by Err(), Build() and FastBuild(). Later setters
// after an error are no-ops, so a chain fails with the error closest to its
// cause.
//
// The MQTT client ID is always generated from device facts plus app
// identity at build time; it is intentionally not settable. If the same app
// can run more than once against the same broker, set InstanceID to avoid
// broker disconnect storms from duplicate client identifiers.
//
// Example:
//
//	conn, err := jmqtt.NewV3Builder("broker.local", "sensor-hub").
//	    Login("sensors", "secret").
//	    Availability("sensor-hub/status", "online", "offline", jmqtt.AtLeastOnce, true).
//	    AutoReconnect(time.Second, 30*time.Second).
//	    Build()
type Builder struct {
	cfg    Config
	logger Logger
	err    error

	// Test seams; production defaults collect real device facts and build
	// real paho transports.
	collectFacts func() (string, []identity.Fact)
	newTransport transportFactory
}

type transportFactory func(transport.Settings, transport.Events) (transport.Transport, error)

// NewV3Builder creates a builder for an MQTT v3.1.1 connection.
//
// appName must be stable per tool or service; it is part of the generated
// client ID. Allowed characters: letters, digits and '-'. Format validation
// happens once during Build().
func NewV3Builder(host, appName string) *Builder {
	return newBuilder(host, appName, V311)
}

// NewV5Builder creates a builder for an MQTT v5 connection.
func NewV5Builder(host, appName string) *Builder {
	return newBuilder(host, appName, V5)
}

func newBuilder(host, appName string, protocol ProtocolVersion) *Builder {
	b := &Builder{
		cfg: Config{
			Host:           host,
			Port:           DefaultPort,
			Protocol:       protocol,
			AppName:        appName,
			KeepAlive:      DefaultKeepAlive,
			ConnectTimeout: DefaultConnectTimeout,
			CleanSession:   true,
		},
		logger:       NopLogger(),
		collectFacts: identity.CollectFacts,
	}
	b.newTransport = b.defaultTransport
	if host == "" {
		b.fail("host", "must not be empty")
	}
	return b
}

func (b *Builder) defaultTransport(s transport.Settings, ev transport.Events) (transport.Transport, error) {
	if b.cfg.Protocol == V5 {
		return transport.NewV5(s, ev)
	}
	return transport.NewV3(s, ev)
}

// fail records the first configuration error.
func (b *Builder) fail(field, format string, args ...any) *Builder {
	if b.err == nil {
		b.err = &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
	}
	return b
}

// Err returns the first configuration error recorded by a setter, or nil.
func (b *Builder) Err() error { return b.err }

// Port sets the broker port. Default: 1883 (8883 is customary for TLS).
func (b *Builder) Port(port int) *Builder {
	if b.err != nil {
		return b
	}
	if port < 1 || port > 65535 {
		return b.fail("port", "%d outside 1..65535", port)
	}
	b.cfg.Port = port
	return b
}

// KeepAlive sets the PINGREQ heartbeat interval. Default: 60s.
func (b *Builder) KeepAlive(interval time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if interval <= 0 {
		return b.fail("keep_alive", "must be positive, got %v", interval)
	}
	b.cfg.KeepAlive = interval
	return b
}

// Login sets username/password authentication.
func (b *Builder) Login(username, password string) *Builder {
	if b.err != nil {
		return b
	}
	if username == "" {
		return b.fail("username", "must not be empty")
	}
	b.cfg.Username = username
	b.cfg.Password = password
	return b
}

// TLS enables TLS with the system trust store. allowInsecure disables
// certificate verification and must never be used outside local development.
func (b *Builder) TLS(allowInsecure bool) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.TLS = TLSSettings{Mode: TLSSystem, AllowInsecure: allowInsecure}
	return b
}

// OwnTLS enables TLS with a custom CA bundle. The bundle file must exist at
// the time of the call (fail-fast policy; the content is loaded at Build).
func (b *Builder) OwnTLS(caFile string, allowInsecure bool) *Builder {
	if b.err != nil {
		return b
	}
	if caFile == "" {
		return b.fail("ca_file", "must not be empty")
	}
	if _, err := os.Stat(caFile); err != nil {
		return b.fail("ca_file", "%q not readable: %v", caFile, err)
	}
	b.cfg.TLS = TLSSettings{Mode: TLSCustomCA, CAFile: caFile, AllowInsecure: allowInsecure}
	return b
}

// LastWill sets the Last Will and Testament. The topic must be concrete
// (no wildcards). A later Availability call overrides the will at build
// time regardless of call order.
func (b *Builder) LastWill(topic, payload string, qos QoS, retain bool) *Builder {
	if b.err != nil {
		return b
	}
	if err := topics.ValidateName(topic); err != nil {
		return b.fail("last_will.topic", "%v", err)
	}
	if !qos.Valid() {
		return b.fail("last_will.qos", "invalid qos %d", qos)
	}
	b.cfg.Will = LastWill{Topic: topic, Payload: payload, QoS: qos, Retain: retain}
	b.cfg.HasWill = true
	return b
}

// Availability configures an availability topic. On successful connect,
// payloadOnline is published to topic before any on-connect hook runs; on
// deliberate disconnect payloadOffline is published while the connection is
// still live. payloadOffline is also installed as the Last Will, so the
// broker announces unclean disconnects too.
//
// Retained availability topics are recommended so late subscribers see the
// current state immediately.
func (b *Builder) Availability(topic, payloadOnline, payloadOffline string, qos QoS, retain bool) *Builder {
	if b.err != nil {
		return b
	}
	if err := topics.ValidateName(topic); err != nil {
		return b.fail("availability.topic", "%v", err)
	}
	if !qos.Valid() {
		return b.fail("availability.qos", "invalid qos %d", qos)
	}
	b.cfg.Availability = Availability{
		Topic:          topic,
		PayloadOnline:  payloadOnline,
		PayloadOffline: payloadOffline,
		QoS:            qos,
		Retain:         retain,
	}
	b.cfg.HasAvailability = true
	return b
}

// AutoReconnect enables reconnection with backoff bounds. The backoff
// timing itself is the underlying client's; only the bounds are configured
// here.
func (b *Builder) AutoReconnect(minDelay, maxDelay time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if minDelay < 0 || maxDelay < 0 {
		return b.fail("auto_reconnect", "delays must not be negative")
	}
	if minDelay > maxDelay {
		return b.fail("auto_reconnect", "min delay %v exceeds max delay %v", minDelay, maxDelay)
	}
	b.cfg.Reconnect = ReconnectPolicy{MinDelay: minDelay, MaxDelay: maxDelay}
	b.cfg.AutoReconnect = true
	return b
}

// InstanceID sets an explicit instance ID to separate parallel instances of
// the same app. Different instance IDs produce different client IDs.
func (b *Builder) InstanceID(id string) *Builder {
	if b.err != nil {
		return b
	}
	if id == "" {
		return b.fail("instance_id", "must not be empty; omit the call to leave it unset")
	}
	b.cfg.InstanceID = id
	return b
}

// PersistentSession controls session persistence. Under v3.1.1 this toggles
// the clean-session flag; under v5 it additionally requests a broker-side
// session expiry of one hour.
func (b *Builder) PersistentSession(persistent bool) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.CleanSession = !persistent
	return b
}

// MessageStore enables a durable SQLite packet store for in-flight QoS>0
// state, so retransmission state survives process restarts. v3.1.1 only:
// under v5 the session lives broker-side and a local store has no role.
// Requires PersistentSession(true) in the same chain (either order);
// Build() rejects a store on a clean session, where the broker discards
// the matching state anyway.
func (b *Builder) MessageStore(path string) *Builder {
	if b.err != nil {
		return b
	}
	if b.cfg.Protocol == V5 {
		return b.fail("message_store", "not applicable under protocol v5")
	}
	if path == "" {
		return b.fail("message_store", "path must not be empty")
	}
	b.cfg.StorePath = path
	return b
}

// Logger injects the logging port used by the built Connection. Default is
// a no-op sink.
func (b *Builder) Logger(logger Logger) *Builder {
	if b.err != nil {
		return b
	}
	if logger == nil {
		logger = NopLogger()
	}
	b.logger = logger
	return b
}

// Build snapshots the accumulated options into an immutable Config, derives
// the client ID, constructs the underlying client (configured but not
// connected) and returns a Connection in the Built state.
//
// Build may be called repeatedly; every call re-validates the full
// configuration and returns an independent Connection with its own
// underlying client.
func (b *Builder) Build() (*Connection, error) {
	if b.err != nil {
		return nil, b.err
	}

	cfg := b.cfg

	// Checked here rather than in the setter so PersistentSession and
	// MessageStore may be chained in either order.
	if cfg.StorePath != "" && cfg.CleanSession {
		return nil, &ConfigError{Field: "message_store", Reason: "requires a persistent session"}
	}

	// Availability wins over an explicitly configured will, regardless of
	// the order the setters were called in.
	if cfg.HasAvailability {
		cfg.Will = LastWill{
			Topic:   cfg.Availability.Topic,
			Payload: cfg.Availability.PayloadOffline,
			QoS:     cfg.Availability.QoS,
			Retain:  cfg.Availability.Retain,
		}
		cfg.HasWill = true
	}

	cfg.SessionExpiry = 0
	if cfg.Protocol == V5 && !cfg.CleanSession {
		cfg.SessionExpiry = persistentSessionExpiry
	}

	serial, facts := b.collectFacts()
	fingerprint := identity.ResolveFingerprint(serial, facts)
	clientID, err := identity.DeriveClientID(fingerprint, cfg.AppName, cfg.InstanceID)
	if err != nil {
		return nil, &ConfigError{Field: "app identity", Reason: err.Error()}
	}
	cfg.ClientID = clientID

	tlsConfig, err := cfg.tlsConfig()
	if err != nil {
		return nil, &ConfigError{Field: "tls", Reason: err.Error()}
	}

	settings := transport.Settings{
		Host:           cfg.Host,
		Port:           cfg.Port,
		ClientID:       cfg.ClientID,
		KeepAlive:      cfg.KeepAlive,
		Username:       cfg.Username,
		Password:       cfg.Password,
		CleanSession:   cfg.CleanSession,
		SessionExpiry:  cfg.SessionExpiry,
		TLS:            tlsConfig,
		ConnectTimeout: cfg.ConnectTimeout,
		StorePath:      cfg.StorePath,
		Logger:         b.logger,
	}
	if cfg.HasWill {
		settings.Will = &transport.Will{
			Topic:   cfg.Will.Topic,
			Payload: []byte(cfg.Will.Payload),
			QoS:     byte(cfg.Will.QoS),
			Retain:  cfg.Will.Retain,
		}
	}
	if cfg.AutoReconnect {
		settings.Reconnect = &transport.Reconnect{
			MinDelay: cfg.Reconnect.MinDelay,
			MaxDelay: cfg.Reconnect.MaxDelay,
		}
	}

	conn := newConnection(cfg, b.logger)
	tr, err := b.newTransport(settings, conn.transportEvents())
	if err != nil {
		return nil, &ConnectionError{Op: "building transport", Err: err}
	}
	conn.tr = tr

	b.logger.Debug("connection built",
		"client_id", cfg.ClientID,
		"broker", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		"protocol", cfg.Protocol.String(),
	)
	return conn, nil
}

// FastBuild is Build followed by a blocking Connect on the same Connection.
func (b *Builder) FastBuild(ctx context.Context) (*Connection, error) {
	conn, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}
