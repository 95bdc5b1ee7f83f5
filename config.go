package jmqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// Configuration defaults.
const (
	// DefaultPort is the standard plaintext MQTT port.
	DefaultPort = 1883

	// DefaultKeepAlive is the PINGREQ heartbeat interval.
	DefaultKeepAlive = 60 * time.Second

	// DefaultConnectTimeout is the maximum time to wait for a blocking
	// connect.
	DefaultConnectTimeout = 10 * time.Second

	// persistentSessionExpiry is the broker-side session lifetime applied
	// when a persistent session is requested under MQTT v5.
	persistentSessionExpiry = 3600 * time.Second
)

// TLSMode selects how the transport is secured.
type TLSMode int

const (
	// TLSNone uses a plaintext connection.
	TLSNone TLSMode = iota

	// TLSSystem uses TLS with the system trust store.
	TLSSystem

	// TLSCustomCA uses TLS with a caller-provided CA bundle.
	TLSCustomCA
)

// TLSSettings describes the transport security configuration.
type TLSSettings struct {
	Mode   TLSMode
	CAFile string

	// AllowInsecure disables certificate verification. Never use outside
	// of local development.
	AllowInsecure bool
}

// LastWill is a Last Will and Testament registration: the broker publishes
// Payload on Topic if the client disconnects without a clean closure.
type LastWill struct {
	Topic   string
	Payload string
	QoS     QoS
	Retain  bool
}

// Availability configures online/offline presence announcements. At build
// time it also becomes the effective last will (PayloadOffline), overriding
// any explicitly configured LastWill regardless of setter call order.
type Availability struct {
	Topic          string
	PayloadOnline  string
	PayloadOffline string
	QoS            QoS
	Retain         bool
}

// ReconnectPolicy bounds the underlying client's reconnect backoff. The
// timing itself belongs to the underlying client.
type ReconnectPolicy struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Config is the immutable configuration snapshot produced by Build(). It is
// held and returned by value, so a built Connection's configuration cannot
// be mutated after the fact.
type Config struct {
	Host     string
	Port     int
	Protocol ProtocolVersion

	// ClientID is derived from the device fingerprint, AppName and
	// InstanceID at build time and never changes afterwards.
	ClientID   string
	AppName    string
	InstanceID string // "" = unset

	KeepAlive      time.Duration
	ConnectTimeout time.Duration

	Username string // "" = anonymous
	Password string

	TLS TLSSettings

	// Will is the effective last will after availability resolution.
	Will    LastWill
	HasWill bool

	Availability    Availability
	HasAvailability bool

	Reconnect     ReconnectPolicy
	AutoReconnect bool

	CleanSession  bool
	SessionExpiry time.Duration

	// StorePath enables a durable packet store for in-flight QoS>0 state
	// (v3 only). "" keeps paho's in-memory store.
	StorePath string
}

// tlsConfig materialises the TLS settings into a *tls.Config for the
// transport, or nil for plaintext.
func (c Config) tlsConfig() (*tls.Config, error) {
	switch c.TLS.Mode {
	case TLSNone:
		return nil, nil
	case TLSSystem:
		return &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: c.TLS.AllowInsecure,
		}, nil
	case TLSCustomCA:
		pem, err := os.ReadFile(c.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca bundle %q contains no certificates", c.TLS.CAFile)
		}
		return &tls.Config{
			MinVersion:         tls.VersionTLS12,
			RootCAs:            pool,
			InsecureSkipVerify: c.TLS.AllowInsecure,
		}, nil
	default:
		return nil, fmt.Errorf("unknown tls mode %d", c.TLS.Mode)
	}
}
