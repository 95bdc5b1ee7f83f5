package jmqtt

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors a YAML connection description. It is the declarative
// counterpart to the Builder: load it, tweak it if needed, and Builder()
// turns it into a chain with the same validation the setters apply.
type FileConfig struct {
	Broker       BrokerFile       `yaml:"broker"`
	Auth         AuthFile         `yaml:"auth"`
	App          AppFile          `yaml:"app"`
	Protocol     string           `yaml:"protocol"`
	KeepAlive    int              `yaml:"keepalive"`
	Session      SessionFile      `yaml:"session"`
	Availability AvailabilityFile `yaml:"availability"`
	LastWill     LastWillFile     `yaml:"last_will"`
	Reconnect    ReconnectFile    `yaml:"reconnect"`
}

// BrokerFile contains broker endpoint settings.
type BrokerFile struct {
	Host string  `yaml:"host"`
	Port int     `yaml:"port"`
	TLS  TLSFile `yaml:"tls"`
}

// TLSFile contains transport security settings.
type TLSFile struct {
	Enabled  bool   `yaml:"enabled"`
	CAFile   string `yaml:"ca_file"`
	Insecure bool   `yaml:"insecure"`
}

// AuthFile contains broker credentials.
type AuthFile struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AppFile identifies the application for client-ID derivation.
type AppFile struct {
	Name       string `yaml:"name"`
	InstanceID string `yaml:"instance_id"`
}

// SessionFile contains session persistence settings.
type SessionFile struct {
	Persistent bool   `yaml:"persistent"`
	StorePath  string `yaml:"store_path"`
}

// AvailabilityFile contains availability topic settings.
type AvailabilityFile struct {
	Topic          string `yaml:"topic"`
	PayloadOnline  string `yaml:"payload_online"`
	PayloadOffline string `yaml:"payload_offline"`
	QoS            int    `yaml:"qos"`
	Retain         bool   `yaml:"retain"`
}

// LastWillFile contains Last Will settings, used only when no availability
// topic is configured.
type LastWillFile struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     int    `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// ReconnectFile contains auto-reconnect settings, delays in seconds.
type ReconnectFile struct {
	Enabled  bool `yaml:"enabled"`
	MinDelay int  `yaml:"min_delay"`
	MaxDelay int  `yaml:"max_delay"`
}

// LoadFile reads a connection description from a YAML file.
//
// The loading order is:
//  1. Default values
//  2. YAML file values
//  3. A .env file next to the working directory, if present
//  4. JMQTT_* environment variables
//
// Environment variables follow the pattern JMQTT_SECTION_KEY, for example
// JMQTT_BROKER_HOST or JMQTT_AUTH_PASSWORD. Credentials belong in the
// environment, not in the YAML file.
func LoadFile(path string) (*FileConfig, error) {
	fc := defaultFileConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}
	applyEnvOverrides(fc)

	return fc, nil
}

func defaultFileConfig() *FileConfig {
	return &FileConfig{
		Broker: BrokerFile{
			Host: "localhost",
			Port: DefaultPort,
		},
		Protocol:  "3.1.1",
		KeepAlive: int(DefaultKeepAlive / time.Second),
		Reconnect: ReconnectFile{
			MinDelay: 1,
			MaxDelay: 60,
		},
	}
}

// applyEnvOverrides applies JMQTT_* environment variables on top of the
// file values.
func applyEnvOverrides(fc *FileConfig) {
	if v := os.Getenv("JMQTT_BROKER_HOST"); v != "" {
		fc.Broker.Host = v
	}
	if v := os.Getenv("JMQTT_BROKER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			fc.Broker.Port = port
		}
	}
	if v := os.Getenv("JMQTT_AUTH_USERNAME"); v != "" {
		fc.Auth.Username = v
	}
	if v := os.Getenv("JMQTT_AUTH_PASSWORD"); v != "" {
		fc.Auth.Password = v
	}
	if v := os.Getenv("JMQTT_APP_NAME"); v != "" {
		fc.App.Name = v
	}
	if v := os.Getenv("JMQTT_APP_INSTANCE_ID"); v != "" {
		fc.App.InstanceID = v
	}
}

// Builder turns the file values into a builder chain. Invalid values fail
// through the builder's own validation, so YAML and code paths report the
// same errors.
func (fc *FileConfig) Builder() (*Builder, error) {
	var b *Builder
	switch fc.Protocol {
	case "", "3.1.1", "3":
		b = NewV3Builder(fc.Broker.Host, fc.App.Name)
	case "5":
		b = NewV5Builder(fc.Broker.Host, fc.App.Name)
	default:
		return nil, &ConfigError{Field: "protocol", Reason: fmt.Sprintf("unknown version %q", fc.Protocol)}
	}

	if fc.Broker.Port != 0 {
		b.Port(fc.Broker.Port)
	}
	if fc.KeepAlive > 0 {
		b.KeepAlive(time.Duration(fc.KeepAlive) * time.Second)
	}
	if fc.Auth.Username != "" {
		b.Login(fc.Auth.Username, fc.Auth.Password)
	}
	if fc.Broker.TLS.Enabled {
		if fc.Broker.TLS.CAFile != "" {
			b.OwnTLS(fc.Broker.TLS.CAFile, fc.Broker.TLS.Insecure)
		} else {
			b.TLS(fc.Broker.TLS.Insecure)
		}
	}
	if fc.App.InstanceID != "" {
		b.InstanceID(fc.App.InstanceID)
	}
	if fc.Availability.Topic != "" {
		b.Availability(
			fc.Availability.Topic,
			fc.Availability.PayloadOnline,
			fc.Availability.PayloadOffline,
			QoS(fc.Availability.QoS),
			fc.Availability.Retain,
		)
	}
	if fc.LastWill.Topic != "" {
		b.LastWill(fc.LastWill.Topic, fc.LastWill.Payload, QoS(fc.LastWill.QoS), fc.LastWill.Retain)
	}
	if fc.Reconnect.Enabled {
		b.AutoReconnect(
			time.Duration(fc.Reconnect.MinDelay)*time.Second,
			time.Duration(fc.Reconnect.MaxDelay)*time.Second,
		)
	}
	if fc.Session.Persistent {
		b.PersistentSession(true)
	}
	if fc.Session.StorePath != "" {
		b.MessageStore(fc.Session.StorePath)
	}

	if err := b.Err(); err != nil {
		return nil, err
	}
	return b, nil
}
