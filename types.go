package jmqtt

// QoS is the MQTT Quality of Service level for a publish or subscription.
type QoS byte

const (
	// AtMostOnce delivers a message at most once (fire and forget).
	AtMostOnce QoS = iota

	// AtLeastOnce guarantees delivery but may duplicate (PUBACK handshake).
	AtLeastOnce

	// ExactlyOnce guarantees exactly-once delivery (PUBREC/PUBCOMP handshake).
	ExactlyOnce
)

// Valid reports whether q is a defined QoS level.
func (q QoS) Valid() bool {
	return q <= ExactlyOnce
}

// String returns a human-readable name for the QoS level.
func (q QoS) String() string {
	switch q {
	case AtMostOnce:
		return "at-most-once"
	case AtLeastOnce:
		return "at-least-once"
	case ExactlyOnce:
		return "exactly-once"
	default:
		return "invalid"
	}
}

// RetainHandling controls delivery of retained messages at subscribe time.
// It is meaningful under MQTT v5 only; the v3 transport ignores it.
type RetainHandling byte

const (
	// SendRetainedAlways delivers retained messages on every subscribe.
	SendRetainedAlways RetainHandling = iota

	// SendRetainedIfNew delivers retained messages only if the subscription
	// did not previously exist.
	SendRetainedIfNew

	// SendRetainedNever suppresses retained message delivery at subscribe.
	SendRetainedNever
)

// ProtocolVersion selects the MQTT protocol spoken by the underlying client.
type ProtocolVersion byte

const (
	// V311 selects MQTT v3.1.1 (eclipse/paho.mqtt.golang transport).
	V311 ProtocolVersion = iota

	// V5 selects MQTT v5 (eclipse/paho.golang transport).
	V5
)

// String returns the wire-protocol version name.
func (v ProtocolVersion) String() string {
	switch v {
	case V5:
		return "5"
	default:
		return "3.1.1"
	}
}
