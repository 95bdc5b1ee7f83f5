package jmqtt

import (
	"errors"
	"fmt"
)

// Sentinel errors for jmqtt operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when an operation requires a live
	// connection but the Connection is not in the Connected state.
	ErrNotConnected = errors.New("jmqtt: not connected")

	// ErrClosed is returned when an operation is attempted on a Connection
	// that has been closed. Close() itself is idempotent and never returns it.
	ErrClosed = errors.New("jmqtt: connection closed")

	// ErrAlreadyConnected is returned when Connect is called on a Connection
	// that is already connecting or connected.
	ErrAlreadyConnected = errors.New("jmqtt: already connected")

	// ErrInvalidTopic is returned when a publish topic is empty or contains
	// wildcard characters.
	ErrInvalidTopic = errors.New("jmqtt: invalid topic")

	// ErrInvalidFilter is returned when a subscription topic filter is
	// malformed.
	ErrInvalidFilter = errors.New("jmqtt: invalid topic filter")

	// ErrPayloadTooLarge is returned when a publish payload exceeds the
	// maximum payload size.
	ErrPayloadTooLarge = errors.New("jmqtt: payload too large")

	// ErrInvalidQoS is returned when a QoS value outside 0..2 is given.
	ErrInvalidQoS = errors.New("jmqtt: invalid qos")
)

var (
	errNilHandler = errors.New("jmqtt: nil message handler")
)

// ConfigError reports an invalid builder input. It is recorded by the setter
// that received the bad value and surfaced by Err(), Build() or FastBuild().
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("jmqtt: invalid %s: %s", e.Field, e.Reason)
}

// ConnectionError reports a transport, authentication or TLS failure while
// establishing or tearing down a connection. It wraps the underlying error.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("jmqtt: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PublishError reports a failed publish: attempted outside the Connected
// state, rejected by the transport, or timed out waiting for acknowledgement.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("jmqtt: publish %q: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// SubscriptionError reports a failed subscribe or unsubscribe, including
// malformed topic filters.
type SubscriptionError struct {
	Filter string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("jmqtt: subscription %q: %v", e.Filter, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// DecodeError reports that a message accessor could not interpret the payload
// in the requested form. It is local to the accessor call; message dispatch
// is never affected.
type DecodeError struct {
	Form string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("jmqtt: decode as %s: %v", e.Form, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
