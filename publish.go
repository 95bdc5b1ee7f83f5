package jmqtt

import (
	"context"
	"time"

	"github.com/Dev-CorliJoni/jmqtt/internal/topics"
	"github.com/Dev-CorliJoni/jmqtt/internal/transport"
)

// maxPayloadSize caps outgoing payloads. Brokers commonly reject larger
// packets anyway; failing locally gives a clearer error.
const maxPayloadSize = 1 << 20

// defaultPublishWait bounds an acknowledged publish when the caller's
// context carries no deadline.
const defaultPublishWait = 5 * time.Second

// PublishOption adjusts a single publish.
type PublishOption func(*publishOptions)

type publishOptions struct {
	wait       bool
	properties map[string]string
}

// WithWait makes Publish block until the broker acknowledges the message
// (QoS 1/2). Without it, QoS>0 publishes are handed to the client's
// in-flight machinery and failures are logged instead of returned.
func WithWait() PublishOption {
	return func(o *publishOptions) { o.wait = true }
}

// WithUserProperties attaches MQTT v5 user properties. Ignored under
// v3.1.1, which has no place for them on the wire.
func WithUserProperties(props map[string]string) PublishOption {
	return func(o *publishOptions) { o.properties = props }
}

// Publish sends payload to topic. The topic must be a concrete name, the
// payload at most 1 MiB, and the connection established; violations return
// a PublishError identifying the topic.
func (c *Connection) Publish(ctx context.Context, topic string, payload []byte, qos QoS, retain bool, opts ...PublishOption) error {
	if err := topics.ValidateName(topic); err != nil {
		return &PublishError{Topic: topic, Err: err}
	}
	if !qos.Valid() {
		return &PublishError{Topic: topic, Err: ErrInvalidQoS}
	}
	if len(payload) > maxPayloadSize {
		return &PublishError{Topic: topic, Err: ErrPayloadTooLarge}
	}
	if c.State() != StateConnected {
		return &PublishError{Topic: topic, Err: ErrNotConnected}
	}

	var po publishOptions
	for _, opt := range opts {
		opt(&po)
	}

	if po.wait {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultPublishWait)
			defer cancel()
		}
	}

	err := c.tr.Publish(ctx, transport.Publish{
		Topic:      topic,
		Payload:    payload,
		QoS:        byte(qos),
		Retain:     retain,
		Wait:       po.wait,
		Properties: po.properties,
	})
	if err != nil {
		return &PublishError{Topic: topic, Err: err}
	}
	return nil
}

// PublishString is Publish for text payloads.
func (c *Connection) PublishString(ctx context.Context, topic, payload string, qos QoS, retain bool, opts ...PublishOption) error {
	return c.Publish(ctx, topic, []byte(payload), qos, retain, opts...)
}
