package jmqtt

import (
	"context"
	"sync"

	"github.com/Dev-CorliJoni/jmqtt/internal/topics"
	"github.com/Dev-CorliJoni/jmqtt/internal/transport"
)

// MessageHandler consumes messages delivered for a subscription. Handlers
// run sequentially on the client's inbound path, so per-filter ordering is
// preserved; long work belongs in the handler's own goroutine.
type MessageHandler func(*Message)

// SubscribeOption adjusts a single subscription. The v5-only options are
// silently ignored under v3.1.1.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	noLocal           bool
	retainAsPublished bool
	retainHandling    RetainHandling
}

// WithNoLocal asks the broker not to echo the client's own publishes back
// on this subscription (v5 only).
func WithNoLocal() SubscribeOption {
	return func(o *subscribeOptions) { o.noLocal = true }
}

// WithRetainAsPublished keeps the retain flag of forwarded messages as the
// publisher set it (v5 only).
func WithRetainAsPublished() SubscribeOption {
	return func(o *subscribeOptions) { o.retainAsPublished = true }
}

// WithRetainHandling controls whether the broker sends retained messages on
// subscribe (v5 only).
func WithRetainHandling(h RetainHandling) SubscribeOption {
	return func(o *subscribeOptions) { o.retainHandling = h }
}

// subscription is a router entry, kept in registration order so reconnects
// restore filters the way they were added.
type subscription struct {
	filter  string
	qos     QoS
	handler MessageHandler
	opts    subscribeOptions
}

// router matches inbound topics against registered filters and dispatches
// to their handlers.
type router struct {
	mu     sync.Mutex
	subs   []*subscription
	logger routerLogger
}

type routerLogger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

func newRouter(logger routerLogger) *router {
	return &router{logger: logger}
}

func (r *router) add(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.subs {
		if existing.filter == sub.filter {
			r.subs[i] = sub
			return
		}
	}
	r.subs = append(r.subs, sub)
}

func (r *router) remove(filter string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sub := range r.subs {
		if sub.filter == filter {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

func (r *router) snapshot() []*subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*subscription(nil), r.subs...)
}

// route delivers msg to every matching handler. A handler panic is logged
// and dispatch continues; one bad handler must not stall the inbound path.
func (r *router) route(msg *Message) {
	matched := false
	for _, sub := range r.snapshot() {
		if !topics.Match(sub.filter, msg.Topic()) {
			continue
		}
		matched = true
		r.safeDispatch(sub, msg)
	}
	if !matched {
		r.logger.Debug("message without subscriber dropped", "topic", msg.Topic())
	}
}

func (r *router) safeDispatch(sub *subscription, msg *Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("message handler panicked",
				"filter", sub.filter,
				"topic", msg.Topic(),
				"panic", rec,
			)
		}
	}()
	sub.handler(msg)
}

// Subscribe registers handler for all topics matching filter and sends the
// subscription to the broker. Re-subscribing an existing filter replaces
// its handler. Subscriptions survive auto-reconnect; they are replayed in
// registration order when the session comes back.
func (c *Connection) Subscribe(ctx context.Context, filter string, qos QoS, handler MessageHandler, opts ...SubscribeOption) error {
	if err := topics.ValidateFilter(filter); err != nil {
		return &SubscriptionError{Filter: filter, Err: err}
	}
	if !qos.Valid() {
		return &SubscriptionError{Filter: filter, Err: ErrInvalidQoS}
	}
	if handler == nil {
		return &SubscriptionError{Filter: filter, Err: errNilHandler}
	}
	if c.State() != StateConnected {
		return &SubscriptionError{Filter: filter, Err: ErrNotConnected}
	}

	var so subscribeOptions
	for _, opt := range opts {
		opt(&so)
	}

	sub := &subscription{filter: filter, qos: qos, handler: handler, opts: so}
	if err := c.tr.Subscribe(ctx, transportSubscription(sub)); err != nil {
		return &SubscriptionError{Filter: filter, Err: err}
	}
	c.router.add(sub)
	c.logger.Debug("subscribed", "filter", filter, "qos", byte(qos))
	return nil
}

// Unsubscribe removes the given filters from the broker and the local
// router. Unknown filters are not an error.
func (c *Connection) Unsubscribe(ctx context.Context, filters ...string) error {
	if len(filters) == 0 {
		return nil
	}
	for _, filter := range filters {
		if err := topics.ValidateFilter(filter); err != nil {
			return &SubscriptionError{Filter: filter, Err: err}
		}
	}
	if c.State() != StateConnected {
		return &SubscriptionError{Filter: filters[0], Err: ErrNotConnected}
	}

	if err := c.tr.Unsubscribe(ctx, filters...); err != nil {
		return &SubscriptionError{Filter: filters[0], Err: err}
	}
	for _, filter := range filters {
		c.router.remove(filter)
	}
	c.logger.Debug("unsubscribed", "filters", filters)
	return nil
}

// dispatch is the transport's inbound message callback.
func (c *Connection) dispatch(msg transport.Message) {
	c.router.route(NewMessage(msg.Topic, msg.Payload, QoS(msg.QoS), msg.Retain, msg.Properties))
}

// restoreSubscriptions replays the router's filters after a reconnect. The
// v3.1.1 client resumes subscriptions itself, but replaying is harmless
// there and required under v5, where session state may have expired.
func (c *Connection) restoreSubscriptions() {
	ctx, cancel := context.WithTimeout(context.Background(), availabilityTimeout)
	defer cancel()
	for _, sub := range c.router.snapshot() {
		if err := c.tr.Subscribe(ctx, transportSubscription(sub)); err != nil {
			c.logger.Warn("restoring subscription failed", "filter", sub.filter, "error", err)
		}
	}
}

func transportSubscription(sub *subscription) transport.Subscription {
	return transport.Subscription{
		Filter:            sub.filter,
		QoS:               byte(sub.qos),
		NoLocal:           sub.opts.noLocal,
		RetainAsPublished: sub.opts.retainAsPublished,
		RetainHandling:    byte(sub.opts.retainHandling),
	}
}
