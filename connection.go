package jmqtt

import (
	"context"
	"sync"
	"time"

	"github.com/Dev-CorliJoni/jmqtt/internal/transport"
)

// State describes where a Connection is in its lifecycle.
type State int32

const (
	// StateBuilt is the initial state: configured, not yet connected.
	StateBuilt State = iota
	// StateConnecting covers the initial connect and reconnect attempts.
	StateConnecting
	// StateConnected means the broker session is live.
	StateConnected
	// StateDisconnecting covers a deliberate teardown in progress.
	StateDisconnecting
	// StateDisconnected means the session ended, deliberately or not.
	StateDisconnected
	// StateClosed means resources are released; the Connection is spent.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectEvent carries broker session details into on-connect hooks.
//
// SessionPresent reports whether the broker resumed an existing session.
// Under v3.1.1 the underlying client does not expose the CONNACK flag, so
// it is always false there. ReasonCode and Properties are v5-only and zero
// under v3.1.1.
type ConnectEvent struct {
	SessionPresent bool
	ReasonCode     byte
	Properties     map[string]string
}

// DisconnectEvent carries the cause of a disconnect into on-disconnect
// hooks. Err is nil for a deliberate disconnect.
type DisconnectEvent struct {
	Err        error
	ReasonCode byte
}

// ConnectHook runs after the availability online message (if configured)
// has been published on a fresh or resumed session.
type ConnectHook func(*Connection, ConnectEvent)

// BeforeDisconnectHook runs at the start of a deliberate disconnect, while
// the session is still live. Last-chance publishes go here.
type BeforeDisconnectHook func(*Connection)

// DisconnectHook runs after the session ended, whether deliberately or not.
type DisconnectHook func(*Connection, DisconnectEvent)

// availabilityTimeout bounds the online/offline publishes and the
// deliberate-disconnect teardown when the caller's context has no deadline.
const availabilityTimeout = 5 * time.Second

// Connection is a configured MQTT connection produced by Builder.Build.
// It is safe for concurrent use. A Connection is not reusable after Close.
type Connection struct {
	cfg    Config
	logger Logger
	tr     transport.Transport

	mu    sync.Mutex
	state State

	// wasUp distinguishes the first session from reconnects, which need
	// their subscriptions restored.
	wasUp bool

	hookMu           sync.Mutex
	onConnect        []ConnectHook
	beforeDisconnect []BeforeDisconnectHook
	onDisconnect     []DisconnectHook

	// closeMu serializes Disconnect and Close so the teardown sequence
	// runs at most once.
	closeMu sync.Mutex

	router *router
}

func newConnection(cfg Config, logger Logger) *Connection {
	return &Connection{
		cfg:    cfg,
		logger: logger,
		state:  StateBuilt,
		router: newRouter(logger),
	}
}

func (c *Connection) transportEvents() transport.Events {
	return transport.Events{
		OnUp:      c.handleUp,
		OnDown:    c.handleDown,
		OnMessage: c.dispatch,
	}
}

// ID returns the derived MQTT client identifier.
func (c *Connection) ID() string { return c.cfg.ClientID }

// Config returns the immutable configuration snapshot this connection was
// built from.
func (c *Connection) Config() Config { return c.cfg }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// AddOnConnect registers a hook to run after each successful connect,
// including reconnects. Hooks run sequentially in registration order.
func (c *Connection) AddOnConnect(hook ConnectHook) {
	c.hookMu.Lock()
	c.onConnect = append(c.onConnect, hook)
	c.hookMu.Unlock()
}

// AddBeforeDisconnect registers a hook to run at the start of a deliberate
// disconnect, while publishing is still possible.
func (c *Connection) AddBeforeDisconnect(hook BeforeDisconnectHook) {
	c.hookMu.Lock()
	c.beforeDisconnect = append(c.beforeDisconnect, hook)
	c.hookMu.Unlock()
}

// AddOnDisconnect registers a hook to run after any disconnect.
func (c *Connection) AddOnDisconnect(hook DisconnectHook) {
	c.hookMu.Lock()
	c.onDisconnect = append(c.onDisconnect, hook)
	c.hookMu.Unlock()
}

// Connect establishes the broker session and blocks until the availability
// online message is published and all on-connect hooks have run, or until
// ctx expires.
//
// Connect is valid only on a freshly built Connection: a closed one returns
// ErrClosed, any other state ErrAlreadyConnected. Reconnection after an
// unexpected loss is the auto-reconnect policy's job, not Connect's.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateBuilt:
	case StateClosed:
		c.mu.Unlock()
		return &ConnectionError{Op: "connect", Err: ErrClosed}
	default:
		c.mu.Unlock()
		return &ConnectionError{Op: "connect", Err: ErrAlreadyConnected}
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.tr.Connect(ctx); err != nil {
		c.setState(StateBuilt)
		return &ConnectionError{Op: "connect", Err: err}
	}
	return nil
}

// ConnectAsync starts Connect in the background and reports its result on
// the returned channel.
func (c *Connection) ConnectAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- c.Connect(ctx) }()
	return done
}

// handleUp runs inside the transport's connect callback, so everything here
// completes before Connect returns to the caller.
func (c *Connection) handleUp(info transport.ConnectInfo) {
	c.mu.Lock()
	reconnect := c.wasUp
	c.wasUp = true
	c.state = StateConnected
	c.mu.Unlock()

	if reconnect {
		c.logger.Info("session re-established", "client_id", c.cfg.ClientID)
		c.restoreSubscriptions()
	} else {
		c.logger.Info("session established",
			"client_id", c.cfg.ClientID,
			"session_present", info.SessionPresent,
		)
	}

	if c.cfg.HasAvailability {
		c.publishAvailability(c.cfg.Availability.PayloadOnline)
	}

	event := ConnectEvent{
		SessionPresent: info.SessionPresent,
		ReasonCode:     info.ReasonCode,
		Properties:     info.Properties,
	}
	for _, hook := range c.connectHooks() {
		c.runHook("on_connect", func() { hook(c, event) })
	}
}

// handleDown runs on unexpected connection loss. Deliberate teardown is
// driven by Disconnect/Close and never reaches here.
func (c *Connection) handleDown(err error, reasonCode byte) {
	c.mu.Lock()
	if c.state != StateConnected && c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	if c.cfg.AutoReconnect {
		c.state = StateConnecting
	} else {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	c.logger.Warn("connection lost", "client_id", c.cfg.ClientID, "error", err)

	event := DisconnectEvent{Err: err, ReasonCode: reasonCode}
	for _, hook := range c.disconnectHooks() {
		c.runHook("on_disconnect", func() { hook(c, event) })
	}
}

// Disconnect tears the session down deliberately: before-disconnect hooks
// run first, then the availability offline message is published and waited
// for, then the network connection drops, then on-disconnect hooks run.
//
// Disconnecting an already disconnected Connection is a no-op; a closed one
// returns ErrClosed.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.disconnectLocked(ctx)
}

func (c *Connection) disconnectLocked(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return &ConnectionError{Op: "disconnect", Err: ErrClosed}
	case StateConnected:
	default:
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	for _, hook := range c.beforeDisconnectHooks() {
		c.runHook("before_disconnect", func() { hook(c) })
	}

	if c.cfg.HasAvailability {
		c.publishAvailability(c.cfg.Availability.PayloadOffline)
	}

	c.setState(StateDisconnecting)
	if err := c.tr.Disconnect(ctx); err != nil {
		c.logger.Warn("transport disconnect", "error", err)
	}
	c.setState(StateDisconnected)

	c.logger.Info("disconnected", "client_id", c.cfg.ClientID)

	event := DisconnectEvent{}
	for _, hook := range c.disconnectHooks() {
		c.runHook("on_disconnect", func() { hook(c, event) })
	}
	return nil
}

// Close disconnects if still connected and releases the underlying client.
// Close is idempotent; after Close the Connection cannot be reused.
func (c *Connection) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.State() == StateClosed {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), availabilityTimeout)
	defer cancel()
	if err := c.disconnectLocked(ctx); err != nil {
		return err
	}

	err := c.tr.Close()
	c.setState(StateClosed)
	return err
}

// publishAvailability sends an availability payload and waits for the
// acknowledgement so ordering against hooks and teardown holds.
func (c *Connection) publishAvailability(payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), availabilityTimeout)
	defer cancel()
	err := c.tr.Publish(ctx, transport.Publish{
		Topic:   c.cfg.Availability.Topic,
		Payload: []byte(payload),
		QoS:     byte(c.cfg.Availability.QoS),
		Retain:  c.cfg.Availability.Retain,
		Wait:    true,
	})
	if err != nil {
		c.logger.Warn("availability publish failed",
			"topic", c.cfg.Availability.Topic,
			"error", err,
		)
	}
}

func (c *Connection) connectHooks() []ConnectHook {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	return append([]ConnectHook(nil), c.onConnect...)
}

func (c *Connection) beforeDisconnectHooks() []BeforeDisconnectHook {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	return append([]BeforeDisconnectHook(nil), c.beforeDisconnect...)
}

func (c *Connection) disconnectHooks() []DisconnectHook {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	return append([]DisconnectHook(nil), c.onDisconnect...)
}

// runHook shields the connection lifecycle from a misbehaving hook.
func (c *Connection) runHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("hook panicked", "hook", name, "panic", r)
		}
	}()
	fn()
}
