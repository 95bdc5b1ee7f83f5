package transport

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Dev-CorliJoni/jmqtt/internal/store"
)

// disconnectQuiesce is the time paho is given to flush pending work on a
// graceful disconnect, in milliseconds.
const disconnectQuiesce = 1000

// pahoV3 adapts eclipse/paho.mqtt.golang to the Transport port.
//
// Reconnect timing, QoS retry state and keepalive are all paho's; this
// adapter only translates configuration and events. Session-present metadata
// is not available from paho's connect callback, so ConnectInfo reports it
// as false under v3.
type pahoV3 struct {
	client pahomqtt.Client
	events Events
	log    Logger

	// upCh signals completion of the OnUp callback so Connect can return
	// only after the connection has announced itself.
	upCh chan struct{}
}

// NewV3 builds a v3.1.1 transport. The client is fully configured but not
// connected.
func NewV3(s Settings, ev Events) (Transport, error) {
	t := &pahoV3{
		events: ev,
		log:    s.Logger,
		upCh:   make(chan struct{}, 1),
	}

	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if s.TLS != nil {
		scheme = "ssl"
		opts.SetTLSConfig(s.TLS)
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, s.Host, s.Port))

	opts.SetClientID(s.ClientID)
	opts.SetKeepAlive(s.KeepAlive)
	opts.SetCleanSession(s.CleanSession)
	opts.SetConnectTimeout(s.ConnectTimeout)
	opts.SetOrderMatters(true)

	if s.Username != "" {
		opts.SetUsername(s.Username)
		opts.SetPassword(s.Password)
	}

	if s.Reconnect != nil {
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectRetryInterval(s.Reconnect.MinDelay)
		opts.SetMaxReconnectInterval(s.Reconnect.MaxDelay)
		opts.SetResumeSubs(true)
	} else {
		opts.SetAutoReconnect(false)
		opts.SetConnectRetry(false)
	}

	if s.Will != nil {
		opts.SetBinaryWill(s.Will.Topic, s.Will.Payload, s.Will.QoS, s.Will.Retain)
	}

	if s.StorePath != "" {
		opts.SetStore(store.NewSQLite(s.StorePath, s.Logger))
	}

	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		t.events.OnUp(ConnectInfo{})
		select {
		case t.upCh <- struct{}{}:
		default:
		}
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.events.OnDown(err, 0)
	})

	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		t.forward(msg)
	})

	t.client = pahomqtt.NewClient(opts)
	return t, nil
}

// forward translates an inbound paho message into a transport event.
func (t *pahoV3) forward(msg pahomqtt.Message) {
	t.events.OnMessage(Message{
		Topic:   msg.Topic(),
		Payload: msg.Payload(),
		QoS:     msg.Qos(),
		Retain:  msg.Retained(),
	})
}

func (t *pahoV3) Connect(ctx context.Context) error {
	token := t.client.Connect()
	if err := waitToken(ctx, token); err != nil {
		return err
	}

	// The connect callback runs on paho's goroutine; wait for it so the
	// caller observes an announced connection.
	select {
	case <-t.upCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *pahoV3) Disconnect(context.Context) error {
	t.client.Disconnect(disconnectQuiesce)
	return nil
}

func (t *pahoV3) Close() error {
	// Disconnect unconditionally: when a connect retry is in flight the
	// connection is not open, but paho still marks the client disconnected
	// and ends the retry loop.
	t.client.Disconnect(disconnectQuiesce)
	return nil
}

func (t *pahoV3) Publish(ctx context.Context, p Publish) error {
	token := t.client.Publish(p.Topic, p.QoS, p.Retain, p.Payload)

	if !p.Wait || p.QoS == 0 {
		if p.QoS > 0 {
			// The caller has already returned; surface delivery failures
			// through the logger.
			go func() {
				<-token.Done()
				if err := token.Error(); err != nil {
					t.log.Warn("publish not acknowledged", "topic", p.Topic, "error", err)
				}
			}()
		}
		return nil
	}

	return waitToken(ctx, token)
}

func (t *pahoV3) Subscribe(ctx context.Context, s Subscription) error {
	// v5 subscription options have no v3 equivalent and are ignored here.
	//
	// No per-filter callback: paho invokes every matching route's callback
	// per packet, so registering one per subscription would deliver a
	// packet once per overlapping filter. With no routes, every packet
	// reaches the default publish handler exactly once and the consumer
	// does its own filter matching.
	token := t.client.Subscribe(s.Filter, s.QoS, nil)
	return waitToken(ctx, token)
}

func (t *pahoV3) Unsubscribe(ctx context.Context, filters ...string) error {
	token := t.client.Unsubscribe(filters...)
	return waitToken(ctx, token)
}

// waitToken waits for a paho token honouring ctx cancellation.
func waitToken(ctx context.Context, token pahomqtt.Token) error {
	if deadline, ok := ctx.Deadline(); ok {
		if !token.WaitTimeout(time.Until(deadline)) {
			return context.DeadlineExceeded
		}
		return token.Error()
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
