package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// defaultRetryDelay is used when no reconnect policy is configured. The v5
// connection manager always maintains the connection; the policy only tunes
// its retry cadence.
const defaultRetryDelay = 3 * time.Second

// pahoV5 adapts eclipse/paho.golang (autopaho connection manager) to the
// Transport port.
type pahoV5 struct {
	cfg    autopaho.ClientConfig
	cm     *autopaho.ConnectionManager
	events Events
	log    Logger

	// closing suppresses down events caused by a deliberate disconnect.
	closing atomic.Bool

	// upCh signals completion of the OnConnectionUp callback so Connect can
	// return only after the connection has announced itself.
	upCh chan struct{}
}

// NewV5 builds a v5 transport. No network activity happens until Connect.
func NewV5(s Settings, ev Events) (Transport, error) {
	t := &pahoV5{
		events: ev,
		log:    s.Logger,
		upCh:   make(chan struct{}, 1),
	}

	scheme := "mqtt"
	if s.TLS != nil {
		scheme = "tls"
	}
	serverURL, err := url.Parse(fmt.Sprintf("%s://%s:%d", scheme, s.Host, s.Port))
	if err != nil {
		return nil, fmt.Errorf("broker url: %w", err)
	}

	retryDelay := defaultRetryDelay
	if s.Reconnect != nil {
		retryDelay = s.Reconnect.MinDelay
	}

	t.cfg = autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{serverURL},
		TlsCfg:                        s.TLS,
		KeepAlive:                     uint16(s.KeepAlive / time.Second),
		CleanStartOnInitialConnection: s.CleanSession,
		SessionExpiryInterval:         uint32(s.SessionExpiry / time.Second),
		ConnectRetryDelay:             retryDelay,
		ConnectTimeout:                s.ConnectTimeout,
		ConnectUsername:               s.Username,
		ConnectPassword:               []byte(s.Password),
		OnConnectionUp: func(_ *autopaho.ConnectionManager, connack *paho.Connack) {
			t.events.OnUp(connectInfoFromConnack(connack))
			select {
			case t.upCh <- struct{}{}:
			default:
			}
		},
		OnConnectError: func(err error) {
			if t.closing.Load() {
				return
			}
			t.events.OnDown(err, 0)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: s.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					t.events.OnMessage(messageFromPublish(pr.Packet))
					return true, nil
				},
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if t.closing.Load() {
					return
				}
				t.events.OnDown(
					fmt.Errorf("server disconnect (reason code %#x)", d.ReasonCode),
					d.ReasonCode,
				)
			},
		},
	}

	if s.Username == "" {
		t.cfg.ConnectPassword = nil
	}

	if s.Will != nil {
		t.cfg.WillMessage = &paho.WillMessage{
			Retain:  s.Will.Retain,
			QoS:     s.Will.QoS,
			Topic:   s.Will.Topic,
			Payload: s.Will.Payload,
		}
	}

	return t, nil
}

func connectInfoFromConnack(connack *paho.Connack) ConnectInfo {
	info := ConnectInfo{}
	if connack == nil {
		return info
	}
	info.SessionPresent = connack.SessionPresent
	info.ReasonCode = connack.ReasonCode
	if connack.Properties != nil && len(connack.Properties.User) > 0 {
		info.Properties = userPropertiesToMap(connack.Properties.User)
	}
	return info
}

func messageFromPublish(p *paho.Publish) Message {
	msg := Message{
		Topic:   p.Topic,
		Payload: p.Payload,
		QoS:     p.QoS,
		Retain:  p.Retain,
	}
	if p.Properties != nil && len(p.Properties.User) > 0 {
		msg.Properties = userPropertiesToMap(p.Properties.User)
	}
	return msg
}

func userPropertiesToMap(props paho.UserProperties) map[string]string {
	m := make(map[string]string, len(props))
	for _, p := range props {
		m[p.Key] = p.Value
	}
	return m
}

func (t *pahoV5) Connect(ctx context.Context) error {
	cm, err := autopaho.NewConnection(context.Background(), t.cfg)
	if err != nil {
		return err
	}
	t.cm = cm

	if err := cm.AwaitConnection(ctx); err != nil {
		_ = cm.Disconnect(context.Background())
		return err
	}

	select {
	case <-t.upCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *pahoV5) Disconnect(ctx context.Context) error {
	if t.cm == nil || t.closing.Swap(true) {
		return nil
	}
	return t.cm.Disconnect(ctx)
}

func (t *pahoV5) Close() error {
	return t.Disconnect(context.Background())
}

func (t *pahoV5) Publish(ctx context.Context, p Publish) error {
	if t.cm == nil {
		return errors.New("not connected")
	}

	pub := &paho.Publish{
		Topic:   p.Topic,
		Payload: p.Payload,
		QoS:     p.QoS,
		Retain:  p.Retain,
	}
	if len(p.Properties) > 0 {
		props := &paho.PublishProperties{}
		for k, v := range p.Properties {
			props.User = append(props.User, paho.UserProperty{Key: k, Value: v})
		}
		pub.Properties = props
	}

	// The connection manager acknowledges per QoS before returning, so a
	// fire-and-forget publish runs detached with its outcome logged.
	if !p.Wait && p.QoS > 0 {
		go func() {
			if _, err := t.cm.Publish(context.Background(), pub); err != nil {
				t.log.Warn("publish not acknowledged", "topic", p.Topic, "error", err)
			}
		}()
		return nil
	}

	_, err := t.cm.Publish(ctx, pub)
	return err
}

func (t *pahoV5) Subscribe(ctx context.Context, s Subscription) error {
	if t.cm == nil {
		return errors.New("not connected")
	}
	_, err := t.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic:             s.Filter,
			QoS:               s.QoS,
			NoLocal:           s.NoLocal,
			RetainAsPublished: s.RetainAsPublished,
			RetainHandling:    s.RetainHandling,
		}},
	})
	return err
}

func (t *pahoV5) Unsubscribe(ctx context.Context, filters ...string) error {
	if t.cm == nil {
		return errors.New("not connected")
	}
	_, err := t.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: filters})
	return err
}
