package pkg

import (
	"context"
	"fmt"

	"github.com/aquamarinepk/aqm/events"
	"github.com/nats-io/nats.go"
)

// Subscription is a handle to an active subscription. Holding the handle is
// what allows a listener to tear down its scope before resubscribing.
type Subscription interface {
	Unsubscribe() error
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, msg []byte) error {
	return p.conn.Publish(topic, msg)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

type NATSSubscriber struct {
	conn *nats.Conn
}

func NewNATSSubscriber(url string) (*NATSSubscriber, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSubscriber{conn: conn}, nil
}

// Subscribe delivers every message on topic to handler and returns the
// subscription handle. Handler errors are swallowed; push delivery is
// best-effort and gaps are covered by the next refresh.
func (s *NATSSubscriber) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) (Subscription, error) {
	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		_ = handler(ctx, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return sub, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
