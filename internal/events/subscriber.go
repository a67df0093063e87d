package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aquamarinepk/aqm"
	aqmevents "github.com/aquamarinepk/aqm/events"
	"github.com/quickserveclub/quickserve/internal/order"
	"github.com/quickserveclub/quickserve/pkg"
	"github.com/quickserveclub/quickserve/pkg/event"
)

// Subscriber is the piece of the push transport the listener needs: a scoped
// subscription that can be torn down. Satisfied by pkg.NATSSubscriber.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler aqmevents.HandlerFunc) (pkg.Subscription, error)
}

// OrderEventListener consumes order insert/update push events for the active
// scope and proposes them to the reconciler. Nothing is buffered while
// disconnected; the next full refresh reconciles any gap.
type OrderEventListener struct {
	subscriber Subscriber
	rec        *order.Reconciler
	logger     aqm.Logger

	mu      sync.Mutex
	sub     pkg.Subscription
	subject string
}

func NewOrderEventListener(subscriber Subscriber, rec *order.Reconciler, logger aqm.Logger) *OrderEventListener {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &OrderEventListener{
		subscriber: subscriber,
		rec:        rec,
		logger:     logger,
	}
}

// Start subscribes for the reconciler's current scope.
func (l *OrderEventListener) Start(ctx context.Context) error {
	if l.subscriber == nil {
		l.logger.Info("push subscriber not configured, relying on polling only")
		return nil
	}
	return l.Rescope(ctx, l.rec.Scope())
}

// Stop tears down the active subscription.
func (l *OrderEventListener) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.teardownLocked()
}

// Rescope re-establishes the subscription for a new scope. The previous
// subscription is torn down first to avoid duplicate delivery.
func (l *OrderEventListener) Rescope(ctx context.Context, scope order.Scope) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.teardownLocked(); err != nil {
		l.logger.Error("failed to unsubscribe previous scope", "subject", l.subject, "error", err)
	}

	subject := scope.Subject()
	sub, err := l.subscriber.Subscribe(ctx, subject, l.handleEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	l.sub = sub
	l.subject = subject
	l.logger.Info("subscribed to order events", "subject", subject, "role", scope.Role)
	return nil
}

func (l *OrderEventListener) teardownLocked() error {
	if l.sub == nil {
		return nil
	}
	err := l.sub.Unsubscribe()
	l.sub = nil
	l.subject = ""
	return err
}

func (l *OrderEventListener) handleEvent(ctx context.Context, msg []byte) error {
	var evt event.OrderEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		l.logger.Error("failed to unmarshal order event", "error", err)
		return nil
	}

	switch evt.EventType {
	case event.EventOrderCreated:
		o := order.FromRecord(evt.Order)
		if l.rec.AdmitInsert(ctx, o) {
			l.logger.Debug("order admitted", "order_id", o.ID, "status", o.Status)
		}
	case event.EventOrderUpdated:
		o := order.FromRecord(evt.Order)
		if !l.rec.AdmitUpdate(ctx, o) {
			l.logger.Debug("order update rejected", "order_id", o.ID, "status", o.Status)
		}
	default:
		// Unknown event types are ignored (forward compatibility).
	}

	return nil
}
