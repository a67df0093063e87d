package order

import (
	"context"
	"sync"
	"time"

	"github.com/aquamarinepk/aqm/events"
)

// MockOrderSource is a test mock for OrderSource
type MockOrderSource struct {
	mu sync.Mutex

	FullRefreshFunc        func(ctx context.Context, scope Scope) ([]Order, error)
	DeltaSinceFunc         func(ctx context.Context, watermark time.Time, scope Scope) ([]Order, error)
	SendStatusMutationFunc func(ctx context.Context, orderID, status, reason, note string) error
	PlaceOrderFunc         func(ctx context.Context, o *Order) error

	Mutations    []SentMutation
	PlacedOrders []Order
	DeltaCalls   []time.Time
}

type SentMutation struct {
	OrderID string
	Status  string
	Reason  string
	Note    string
}

func NewMockOrderSource() *MockOrderSource {
	return &MockOrderSource{}
}

func (m *MockOrderSource) FullRefresh(ctx context.Context, scope Scope) ([]Order, error) {
	if m.FullRefreshFunc != nil {
		return m.FullRefreshFunc(ctx, scope)
	}
	return []Order{}, nil
}

func (m *MockOrderSource) DeltaSince(ctx context.Context, watermark time.Time, scope Scope) ([]Order, error) {
	m.mu.Lock()
	m.DeltaCalls = append(m.DeltaCalls, watermark)
	m.mu.Unlock()
	if m.DeltaSinceFunc != nil {
		return m.DeltaSinceFunc(ctx, watermark, scope)
	}
	return []Order{}, nil
}

func (m *MockOrderSource) SendStatusMutation(ctx context.Context, orderID, status, reason, note string) error {
	m.mu.Lock()
	m.Mutations = append(m.Mutations, SentMutation{OrderID: orderID, Status: status, Reason: reason, Note: note})
	m.mu.Unlock()
	if m.SendStatusMutationFunc != nil {
		return m.SendStatusMutationFunc(ctx, orderID, status, reason, note)
	}
	return nil
}

func (m *MockOrderSource) PlaceOrder(ctx context.Context, o *Order) error {
	m.mu.Lock()
	m.PlacedOrders = append(m.PlacedOrders, *o)
	m.mu.Unlock()
	if m.PlaceOrderFunc != nil {
		return m.PlaceOrderFunc(ctx, o)
	}
	return nil
}

func (m *MockOrderSource) MutationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Mutations)
}

func (m *MockOrderSource) LastMutation() *SentMutation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Mutations) == 0 {
		return nil
	}
	mut := m.Mutations[len(m.Mutations)-1]
	return &mut
}

// MockSnapshotStore is a test mock for SnapshotStore
type MockSnapshotStore struct {
	mu sync.Mutex

	SaveOrdersFunc func(ctx context.Context, orders []Order) error
	LoadOrdersFunc func(ctx context.Context) ([]Order, error)

	Saved     []Order
	SaveCount int
}

func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{}
}

func (m *MockSnapshotStore) SaveOrders(ctx context.Context, orders []Order) error {
	m.mu.Lock()
	m.Saved = orders
	m.SaveCount++
	m.mu.Unlock()
	if m.SaveOrdersFunc != nil {
		return m.SaveOrdersFunc(ctx, orders)
	}
	return nil
}

func (m *MockSnapshotStore) LoadOrders(ctx context.Context) ([]Order, error) {
	if m.LoadOrdersFunc != nil {
		return m.LoadOrdersFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Saved, nil
}

// MockStreamConsumer is a test mock for events.StreamConsumer
type MockStreamConsumer struct {
	messages  []events.StreamMessage
	FetchFunc func(ctx context.Context, maxMessages int) ([]events.StreamMessage, error)
}

func NewMockStreamConsumer() *MockStreamConsumer {
	return &MockStreamConsumer{
		messages: make([]events.StreamMessage, 0),
	}
}

func (m *MockStreamConsumer) Fetch(ctx context.Context, maxMessages int) ([]events.StreamMessage, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, maxMessages)
	}
	return m.messages, nil
}

func (m *MockStreamConsumer) SubscribeStream(ctx context.Context, handler events.HandlerFunc) error {
	return nil
}

func (m *MockStreamConsumer) AddMessage(data []byte) {
	m.messages = append(m.messages, events.StreamMessage{Data: data})
}
