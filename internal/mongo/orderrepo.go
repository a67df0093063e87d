package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/quickserveclub/quickserve/internal/order"
	"github.com/quickserveclub/quickserve/pkg/event"
)

// OrderRepo is the remote fetch client: role-scoped queries against the
// backing store plus the status mutation path. At most one refresh or delta
// fetch is in flight at a time; a concurrent call is a no-op.
type OrderRepo struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	publisher  events.Publisher
	logger     aqm.Logger
	config     *aqm.Config

	fetchInFlight atomic.Bool
}

func NewOrderRepo(config *aqm.Config, publisher events.Publisher, logger aqm.Logger) *OrderRepo {
	return &OrderRepo{
		publisher: publisher,
		logger:    logger,
		config:    config,
	}
}

func (r *OrderRepo) Start(ctx context.Context) error {
	mongoURL, _ := r.config.GetString("db.mongo.url")
	if mongoURL == "" {
		mongoURL = "mongodb://localhost:27017"
	}

	dbName, _ := r.config.GetString("db.mongo.name")
	if dbName == "" {
		dbName = "quickserve"
	}

	clientOptions := options.Client().ApplyURI(mongoURL).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("cannot connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("cannot ping MongoDB: %w", err)
	}

	r.client = client
	r.db = client.Database(dbName)
	r.collection = r.db.Collection("orders")

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "restaurant_id", Value: 1}}},
		{Keys: bson.D{{Key: "location_name", Value: 1}}},
	}
	for _, idx := range indexes {
		if _, err := r.collection.Indexes().CreateOne(ctx, idx); err != nil {
			return fmt.Errorf("cannot create order index: %w", err)
		}
	}

	r.logger.Infof("Connected to MongoDB: %s, database: %s, collection: orders", mongoURL, dbName)
	return nil
}

func (r *OrderRepo) Stop(ctx context.Context) error {
	if r.client != nil {
		if err := r.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
		}
		r.logger.Info("Disconnected from MongoDB")
	}
	return nil
}

// FullRefresh returns the most recent orders for the scope, newest first.
func (r *OrderRepo) FullRefresh(ctx context.Context, scope order.Scope) ([]order.Order, error) {
	if !r.fetchInFlight.CompareAndSwap(false, true) {
		r.logger.Debug("fetch already in flight, skipping full refresh")
		return nil, nil
	}
	defer r.fetchInFlight.Store(false)

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(order.MaxOrders))

	return r.find(ctx, scopeFilter(scope), opts)
}

// DeltaSince returns orders strictly newer than the watermark, newest first.
func (r *OrderRepo) DeltaSince(ctx context.Context, watermark time.Time, scope order.Scope) ([]order.Order, error) {
	if !r.fetchInFlight.CompareAndSwap(false, true) {
		r.logger.Debug("fetch already in flight, skipping delta poll")
		return nil, nil
	}
	defer r.fetchInFlight.Store(false)

	filter := scopeFilter(scope)
	filter["timestamp"] = bson.M{"$gt": watermark}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	return r.find(ctx, filter, opts)
}

func (r *OrderRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]order.Order, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot query orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []order.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("cannot decode orders: %w", err)
	}
	return orders, nil
}

// SendStatusMutation writes the status change and publishes the update echo
// that closes the optimistic-lock confirmation loop.
func (r *OrderRepo) SendStatusMutation(ctx context.Context, orderID, status, reason, note string) error {
	filter := bson.M{"_id": orderID}
	update := bson.M{"$set": bson.M{
		"status":           status,
		"rejection_reason": reason,
		"rejection_note":   note,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("cannot update order status: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("order %s not found", orderID)
	}

	var updated order.Order
	if err := r.collection.FindOne(ctx, filter).Decode(&updated); err != nil {
		r.logger.Error("cannot reload order after mutation", "order_id", orderID, "error", err)
		return nil
	}

	r.publish(ctx, event.EventOrderUpdated, &updated)
	return nil
}

// PlaceOrder inserts the order and publishes its creation event.
func (r *OrderRepo) PlaceOrder(ctx context.Context, o *order.Order) error {
	if _, err := r.collection.InsertOne(ctx, o); err != nil {
		return fmt.Errorf("cannot insert order: %w", err)
	}

	r.publish(ctx, event.EventOrderCreated, o)
	return nil
}

// publish emits the event on the venue subject and, when the order carries a
// location, on the location subject so customer terminals see it too.
// Publish failure is logged only; the poller covers the gap.
func (r *OrderRepo) publish(ctx context.Context, eventType string, o *order.Order) {
	if r.publisher == nil {
		return
	}

	evt := event.OrderEvent{
		EventType:  eventType,
		EventID:    uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		Order:      toRecord(o),
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		r.logger.Error("cannot marshal order event", "order_id", o.ID, "error", err)
		return
	}

	subjects := []string{event.VenueSubject(o.RestaurantID)}
	if o.LocationName != "" {
		subjects = append(subjects, event.LocationSubject(o.LocationName))
	}
	for _, subject := range subjects {
		if err := r.publisher.Publish(ctx, subject, payload); err != nil {
			r.logger.Error("cannot publish order event", "subject", subject, "error", err)
		}
	}
}

func toRecord(o *order.Order) event.OrderRecord {
	items, err := json.Marshal(o.Items)
	if err != nil {
		items = []byte("[]")
	}

	return event.OrderRecord{
		ID:              o.ID,
		Items:           items,
		Total:           o.Total,
		Status:          o.Status,
		Timestamp:       json.RawMessage(strconv.FormatInt(o.Timestamp.UnixMilli(), 10)),
		CustomerID:      o.CustomerID,
		RestaurantID:    o.RestaurantID,
		TableNumber:     o.TableNumber,
		LocationName:    o.LocationName,
		Remark:          o.Remark,
		RejectionReason: o.RejectionReason,
		RejectionNote:   o.RejectionNote,
	}
}

// scopeFilter translates a scope into the query filter for its role.
func scopeFilter(scope order.Scope) bson.M {
	switch scope.Role {
	case order.RoleKitchen:
		return bson.M{"restaurant_id": scope.RestaurantID}
	case order.RoleCustomer:
		return bson.M{"location_name": scope.LocationName}
	default:
		return bson.M{}
	}
}
