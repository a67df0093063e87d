package order

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/quickserveclub/quickserve/pkg/enums/orderstatus"
)

const MaxBodyBytes = 1 << 20

// Handler is the terminal's local HTTP surface: the UI reads the reconciled
// order list and triggers status actions through it. Reads never touch the
// network; writes are optimistic via the reconciler.
type Handler struct {
	rec       *Reconciler
	source    OrderSource
	logger    aqm.Logger
	config    *aqm.Config
	tlm       *telemetry.HTTP
	venueCode string

	seqMu sync.Mutex
	seq   int64
}

func NewHandler(rec *Reconciler, source OrderSource, config *aqm.Config, logger aqm.Logger) *Handler {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	venueCode, _ := config.GetString("venue.code")
	if venueCode == "" {
		venueCode = "QS"
	}
	return &Handler{
		rec:       rec,
		source:    source,
		logger:    logger,
		config:    config,
		tlm:       telemetry.NewHTTP(),
		venueCode: venueCode,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.PlaceOrder)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}/accept", h.AcceptOrder)
		r.Patch("/{id}/serve", h.ServeOrder)
		r.Patch("/{id}/complete", h.CompleteOrder)
		r.Patch("/{id}/reject", h.RejectOrder)
	})
}

func (h *Handler) log(r *http.Request) aqm.Logger {
	return h.logger.With("request_id", aqm.RequestIDFrom(r.Context()))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListOrders")
	defer finish()

	var orders []Order
	if status := r.URL.Query().Get("status"); status != "" {
		if orderstatus.ByName(status) == nil {
			aqm.RespondError(w, http.StatusBadRequest, "Invalid status")
			return
		}
		orders = h.rec.OrdersByStatus(status)
	} else {
		orders = h.rec.Orders()
	}

	aqm.Respond(w, http.StatusOK, orders, nil)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetOrder")
	defer finish()

	id := chi.URLParam(r, "id")
	o := h.rec.Get(id)
	if o == nil {
		aqm.RespondError(w, http.StatusNotFound, "Order not found")
		return
	}

	aqm.Respond(w, http.StatusOK, o, nil)
}

type placeOrderRequest struct {
	Items        []LineItem `json:"items"`
	CustomerID   string     `json:"customer_id"`
	RestaurantID string     `json:"restaurant_id"`
	TableNumber  string     `json:"table_number"`
	LocationName string     `json:"location_name"`
	Remark       string     `json:"remark"`
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.PlaceOrder")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		aqm.RespondError(w, http.StatusBadRequest, "Cannot read body")
		return
	}

	var req placeOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		aqm.RespondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if len(req.Items) == 0 {
		aqm.RespondError(w, http.StatusBadRequest, "Order needs at least one item")
		return
	}

	var total float64
	for _, it := range req.Items {
		total += it.UnitPrice * float64(it.Quantity)
	}

	o := &Order{
		ID:           ComposeOrderID(h.venueCode, h.nextSeq()),
		Items:        req.Items,
		Total:        total,
		Status:       orderstatus.Statuses.Pending.Code(),
		Timestamp:    time.Now().UTC(),
		CustomerID:   req.CustomerID,
		RestaurantID: req.RestaurantID,
		TableNumber:  req.TableNumber,
		LocationName: req.LocationName,
		Remark:       req.Remark,
	}

	if err := h.source.PlaceOrder(ctx, o); err != nil {
		log.Errorf("cannot place order: %v", err)
		aqm.RespondError(w, http.StatusBadGateway, "Could not place order")
		return
	}

	h.rec.AdmitInsert(ctx, o)
	aqm.Respond(w, http.StatusCreated, o, nil)
}

func (h *Handler) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	h.applyStatus(w, r, "Handler.AcceptOrder", orderstatus.Statuses.Ongoing.Code(), "", "")
}

func (h *Handler) ServeOrder(w http.ResponseWriter, r *http.Request) {
	h.applyStatus(w, r, "Handler.ServeOrder", orderstatus.Statuses.Served.Code(), "", "")
}

func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	h.applyStatus(w, r, "Handler.CompleteOrder", orderstatus.Statuses.Completed.Code(), "", "")
}

type rejectOrderRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		aqm.RespondError(w, http.StatusBadRequest, "Cannot read body")
		return
	}

	var req rejectOrderRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			aqm.RespondError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	}

	h.applyStatus(w, r, "Handler.RejectOrder", orderstatus.Statuses.Cancelled.Code(), req.Reason, req.Note)
}

func (h *Handler) applyStatus(w http.ResponseWriter, r *http.Request, span, status, reason, note string) {
	w, r, finish := h.tlm.Start(w, r, span)
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id := chi.URLParam(r, "id")
	if err := h.rec.ApplyLocalStatusChange(ctx, id, status, reason, note); err != nil {
		log.Errorf("cannot change order status: %v", err)
		aqm.RespondError(w, http.StatusNotFound, "Order not found")
		return
	}

	aqm.Respond(w, http.StatusOK, h.rec.Get(id), nil)
}

// nextSeq hands out placement sequence numbers, seeded lazily from the
// highest sequence already visible for this venue.
func (h *Handler) nextSeq() int64 {
	h.seqMu.Lock()
	defer h.seqMu.Unlock()
	if h.seq == 0 {
		h.seq = NextSequence(h.rec.Orders(), h.venueCode)
	} else {
		h.seq++
	}
	return h.seq
}
