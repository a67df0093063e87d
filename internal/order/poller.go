package order

import (
	"context"
	"time"

	"github.com/aquamarinepk/aqm"
)

// DefaultPollInterval is the delta-poll cadence for kitchen terminals.
const DefaultPollInterval = 5 * time.Second

// Poller is the correctness backstop for the push channel: on a fixed
// cadence it asks the source for orders newer than the watermark and feeds
// them through the reconciler's admission API. Only kitchen terminals poll.
type Poller struct {
	rec      *Reconciler
	source   OrderSource
	interval time.Duration
	logger   aqm.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(rec *Reconciler, source OrderSource, logger aqm.Logger) *Poller {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Poller{
		rec:      rec,
		source:   source,
		interval: DefaultPollInterval,
		logger:   logger,
	}
}

func (p *Poller) Start(ctx context.Context) error {
	scope := p.rec.Scope()
	if scope.Role != RoleKitchen {
		p.logger.Info("delta polling disabled for role", "role", scope.Role)
		return nil
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(pollCtx)

	p.logger.Info("delta poller started", "interval", p.interval.String())
	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll fetches and admits one delta batch. Transient failures are logged;
// the next tick retries naturally with unchanged local state.
func (p *Poller) poll(ctx context.Context) {
	orders, err := p.source.DeltaSince(ctx, p.rec.Watermark(), p.rec.Scope())
	if err != nil {
		p.logger.Error("delta poll failed", "error", err)
		return
	}

	for i := range orders {
		o := orders[i]
		if !p.rec.AdmitInsert(ctx, &o) {
			// Already known; a delta row racing a push event is an update.
			p.rec.AdmitUpdate(ctx, &o)
		}
	}
}
