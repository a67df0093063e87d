package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/middleware"

	internalevents "github.com/quickserveclub/quickserve/internal/events"
	"github.com/quickserveclub/quickserve/internal/mongo"
	"github.com/quickserveclub/quickserve/internal/order"
	"github.com/quickserveclub/quickserve/internal/snapshot"
	"github.com/quickserveclub/quickserve/pkg"
)

const (
	appNamespace = "QUICKSERVE"
	appName      = "terminal"
	appVersion   = "0.1.0"
)

func main() {
	config, err := aqm.LoadConfig(appNamespace, os.Args[1:])
	if err != nil {
		log.Fatalf("Cannot setup %s(%s): %v", appName, appVersion, err)
	}

	logLevel, _ := config.GetString("log.level")
	logger := aqm.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	scope := scopeFromConfig(config)

	natsURL, _ := config.GetString("nats.url")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	publisher, err := pkg.NewNATSPublisher(natsURL)
	if err != nil {
		log.Fatalf("Cannot connect to NATS publisher: %v", err)
	}

	subscriber, err := pkg.NewNATSSubscriber(natsURL)
	if err != nil {
		log.Fatalf("Cannot connect to NATS subscriber: %v", err)
	}

	snapshots := snapshot.NewStore(config, logger)
	orderRepo := mongo.NewOrderRepo(config, publisher, logger)

	// Replay stream is optional; the terminal still works push+poll only.
	var stream *pkg.NATSStream
	if streamName, _ := config.GetString("nats.stream"); streamName != "" {
		consumerName, _ := config.GetString("nats.consumer")
		if consumerName == "" {
			consumerName = appName
		}
		stream, err = pkg.NewNATSStream(pkg.NATSStreamConfig{
			URL:          natsURL,
			StreamName:   streamName,
			Topic:        scope.Subject(),
			ConsumerName: consumerName,
			MaxAge:       24 * time.Hour,
		})
		if err != nil {
			logger.Errorf("Cannot set up replay stream, continuing without: %v", err)
			stream = nil
		}
	}

	var rec *order.Reconciler
	if stream != nil {
		rec = order.NewReconciler(orderRepo, snapshots, stream, logger)
	} else {
		rec = order.NewReconciler(orderRepo, snapshots, nil, logger)
	}
	rec.SetScope(scope)

	listener := internalevents.NewOrderEventListener(subscriber, rec, logger)
	poller := order.NewPoller(rec, orderRepo, logger)
	handler := order.NewHandler(rec, orderRepo, config, logger)

	warmer := &warmup{rec: rec}

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      logger,
		DisableCORS: true,
	})

	options := []aqm.Option{
		aqm.WithConfig(config),
		aqm.WithLogger(logger),
		aqm.WithHTTPMiddleware(stack...),
		aqm.WithHTTPServerModules("web.port", handler),
		aqm.WithLifecycle(snapshots, orderRepo, warmer, listener, poller),
		aqm.WithHealthChecks(appName),
	}

	ms := aqm.NewMicro(options...)
	logger.Infof("Starting %s(%s) as %s", appName, appVersion, scope.Role)

	if err := ms.Run(ctx); err != nil {
		log.Fatalf("%s(%s) stopped with error: %v", appName, appVersion, err)
	}

	logger.Infof("%s(%s) stopped", appName, appVersion)
}

func scopeFromConfig(config *aqm.Config) order.Scope {
	role, _ := config.GetString("scope.role")
	if role == "" {
		role = order.RoleKitchen
	}
	venue, _ := config.GetString("scope.venue")
	location, _ := config.GetString("scope.location")
	return order.Scope{
		Role:         role,
		RestaurantID: venue,
		LocationName: location,
	}
}

// warmup runs the reconciler warm-up inside the lifecycle, after the
// snapshot store and order repo have started.
type warmup struct {
	rec *order.Reconciler
}

func (w *warmup) Start(ctx context.Context) error {
	return w.rec.Warm(ctx)
}

func (w *warmup) Stop(ctx context.Context) error {
	return nil
}
