package trackerservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"school-bus/internal/domain/tracker"
	"school-bus/internal/general/config"
	"school-bus/internal/general/logger"
	"school-bus/internal/general/metrics"
	"school-bus/internal/general/natsbus"
	"school-bus/internal/general/postgres"
	"school-bus/internal/general/rabbitmq"
	"school-bus/internal/software/tracker/service"
)

// Run wires the tracker service and blocks until ctx is cancelled.
func Run(ctx context.Context) error {
	logger := logger.New("tracker-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	collector := metrics.NewCollector("tracker-service")

	source, err := natsbus.Connect(cfg, logger, collector)
	if err != nil {
		logger.Error(ctx, "nats_connection_failed", "Failed to connect to NATS", err, nil)
		return err
	}
	defer source.Close()

	svc := service.NewTrackerService(service.Deps{
		Logger:    logger,
		UoW:       postgres.NewUnitOfWork(pool),
		Trips:     postgres.NewTripRepo(),
		History:   postgres.NewPositionHistoryRepo(),
		Publisher: rabbitmq.NewMQPublisher(rmq),
		Source:    source,
		Metrics:   collector,
		Policy: tracker.CadencePolicy{
			Foreground: cfg.Tracking.ForegroundInterval,
			Background: cfg.Tracking.BackgroundInterval,
		},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if !rmq.Ready() {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service":   "tracker-service",
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.Handle("GET /metrics", collector.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.TrackerServicePort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Tracker Service started on port %d", cfg.Services.TrackerServicePort),
		map[string]any{
			"port":                cfg.Services.TrackerServicePort,
			"foreground_interval": cfg.Tracking.ForegroundInterval.String(),
			"background_interval": cfg.Tracking.BackgroundInterval.String(),
		},
	)

	errCh := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	go func() {
		errCh <- svc.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error(ctx, "tracker_terminated", "Tracker service terminated with error", err, nil)
			return err
		}
	}

	return nil
}
