package tripservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"school-bus/internal/general/config"
	"school-bus/internal/general/directions"
	"school-bus/internal/general/jwt"
	"school-bus/internal/general/logger"
	"school-bus/internal/general/metrics"
	"school-bus/internal/general/postgres"
	"school-bus/internal/general/rabbitmq"
	"school-bus/internal/general/replay"
	"school-bus/internal/general/websocket"
	"school-bus/internal/ports"
	"school-bus/internal/software/trip/handler"
	"school-bus/internal/software/trip/service"
)

// Run wires the trip service and blocks until ctx is cancelled.
func Run(ctx context.Context, maxConcurrent int, migrate bool) error {
	// set up a new logger and context for trip service with a static request ID for startup logs
	logger := logger.New("trip-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	if migrate {
		if err := postgres.ApplySchema(ctx, pool, logger); err != nil {
			logger.Error(ctx, "db_schema_failed", "Failed to apply database schema", err, nil)
			return err
		}
	}

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the RabbitMQ publisher
	pub := rabbitmq.NewMQPublisher(rmq)

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the necessary repos
	uow := postgres.NewUnitOfWork(pool)
	tripRepo := postgres.NewTripRepo()
	rosterRepo := postgres.NewRosterRepo()
	passengerRepo := postgres.NewPassengerStatusRepo()
	profileRepo := postgres.NewProfileRepo()
	bulkRepo := postgres.NewBulkOperationRepo()
	tripEventRepo := postgres.NewTripEventRepo()

	collector := metrics.NewCollector("trip-service")

	guard, closeGuard, err := newReplayGuard(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
		return err
	}
	defer closeGuard()

	// directions are optional; a nil *Client must not end up inside the interface
	var dirs ports.DirectionsService
	if client := directions.New(cfg, logger); client != nil {
		dirs = client
	} else {
		logger.Info(ctx, "directions_disabled", "No directions base URL configured, routes use straight-line ordering", nil)
	}

	// set up the websocket handler
	ws := websocket.NewWebSocket(logger, jwtManager, uow, tripRepo)

	// set up the trip service
	svc := service.NewTripService(service.Deps{
		Logger:     logger,
		UoW:        uow,
		Trips:      tripRepo,
		Roster:     rosterRepo,
		Passengers: passengerRepo,
		Profiles:   profileRepo,
		BulkOps:    bulkRepo,
		Events:     tripEventRepo,
		Publisher:  pub,
		Notifier:   ws,
		Directions: dirs,
		Replay:     guard,
		Consumer:   rmq,
		Metrics:    collector,
	})

	// run the background consumer for accepted driver positions
	svc.RunBackgroundConsumers(ctx)

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	httpHandler := handler.NewTripHTTPHandler(svc, logger, jwtManager, ws, collector)
	if cfg.JWT.DevTokens {
		logger.Info(ctx, "dev_tokens_enabled", "POST /tokens is mounted without authentication", nil)
		httpHandler.EnableDevTokens()
	}
	httpHandler.RegisterRoutes(mux)

	// concurrency limiter (global), blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.TripServicePort),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      35 * time.Second, // bulk batches may run up to 30s
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Trip Service started on port %d", cfg.Services.TripServicePort),
		map[string]any{"port": cfg.Services.TripServicePort, "max_concurrent": maxConcurrent, "directions": dirs != nil},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.TripServicePort})
			return err
		}
		return nil
	}

	return nil
}

// newReplayGuard picks Redis when an address is configured so replicas share one scan window.
func newReplayGuard(ctx context.Context, cfg *config.Config, log *logger.Logger) (ports.ReplayGuard, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Info(ctx, "replay_guard_memory", "Scan replay window kept in process", map[string]any{
			"window": cfg.Scan.ReplayWindow.String(),
			"size":   cfg.Scan.CacheSize,
		})
		return replay.NewMemoryGuard(cfg.Scan.ReplayWindow, cfg.Scan.CacheSize), func() {}, nil
	}

	client, err := replay.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	log.Info(ctx, "replay_guard_redis", "Scan replay window shared through Redis", map[string]any{
		"addr":   cfg.Redis.Addr,
		"window": cfg.Scan.ReplayWindow.String(),
	})
	return replay.NewRedisGuard(client, cfg.Scan.ReplayWindow), func() { _ = client.Close() }, nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
