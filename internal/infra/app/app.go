package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/wearable-stream-broker/internal/core/port"
	"github.com/arklim/wearable-stream-broker/internal/infra/config"
	"github.com/arklim/wearable-stream-broker/internal/infra/database"
	kafkainfra "github.com/arklim/wearable-stream-broker/internal/infra/kafka"
	"github.com/arklim/wearable-stream-broker/internal/infra/logger"
	redisinfra "github.com/arklim/wearable-stream-broker/internal/infra/redis"
	"github.com/arklim/wearable-stream-broker/internal/infra/telemetry"
	postgresrepo "github.com/arklim/wearable-stream-broker/internal/repository/postgres"
	redisrepo "github.com/arklim/wearable-stream-broker/internal/repository/redis"
	"github.com/arklim/wearable-stream-broker/internal/transport/http/middleware"
	"github.com/arklim/wearable-stream-broker/internal/transport/http/routes"
	"github.com/arklim/wearable-stream-broker/internal/usecase"
)

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	registry   *usecase.SessionRegistry
	correlator *usecase.Correlator
	telemetry  *telemetry.Provider
	tracer     *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	telemetryProvider, err := telemetry.Attach(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.TracingEnabled {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	locationCacheTTL := cfg.Redis.LocationCacheTTL
	if locationCacheTTL <= 0 {
		locationCacheTTL = 30 * time.Minute
	}
	locationCache := redisrepo.NewLocationCache(redisClient.Client(), cfg.Redis.LocationCachePrefix, locationCacheTTL)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	photoTimeout := cfg.Broker.PhotoRequestTimeout
	if photoTimeout <= 0 {
		photoTimeout = usecase.DefaultPhotoTimeout
	}

	locationService := usecase.NewLocationService(repos.Users, locationCache, log)
	subscriptionService := usecase.NewSubscriptionService(repos.Apps, repos.Users, eventPublisher, log).
		WithLocationNotifier(locationService)
	correlator := usecase.NewCorrelator(photoTimeout, log)
	photoService := usecase.NewPhotoService(correlator, log)
	streamService := usecase.NewStreamService(eventPublisher, log)
	broadcaster := usecase.NewBroadcaster(subscriptionService, log)
	registry := usecase.NewSessionRegistry(subscriptionService, streamService, locationService, correlator, eventPublisher, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Namespace: cfg.Telemetry.MetricsNamespace,
	})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Registry:      registry,
			Subscriptions: subscriptionService,
			Location:      locationService,
			Photos:        photoService,
			Streams:       streamService,
			Broadcaster:   broadcaster,
		},
	})

	return &Application{
		cfg:        cfg,
		engine:     engine,
		logger:     log,
		pool:       pool,
		redis:      redisClient,
		registry:   registry,
		correlator: correlator,
		telemetry:  telemetryProvider,
		tracer:     tracer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting stream broker",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	go a.sampleGauges(ctx)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		a.registry.Shutdown(shutdownCtx, "server shutting down")

		if a.tracer != nil {
			if err := a.tracer.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// sampleGauges refreshes the session and correlator gauges until ctx ends.
func (a *Application) sampleGauges(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.telemetry.SetActiveSessions(len(a.registry.Sessions()))
			a.telemetry.SetPendingCorrelations(a.correlator.PendingCount())
		}
	}
}
