package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/wearable-stream-broker/internal/infra/config"
	"github.com/arklim/wearable-stream-broker/internal/transport/http/handlers"
	"github.com/arklim/wearable-stream-broker/internal/transport/http/middleware"
	"github.com/arklim/wearable-stream-broker/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Registry      *usecase.SessionRegistry
	Subscriptions *usecase.SubscriptionService
	Location      *usecase.LocationService
	Photos        *usecase.PhotoService
	Streams       *usecase.StreamService
	Broadcaster   *usecase.Broadcaster
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Metrics  *middleware.HTTPMetrics
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	appSocket := handlers.NewAppSocketHandler(
		deps.Services.Registry,
		deps.Services.Subscriptions,
		deps.Services.Location,
		deps.Services.Photos,
		deps.Services.Streams,
		deps.Config.Broker,
		deps.Logger,
	)
	glassesSocket := handlers.NewGlassesSocketHandler(
		deps.Services.Registry,
		deps.Services.Location,
		deps.Services.Photos,
		deps.Services.Streams,
		deps.Services.Broadcaster,
		deps.Config.Broker,
		deps.Logger,
	)

	wsGroup := r.Group("/ws")
	{
		wsGroup.GET("/app", appSocket.Handle)
		wsGroup.GET("/glasses", glassesSocket.Handle)
	}

	api := r.Group("/api/v1")
	{
		sessionHandler := handlers.NewSessionHandler(
			deps.Services.Registry,
			deps.Services.Subscriptions,
			deps.Services.Broadcaster,
			deps.Logger,
		)
		sessionGroup := api.Group("/sessions")
		sessionHandler.RegisterRoutes(sessionGroup)
	}

	return r
}
