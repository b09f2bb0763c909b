package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gdugdh24/mpit2026-discovery/internal/config"
	"github.com/gdugdh24/mpit2026-discovery/internal/delivery/http"
	"github.com/gdugdh24/mpit2026-discovery/internal/delivery/http/handler"
	"github.com/gdugdh24/mpit2026-discovery/internal/delivery/http/middleware"
	"github.com/gdugdh24/mpit2026-discovery/internal/infrastructure/database"
	"github.com/gdugdh24/mpit2026-discovery/internal/infrastructure/events"
	"github.com/gdugdh24/mpit2026-discovery/internal/infrastructure/gemini"
	"github.com/gdugdh24/mpit2026-discovery/internal/infrastructure/metrics"
	"github.com/gdugdh24/mpit2026-discovery/internal/infrastructure/server"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository/postgres"
	redisrepo "github.com/gdugdh24/mpit2026-discovery/internal/repository/redis"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/discovery"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/gesture"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/profile"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/swipe"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *sqlx.DB
	Redis     *redis.Client
	Server    *server.Server
	Gemini    *gemini.Client
	Publisher events.MatchPublisher
	Recorder  *swipe.Recorder
	Sessions  *discovery.SessionManager
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	// Initialize database
	db, err := database.NewPostgresDB(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.DB = db

	// Redis only backs the exclusion cache; discovery works without it.
	var cache repository.ExclusionCache
	redisClient, err := database.NewRedisClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("exclusion cache disabled", zap.Error(err))
	} else {
		c.Redis = redisClient
		cache = redisrepo.NewExclusionCache(redisClient, cfg.Discovery.ExclusionTTL)
	}

	// Gemini is optional, a nil client answers with local icebreakers.
	if cfg.GeminiAPIKey != "" {
		c.Gemini, err = gemini.NewClient(ctx, cfg.GeminiAPIKey, logger)
		if err != nil {
			logger.Warn("gemini disabled, using local icebreakers", zap.Error(err))
		}
	}

	if cfg.RabbitMQ.URL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize match publisher: %w", err)
		}
		c.Publisher = publisher
	} else {
		c.Publisher = events.NewNoopPublisher(logger)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Initialize repositories
	profileRepo := postgres.NewProfileRepository(db)
	decisionRepo := postgres.NewDecisionRepository(db)

	// Initialize use cases
	profileUseCase := profile.NewProfileUseCase(profileRepo, cfg.Discovery.MaxDistanceKm, logger)

	fetcher := discovery.NewFetcher(profileRepo, discovery.FetcherConfig{
		BatchSize:      cfg.Discovery.BatchSize,
		ShuffleWindow:  cfg.Discovery.ShuffleWindow,
		Timeout:        cfg.Discovery.RemoteTimeout,
		Attempts:       cfg.Discovery.FetchAttempts,
		Backoff:        cfg.Discovery.RetryBackoff,
		SampleFallback: cfg.Discovery.SampleFallback,
	}, logger, m)

	recorderOpts := []swipe.Option{
		swipe.WithPublisher(c.Publisher),
		swipe.WithIcebreakers(c.Gemini),
		swipe.WithMetrics(m),
	}
	if cache != nil {
		recorderOpts = append(recorderOpts, swipe.WithExclusionCache(cache))
	}
	c.Recorder = swipe.NewRecorder(decisionRepo, profileRepo, swipe.Config{
		Attempts: cfg.Discovery.RecordAttempts,
		Backoff:  cfg.Discovery.RetryBackoff,
		Timeout:  cfg.Discovery.RemoteTimeout,
	}, logger, recorderOpts...)

	c.Sessions = discovery.NewSessionManager(profileRepo, cache, decisionRepo, fetcher, c.Recorder, discovery.ManagerConfig{
		BatchSize: cfg.Discovery.BatchSize,
		Filter: discovery.FilterDefaults{
			MaxDistanceKm:    cfg.Discovery.DefaultMaxDistanceKm,
			MaxDistanceCapKm: cfg.Discovery.MaxDistanceKm,
		},
		Gesture: gesture.Config{
			ScreenWidth:       cfg.Gesture.ScreenWidth,
			DistanceFraction:  cfg.Gesture.DistanceFraction,
			VelocityThreshold: cfg.Gesture.VelocityThreshold,
			FlickMinRatio:     cfg.Gesture.FlickMinRatio,
		},
	}, logger, m)

	// Initialize handlers
	profileHandler := handler.NewProfileHandler(profileUseCase, logger)
	discoveryHandler := handler.NewDiscoveryHandler(c.Sessions, logger)
	streamHandler := handler.NewStreamHandler(c.Sessions, logger)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.AccessSecret)

	// Initialize router
	router := http.NewRouter(
		profileHandler,
		discoveryHandler,
		streamHandler,
		authMiddleware,
		registry,
	)

	c.Server = server.NewServer(&cfg.Server, router.Setup(), logger)
	return c, nil
}

// Close drains background work and closes all connections. Sessions are
// closed first so no new decisions start, then pending writes finish.
func (c *Container) Close() error {
	if c.Sessions != nil {
		c.Sessions.CloseAll()
	}
	if c.Recorder != nil {
		c.Recorder.Wait()
	}

	var errs []error
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close publisher: %w", err))
		}
	}
	if err := c.Gemini.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close gemini client: %w", err))
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
