package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/api"
	"github.com/kapu/persona-globe-go/internal/config"
	"github.com/kapu/persona-globe-go/internal/domain"
	"github.com/kapu/persona-globe-go/internal/engine"
	"github.com/kapu/persona-globe-go/internal/metrics"
	"github.com/kapu/persona-globe-go/internal/prompt"
	"github.com/kapu/persona-globe-go/internal/service/cache"
	"github.com/kapu/persona-globe-go/internal/service/database"
	"github.com/kapu/persona-globe-go/internal/service/llm"
	"github.com/kapu/persona-globe-go/internal/service/rating"
)

// Container bundles the assembled services behind the HTTP server.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Catalog *domain.PersonaCatalog
	Rating  *rating.Service
	Engine  *engine.Engine
	Handler *api.Handler
	Router  *gin.Engine

	closers []func()
}

// Close releases infrastructure connections in reverse order of creation.
func (c *Container) Close() {
	if c == nil {
		return
	}
	c.Handler.Hub().CloseAll()
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build assembles every service. Redis and PostgreSQL are optional; a
// missing LLM key leaves the rank endpoint unavailable and the engine on mock
// ratings.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	catalog, err := domain.LoadPersonaCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load persona catalog: %w", err)
	}
	for _, p := range catalog.UnreachablePersonas(domain.GlobeLocations()) {
		logger.Warn("Persona location has no globe coordinates",
			zap.String("persona", p.ID),
			zap.String("location", p.Location))
	}
	logger.Info("Persona catalog loaded",
		zap.Int("personas", catalog.Len()),
		zap.Int("locations", len(catalog.Locations())))

	// LLM stack
	var (
		generator rating.Generator
		health    api.HealthReporter
	)
	modelManager, err := llm.NewModelManager(ctx, cfg.LLM, logger)
	switch {
	case errors.Is(err, llm.ErrProviderNotConfigured):
		logger.Warn("No LLM API key configured, rank endpoint disabled",
			zap.String("provider", cfg.LLM.Provider))
		err = nil
	case err != nil:
		return nil, fmt.Errorf("failed to create model manager: %w", err)
	default:
		generator = modelManager
		health = modelManager
		logger.Info("LLM provider ready", zap.String("provider", modelManager.ProviderName()))
	}

	// Cache and database
	var rankCache rating.Cache
	if cfg.Redis.Enabled {
		cacheSvc, cacheErr := cache.NewCacheService(cfg.Redis, logger)
		if cacheErr != nil {
			logger.Warn("Redis unavailable, ranking cache disabled", zap.Error(cacheErr))
		} else {
			rankCache = cacheSvc
			closers = append(closers, func() {
				_ = cacheSvc.Close()
			})
		}
	}

	var store api.AnalysisStore
	if cfg.Postgres.Enabled {
		postgresSvc, pgErr := database.NewPostgresService(ctx, cfg.Postgres, logger)
		if pgErr != nil {
			return nil, fmt.Errorf("failed to create postgres service: %w", pgErr)
		}
		closers = append(closers, func() {
			_ = postgresSvc.Close()
		})

		repo := database.NewAnalysisRepository(postgresSvc, logger)
		if err = repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare analysis schema: %w", err)
		}
		store = repo
	}

	ratingSvc, err := rating.NewService(catalog, generator, prompt.DefaultPromptBuilder(), rankCache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create rating service: %w", err)
	}

	var rng *rand.Rand
	if cfg.Analysis.Seed != 0 {
		rng = engine.NewSeededRand(uint64(cfg.Analysis.Seed))
	}
	eng := engine.New(engine.Config{
		UseRealLLM:         cfg.Analysis.UseRealLLM,
		DefaultMaxPersonas: cfg.Analysis.DefaultMaxPersonas,
	}, rating.NewInProcessClient(ratingSvc), rng, metrics.Telemetry{}, logger)

	hub := api.NewHub(logger)
	handler := api.NewHandler(api.HandlerDeps{
		Catalog:  catalog,
		Ranker:   ratingSvc,
		Health:   health,
		Analyzer: eng,
		Store:    store,
		Hub:      hub,
	}, logger)

	return &Container{
		Config:  cfg,
		Logger:  logger,
		Catalog: catalog,
		Rating:  ratingSvc,
		Engine:  eng,
		Handler: handler,
		Router:  api.NewRouter(handler, cfg.Server, logger),
		closers: closers,
	}, nil
}
