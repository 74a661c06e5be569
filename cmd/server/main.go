package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rrens/med-analyzer/internal/api"
	"github.com/Rrens/med-analyzer/internal/config"
	"github.com/Rrens/med-analyzer/internal/events"
	"github.com/Rrens/med-analyzer/internal/extract"
	"github.com/Rrens/med-analyzer/internal/llm"
	"github.com/Rrens/med-analyzer/internal/llm/anthropic"
	"github.com/Rrens/med-analyzer/internal/llm/deepseek"
	"github.com/Rrens/med-analyzer/internal/llm/gemini"
	"github.com/Rrens/med-analyzer/internal/llm/ollama"
	"github.com/Rrens/med-analyzer/internal/llm/openai"
	"github.com/Rrens/med-analyzer/internal/logger"
	"github.com/Rrens/med-analyzer/internal/observability"
	"github.com/Rrens/med-analyzer/internal/repository/postgres"
	"github.com/Rrens/med-analyzer/internal/repository/redis"
	"github.com/Rrens/med-analyzer/internal/repository/sqlstore"
	"github.com/Rrens/med-analyzer/internal/storage"
	"github.com/Rrens/med-analyzer/internal/tts"
	"github.com/Rrens/med-analyzer/internal/worker"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	envPaths := []string{".env", "../.env", "../../.env"}
	envLoaded := ""
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			envLoaded = p
			break
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logCloser, err := logger.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if envLoaded != "" {
		log.Info().Str("path", envLoaded).Msg("Loaded .env file")
	} else {
		log.Warn().Msg(".env file not found in any standard location")
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("provider", cfg.LLM.DefaultProvider).
		Msg("Starting medical analyzer server")

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Initialize database
	repos, closeDB, err := openRepositories(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer closeDB()

	// Initialize Redis
	var (
		limiter *redis.RateLimiter
		cache   extract.Cache
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		limiter = redis.NewRateLimiter(redisClient, cfg.Security.RateLimit.RequestsPerMinute, cfg.Security.RateLimit.Burst)
		cache = redis.NewExtractionCache(redisClient, cfg.Redis.CacheTTL)
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	backend, model, err := newBackend(cfg.LLM, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize generation backend")
	}

	pool := worker.NewPool(cfg.Workers.Size, cfg.Workers.Queue, metrics)
	hub := events.NewHub(cfg.Events.SubscriberBuffer, metrics)
	queues := events.NewQueues(cfg.Events.QueueRetention)
	speech := tts.NewTrigger(tts.NewHTTPEngine(cfg.TTS), store, pool, repos.Turns, hub, metrics, cfg.TTS.Enabled)

	deps := api.Dependencies{
		Repos:     repos,
		Store:     store,
		Backend:   backend,
		Model:     model,
		Hub:       hub,
		Queues:    queues,
		Pool:      pool,
		Extractor: extract.NewExtractor(cache, true),
		Speech:    speech,
		Metrics:   metrics,
		Gatherer:  registry,
	}
	if limiter != nil {
		deps.Limiter = limiter
	}

	// Initialize router
	router := api.NewRouter(cfg, deps)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	hub.Close()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Background tasks did not finish")
	}
	shutdownTracing(shutdownCtx)

	log.Info().Msg("Server stopped")
}

// openRepositories connects to the configured database, applies pending
// migrations and returns its repositories.
func openRepositories(ctx context.Context, cfg config.DatabaseConfig) (api.Repositories, func(), error) {
	if cfg.Driver == "" || cfg.Driver == config.DriverPostgres {
		if err := postgres.RunMigrations(cfg.MigrateURL()); err != nil {
			return api.Repositories{}, nil, err
		}
		db, err := postgres.NewDB(ctx, cfg)
		if err != nil {
			return api.Repositories{}, nil, err
		}
		return api.Repositories{
			DB:            db,
			Conversations: postgres.NewConversationRepository(db.Pool),
			Turns:         postgres.NewTurnRepository(db.Pool),
			Documents:     postgres.NewDocumentRepository(db.Pool),
			Reports:       postgres.NewReportRepository(db.Pool),
		}, db.Close, nil
	}

	if err := sqlstore.RunMigrations(cfg); err != nil {
		return api.Repositories{}, nil, err
	}
	db, err := sqlstore.NewDB(ctx, cfg)
	if err != nil {
		return api.Repositories{}, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
	return api.Repositories{
		DB:            db,
		Conversations: sqlstore.NewConversationRepository(db),
		Turns:         sqlstore.NewTurnRepository(db),
		Documents:     sqlstore.NewDocumentRepository(db),
		Reports:       sqlstore.NewReportRepository(db),
	}, closeDB, nil
}

// newBackend registers the generation providers and wraps the default one
// in a retrying gateway. It also returns the model requests should name.
func newBackend(cfg config.LLMConfig, metrics *observability.Metrics) (*llm.Gateway, string, error) {
	router := llm.NewRouter(cfg.DefaultProvider)
	router.RegisterProvider(ollama.NewProvider(cfg.Ollama.Host, cfg.Ollama.DefaultModel, cfg.RequestTimeout))
	router.RegisterProvider(gemini.NewProvider(cfg.Gemini))
	router.RegisterProvider(openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.RequestTimeout))
	router.RegisterProvider(deepseek.NewProvider(cfg.DeepSeek.APIKey, cfg.DeepSeek.Model, cfg.RequestTimeout))
	router.RegisterProvider(anthropic.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, cfg.Anthropic.Model, cfg.RequestTimeout))

	for _, info := range router.GetProvidersInfo() {
		log.Debug().
			Str("provider", info.Name).
			Str("model", info.Model).
			Bool("configured", info.Configured).
			Bool("default", info.Default).
			Msg("Generation provider registered")
	}

	provider, model, err := router.Resolve(cfg.DefaultProvider, cfg.Model)
	if err != nil {
		return nil, "", err
	}

	gateway := llm.NewGateway(provider, llm.GatewayConfig{
		MaxAttempts: cfg.MaxAttempts,
		BackoffBase: cfg.BackoffBase,
	}, metrics)
	return gateway, model, nil
}
