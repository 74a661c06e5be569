package api

import (
	"net/http"

	"github.com/Rrens/med-analyzer/internal/api/handler"
	customMiddleware "github.com/Rrens/med-analyzer/internal/api/middleware"
	"github.com/Rrens/med-analyzer/internal/config"
	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/events"
	"github.com/Rrens/med-analyzer/internal/extract"
	"github.com/Rrens/med-analyzer/internal/llm"
	"github.com/Rrens/med-analyzer/internal/observability"
	"github.com/Rrens/med-analyzer/internal/security"
	"github.com/Rrens/med-analyzer/internal/service"
	"github.com/Rrens/med-analyzer/internal/storage"
	"github.com/Rrens/med-analyzer/internal/tts"
	"github.com/Rrens/med-analyzer/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Repositories groups the persistence layer of the selected driver
type Repositories struct {
	DB            handler.Pinger
	Conversations domain.ConversationRepository
	Turns         domain.TurnRepository
	Documents     domain.DocumentRepository
	Reports       domain.ReportRepository
}

// Dependencies are the long-lived components the router wires together
type Dependencies struct {
	Repos     Repositories
	Store     storage.Store
	Backend   *llm.Gateway
	Model     string
	Hub       *events.Hub
	Queues    *events.Queues
	Pool      *worker.Pool
	Extractor *extract.Extractor
	Speech    *tts.Trigger
	// Limiter is nil when redis is disabled
	Limiter  customMiddleware.Limiter
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(customMiddleware.Recoverer)
	r.Use(customMiddleware.Metrics(deps.Metrics))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Generation
	orchestrator := service.NewOrchestrator(
		security.NewGuardrail(),
		deps.Backend,
		deps.Repos.Turns,
		deps.Hub,
		deps.Speech,
		deps.Metrics,
		service.OrchestratorConfig{
			Model: deps.Model,
			Options: llm.Options{
				Temperature: cfg.LLM.Temperature,
				TopP:        cfg.LLM.TopP,
				NumPredict:  cfg.LLM.NumPredict,
			},
			ProbeTimeout:    cfg.LLM.ProbeTimeout,
			MinWords:        cfg.Stream.MinWords,
			HistoryWindow:   cfg.LLM.HistoryWindow,
			DocumentCharCap: cfg.LLM.DocumentCharCap,
			Language:        cfg.LLM.ReportLanguage,
		},
	)

	// Initialize services
	chatService := service.NewChatService(
		deps.Repos.Conversations,
		deps.Repos.Turns,
		deps.Repos.Documents,
		deps.Store,
		deps.Extractor,
		orchestrator,
		deps.Hub,
		cfg.LLM.HistoryWindow,
	)
	reportService := service.NewReportService(
		deps.Repos.Reports,
		deps.Queues,
		deps.Pool,
		deps.Store,
		deps.Extractor,
		orchestrator,
		deps.Speech,
		deps.Metrics,
		cfg.Server.MaxUploadBytes,
	)

	// Initialize handlers
	var ttsReadiness handler.Readiness
	if deps.Speech != nil && deps.Speech.Enabled() {
		ttsReadiness = deps.Speech
	}
	healthHandler := handler.NewHealthHandler(deps.Repos.DB, deps.Backend, ttsReadiness, cfg.LLM.ProbeTimeout)
	chatHandler := handler.NewChatHandler(chatService, cfg.Server.MaxUploadBytes)
	eventHandler := handler.NewEventHandler(deps.Hub, chatService, cfg.Server.AllowedOrigins)
	reportHandler := handler.NewReportHandler(reportService, deps.Queues, cfg.Server.MaxUploadBytes)
	mediaHandler := handler.NewMediaHandler(deps.Store)

	rateLimit := customMiddleware.NewRateLimitMiddleware(deps.Limiter)

	if cfg.Metrics.Enabled && deps.Gatherer != nil {
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/media/*", mediaHandler.Serve)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", healthHandler.Health)
		r.Get("/ready", healthHandler.Ready)
		r.Get("/infra/tts", healthHandler.TTS)

		// Websocket connections outlive the request timeout
		r.Get("/chat/ws/sessions/{sessionID}", eventHandler.Subscribe)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

			r.Route("/chat/sessions", func(r chi.Router) {
				r.Get("/", chatHandler.List)
				r.Post("/", chatHandler.Create)

				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", chatHandler.Get)
					r.Delete("/", chatHandler.Delete)
					r.Get("/messages", chatHandler.Messages)
					r.Get("/documents", chatHandler.Documents)
					r.With(rateLimit.Limit).Post("/messages", chatHandler.PostMessage)
				})
			})

			r.Route("/reports", func(r chi.Router) {
				r.Get("/", reportHandler.List)
				r.With(rateLimit.Limit).Post("/text", reportHandler.SubmitText)
				r.With(rateLimit.Limit).Post("/files", reportHandler.SubmitFiles)

				r.Route("/{reportID}", func(r chi.Router) {
					r.Get("/", reportHandler.Get)
					r.Get("/events", reportHandler.Events)
				})
			})
		})
	})

	return r
}
