package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Rrens/med-analyzer/internal/api/response"
	"github.com/rs/zerolog/log"
)

// Pinger checks database connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendProber checks generation backend reachability
type BackendProber interface {
	ProviderName() string
	ProbeReachable(ctx context.Context, timeout time.Duration) bool
}

// Readiness reports whether a dependency can serve requests
type Readiness interface {
	Ready(ctx context.Context) error
}

// HealthHandler serves liveness and readiness endpoints
type HealthHandler struct {
	db           Pinger
	backend      BackendProber
	tts          Readiness
	probeTimeout time.Duration
}

// NewHealthHandler creates a health handler; tts may be nil when disabled
func NewHealthHandler(db Pinger, backend BackendProber, tts Readiness, probeTimeout time.Duration) *HealthHandler {
	return &HealthHandler{db: db, backend: backend, tts: tts, probeTimeout: probeTimeout}
}

// Health reports liveness with the state of the database and backend.
// It answers 200 while the process runs.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	database := "ok"
	if err := h.db.Ping(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Health check: database ping failed")
		database = "unavailable"
	}

	backend, provider := "unreachable", ""
	if h.backend != nil {
		provider = h.backend.ProviderName()
		if h.backend.ProbeReachable(r.Context(), h.probeTimeout) {
			backend = "reachable"
		}
	}

	response.OK(w, map[string]string{
		"status":   "ok",
		"database": database,
		"backend":  backend,
		"provider": provider,
	})
}

// Ready returns readiness status including database connectivity
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		response.Unavailable(w, "database not ready")
		return
	}

	response.OK(w, map[string]string{
		"status": "ready",
	})
}

// TTS reports speech engine readiness
func (h *HealthHandler) TTS(w http.ResponseWriter, r *http.Request) {
	if h.tts == nil {
		response.Unavailable(w, "speech synthesis disabled")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.tts.Ready(ctx); err != nil {
		log.Warn().Err(err).Msg("Speech engine not ready")
		response.Unavailable(w, "speech engine not ready")
		return
	}

	response.OK(w, map[string]string{
		"status": "ready",
	})
}
