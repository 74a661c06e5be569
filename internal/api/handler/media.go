package handler

import (
	"errors"
	"io"
	"io/fs"
	"net/http"

	"github.com/Rrens/med-analyzer/internal/api/response"
	"github.com/Rrens/med-analyzer/internal/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// sniffLen is how much of an artifact is read to detect its content type
const sniffLen = 3072

// MediaHandler serves stored uploads and audio
type MediaHandler struct {
	store storage.Store
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(store storage.Store) *MediaHandler {
	return &MediaHandler{store: store}
}

// Serve streams the artifact named by the wildcard path
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")

	rc, err := h.store.Open(r.Context(), key)
	switch {
	case errors.Is(err, storage.ErrInvalidKey):
		response.BadRequest(w, "invalid media path")
		return
	case errors.Is(err, fs.ErrNotExist):
		response.NotFound(w, "media not found")
		return
	case err != nil:
		log.Error().Err(err).Str("key", key).Msg("Failed to open media")
		response.InternalError(w, "failed to open media")
		return
	}
	defer rc.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		log.Error().Err(err).Str("key", key).Msg("Failed to read media")
		response.InternalError(w, "failed to read media")
		return
	}
	head = head[:n]

	w.Header().Set("Content-Type", mimetype.Detect(head).String())
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(head)
	if _, err := io.Copy(w, rc); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Media transfer interrupted")
	}
}
