package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: fmt.Errorf("conversation x: %w", domain.ErrNotFound), want: http.StatusNotFound},
		{name: "invalid input", err: fmt.Errorf("%w: content is empty", domain.ErrInvalidInput), want: http.StatusBadRequest},
		{name: "too large", err: domain.ErrTooLarge, want: http.StatusRequestEntityTooLarge},
		{name: "busy", err: domain.ErrBusy, want: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("disk on fire"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err, "failed")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{query: "", limit: 50, offset: 0},
		{query: "?limit=10&offset=20", limit: 10, offset: 20},
		{query: "?limit=1000", limit: 200, offset: 0},
		{query: "?limit=-1&offset=abc", limit: 50, offset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			limit, offset := pagination(r)
			assert.Equal(t, tt.limit, limit)
			assert.Equal(t, tt.offset, offset)
		})
	}
}

func TestValidationErrors(t *testing.T) {
	input := domain.ReportTextCreate{Language: "en"}
	err := validate.Struct(input)
	require.Error(t, err)

	fields, ok := validationErrors(err).(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "field is required", fields["TextContent"])
}

func TestMediaHandler_Serve(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	wav := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)
	_, err = store.Put(context.Background(), "audio/report_1.wav", wav, "audio/wav")
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/media/*", NewMediaHandler(store).Serve)

	tests := []struct {
		path   string
		status int
	}{
		{path: "/media/audio/report_1.wav", status: http.StatusOK},
		{path: "/media/audio/missing.wav", status: http.StatusNotFound},
		{path: "/media/", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
				assert.Equal(t, wav, rec.Body.Bytes())
			}
		})
	}
}
