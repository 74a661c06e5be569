package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Rrens/med-analyzer/internal/config"
	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/storage"
	"github.com/Rrens/med-analyzer/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEngine_Synthesize(t *testing.T) {
	var got synthesisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	engine := NewHTTPEngine(config.TTSConfig{URL: srv.URL + "/synthesize"})
	audio, err := engine.Synthesize(t.Context(), "Your results look normal.", "en")

	require.NoError(t, err)
	assert.Equal(t, "RIFFdata", string(audio))
	assert.Equal(t, DefaultVoice, got.Voice)
	assert.Equal(t, 1.0, got.Speed)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, 24000, got.SampleRate)
}

func TestHTTPEngine_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	engine := NewHTTPEngine(config.TTSConfig{URL: srv.URL + "/synthesize"})

	_, err := engine.Synthesize(t.Context(), "   ", "en")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = engine.Synthesize(t.Context(), "hello", "en")
	assert.ErrorContains(t, err, "503")

	assert.Error(t, engine.Ready(t.Context()))
}

func TestHTTPEngine_Ready(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	engine := NewHTTPEngine(config.TTSConfig{URL: srv.URL + "/synthesize"})
	assert.NoError(t, engine.Ready(t.Context()))
}

type fakeEngine struct {
	audio []byte
	err   error
}

func (f *fakeEngine) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	return f.audio, f.err
}

func (f *fakeEngine) Ready(ctx context.Context) error { return f.err }

type recordingTurns struct {
	mu    sync.Mutex
	paths map[uuid.UUID]string
}

func (r *recordingTurns) SetAudioPath(ctx context.Context, id uuid.UUID, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[id] = path
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(conversationID uuid.UUID, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload)
}

func (p *recordingPublisher) received() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.events...)
}

func newTestTrigger(t *testing.T, engine Engine) (*Trigger, *worker.Pool, *recordingTurns, *recordingPublisher) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	pool := worker.NewPool(1, 4, nil)
	turns := &recordingTurns{paths: map[uuid.UUID]string{}}
	pub := &recordingPublisher{}
	return NewTrigger(engine, store, pool, turns, pub, nil, true), pool, turns, pub
}

func TestTrigger_SuccessPublishesAudioReady(t *testing.T) {
	trigger, pool, turns, pub := newTestTrigger(t, &fakeEngine{audio: []byte("RIFF")})
	conv, turn := uuid.New(), uuid.New()

	require.True(t, trigger.SynthesizeAndNotify(conv, turn, "All values are within range.", "en"))
	require.NoError(t, pool.Shutdown(context.Background()))

	events := pub.received()
	require.Len(t, events, 1)
	ev := events[0].(domain.AudioReadyEvent)
	assert.Equal(t, domain.EventAudioReady, ev.Type)
	assert.Equal(t, turn, ev.MessageID)
	assert.Regexp(t, `^media/audio/[0-9a-f-]{36}_response\.wav$`, ev.AudioFilePath)
	assert.Equal(t, ev.AudioFilePath, turns.paths[turn])
}

func TestTrigger_FailureIsIsolated(t *testing.T) {
	trigger, pool, turns, pub := newTestTrigger(t, &fakeEngine{err: errors.New("engine crashed")})

	require.True(t, trigger.SynthesizeAndNotify(uuid.New(), uuid.New(), "text", "en"))
	require.NoError(t, pool.Shutdown(context.Background()))

	assert.Empty(t, pub.received())
	assert.Empty(t, turns.paths)
}

func TestTrigger_Disabled(t *testing.T) {
	trigger := NewTrigger(&fakeEngine{}, nil, nil, nil, nil, nil, false)

	assert.False(t, trigger.SynthesizeAndNotify(uuid.New(), uuid.New(), "text", "en"))
	_, err := trigger.SynthesizeNow(context.Background(), AudioKey(), "text", "en")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, trigger.Ready(context.Background()), ErrDisabled)
}

func TestTrigger_SynthesizeNowReturnsPromptly(t *testing.T) {
	trigger, pool, _, _ := newTestTrigger(t, &fakeEngine{audio: []byte("RIFF")})
	defer pool.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	path, err := trigger.SynthesizeNow(ctx, "audio/report_1.wav", "summary", "en")

	require.NoError(t, err)
	assert.Equal(t, "media/audio/report_1.wav", path)
}
