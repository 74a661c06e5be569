package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/observability"
	"github.com/Rrens/med-analyzer/internal/storage"
	"github.com/Rrens/med-analyzer/internal/worker"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrDisabled is returned when synthesis is turned off
var ErrDisabled = errors.New("speech synthesis disabled")

const synthesisTimeout = 3 * time.Minute

// Submitter schedules background work
type Submitter interface {
	Submit(name string, task worker.Task) bool
}

// Publisher delivers events to a conversation's subscribers
type Publisher interface {
	Publish(conversationID uuid.UUID, payload any)
}

// AudioRecorder stores the audio path on a turn
type AudioRecorder interface {
	SetAudioPath(ctx context.Context, id uuid.UUID, path string) error
}

// Trigger schedules speech synthesis for finished turns
type Trigger struct {
	engine  Engine
	store   storage.Store
	pool    Submitter
	turns   AudioRecorder
	events  Publisher
	metrics *observability.Metrics
	tracer  trace.Tracer
	enabled bool
}

// NewTrigger creates a trigger. With enabled false every request is a no-op.
func NewTrigger(engine Engine, store storage.Store, pool Submitter, turns AudioRecorder,
	events Publisher, metrics *observability.Metrics, enabled bool) *Trigger {
	return &Trigger{
		engine:  engine,
		store:   store,
		pool:    pool,
		turns:   turns,
		events:  events,
		metrics: metrics,
		tracer:  observability.Tracer(),
		enabled: enabled && engine != nil,
	}
}

// Enabled reports whether synthesis runs at all
func (t *Trigger) Enabled() bool {
	return t.enabled
}

// AudioKey is the storage key for a new audio artifact
func AudioKey() string {
	return fmt.Sprintf("audio/%s_response.wav", uuid.NewString())
}

// SynthesizeAndNotify returns immediately. In the background it synthesizes
// text, records the audio path on the turn and publishes audio_ready.
// Failures are logged and leave the turn without audio.
func (t *Trigger) SynthesizeAndNotify(conversationID, turnID uuid.UUID, text, language string) bool {
	if !t.enabled {
		return false
	}

	return t.pool.Submit("tts:"+turnID.String(), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, synthesisTimeout)
		defer cancel()

		path, err := t.SynthesizeNow(ctx, AudioKey(), text, language)
		if err != nil {
			log.Error().Err(err).
				Str("conversation_id", conversationID.String()).
				Str("turn_id", turnID.String()).
				Msg("Background speech synthesis failed")
			return nil
		}

		if err := t.turns.SetAudioPath(ctx, turnID, path); err != nil {
			return fmt.Errorf("failed to record audio path: %w", err)
		}

		t.events.Publish(conversationID, domain.NewAudioReady(turnID, path))
		log.Info().Str("turn_id", turnID.String()).Str("path", path).Msg("Audio ready")
		return nil
	})
}

// SynthesizeNow synthesizes text and stores it under key
func (t *Trigger) SynthesizeNow(ctx context.Context, key, text, language string) (string, error) {
	if !t.enabled {
		return "", ErrDisabled
	}

	ctx, span := t.tracer.Start(ctx, "tts.Synthesize",
		trace.WithAttributes(attribute.Int("tts.chars", len(text)), attribute.String("tts.language", language)))
	defer span.End()

	audio, err := t.engine.Synthesize(ctx, text, language)
	if err != nil {
		t.metrics.Synthesis("failed")
		span.RecordError(err)
		return "", err
	}

	path, err := t.store.Put(ctx, key, audio, "audio/wav")
	if err != nil {
		t.metrics.Synthesis("failed")
		span.RecordError(err)
		return "", err
	}

	t.metrics.Synthesis("ok")
	return path, nil
}

// Ready reports whether the engine can serve requests
func (t *Trigger) Ready(ctx context.Context) error {
	if !t.enabled {
		return ErrDisabled
	}
	return t.engine.Ready(ctx)
}
