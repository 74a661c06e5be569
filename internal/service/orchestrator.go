package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/llm"
	"github.com/Rrens/med-analyzer/internal/observability"
	"github.com/Rrens/med-analyzer/internal/security"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// User-facing messages for errored turns
const (
	MessageUnavailable = "The assistant is temporarily unavailable. Please try again in a moment."
	MessageUnreachable = "I couldn't reach the analysis engine. Please try again shortly."
	MessageGeneric     = "I apologize, but I encountered an error processing your request. Please try again."
)

// DefaultMinWords is the delta coalescing threshold
const DefaultMinWords = 10

// TurnState is a step of the generation state machine
type TurnState string

const (
	StateCreated     TurnState = "created"
	StateClassifying TurnState = "classifying"
	StateRejected    TurnState = "rejected"
	StateGreeting    TurnState = "greeting"
	StateGenerating  TurnState = "generating"
	StateStreaming   TurnState = "streaming"
	StateFinalizing  TurnState = "finalizing"
	StateCompleted   TurnState = "completed"
	StateErrored     TurnState = "errored"
)

// Backend is the generation gateway the orchestrator drives
type Backend interface {
	ProbeReachable(ctx context.Context, timeout time.Duration) bool
	Generate(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
	Stream(ctx context.Context, req llm.ChatRequest, fn llm.FragmentFunc) error
}

// Publisher delivers events to a conversation's subscribers
type Publisher interface {
	Publish(conversationID uuid.UUID, payload any)
}

// SpeechScheduler starts background synthesis for a finished turn
type SpeechScheduler interface {
	SynthesizeAndNotify(conversationID, turnID uuid.UUID, text, language string) bool
}

// OrchestratorConfig tunes generation
type OrchestratorConfig struct {
	Model           string
	Options         llm.Options
	ProbeTimeout    time.Duration
	MinWords        int
	HistoryWindow   int
	DocumentCharCap int
	Language        string
}

// Orchestrator drives one assistant turn from classification to completion
type Orchestrator struct {
	classifier *Classifier
	guardrail  *security.Guardrail
	backend    Backend
	turns      domain.TurnRepository
	events     Publisher
	speech     SpeechScheduler
	metrics    *observability.Metrics
	tracer     trace.Tracer
	cfg        OrchestratorConfig
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator; speech may be nil
func NewOrchestrator(
	guardrail *security.Guardrail,
	backend Backend,
	turns domain.TurnRepository,
	events Publisher,
	speech SpeechScheduler,
	metrics *observability.Metrics,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = llm.DefaultProbeTimeout
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = DefaultMinWords
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = llm.DefaultHistoryWindow
	}
	if cfg.DocumentCharCap <= 0 {
		cfg.DocumentCharCap = llm.DefaultDocumentCharCap
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &Orchestrator{
		classifier: NewClassifier(guardrail),
		guardrail:  guardrail,
		backend:    backend,
		turns:      turns,
		events:     events,
		speech:     speech,
		metrics:    metrics,
		tracer:     observability.Tracer(),
		cfg:        cfg,
		now:        time.Now,
	}
}

// RunInput describes one assistant turn to produce
type RunInput struct {
	// Turn is the assistant turn, already persisted empty with status streaming
	Turn *domain.Turn
	Text string
	// History is the prior conversation, oldest first, excluding Text
	History       []domain.Turn
	HasAttachment bool
	DocumentText  string
	Images        []llm.Image
	// AttachmentNote is appended to the user message when an attachment
	// could not be processed
	AttachmentNote string
	Audience       string
}

// Run produces the assistant turn. It never returns an error: every failure
// ends in the errored state with a fixed message persisted and published.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) *domain.Turn {
	start := o.now()
	turn := in.Turn

	ctx, span := o.tracer.Start(ctx, "orchestrator.Run",
		trace.WithAttributes(attribute.String("turn.id", turn.ID.String())))
	defer span.End()

	o.transition(turn, StateCreated, StateClassifying)
	route := o.classifier.Classify(ClassifyInput{
		Text:          in.Text,
		HasAttachment: in.HasAttachment,
		DocumentText:  in.DocumentText,
		Images:        in.Images,
		Audience:      in.Audience,
	})
	span.SetAttributes(attribute.String("turn.route", string(route.Kind())))

	var (
		content string
		from    TurnState
		err     error
	)
	switch r := route.(type) {
	case GreetingRoute:
		o.transition(turn, StateClassifying, StateGreeting)
		content, from = r.Reply, StateGreeting
	case RejectedRoute:
		o.transition(turn, StateClassifying, StateRejected)
		content, from = r.Reason, StateRejected
	case DocumentSummaryRoute:
		o.transition(turn, StateClassifying, StateGenerating)
		content, err = o.generate(ctx, turn, llm.BuildSummaryMessages(string(r.Audience), o.cfg.Language, r.DocumentText))
		from = StateFinalizing
	case FreeformChatRoute:
		o.transition(turn, StateClassifying, StateGenerating)
		content, err = o.generate(ctx, turn, o.chatMessages(in, r))
		from = StateFinalizing
	default:
		err = fmt.Errorf("unhandled route %T", route)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.fail(ctx, turn, route.Kind(), err)
		o.metrics.TurnFinished(string(route.Kind()), "errored", o.now().Sub(start))
		return turn
	}

	if !o.complete(ctx, turn, from, content) {
		o.metrics.TurnFinished(string(route.Kind()), "errored", o.now().Sub(start))
		return turn
	}

	o.metrics.TurnFinished(string(route.Kind()), "completed", o.now().Sub(start))
	if o.speech != nil {
		o.speech.SynthesizeAndNotify(turn.ConversationID, turn.ID, turn.Content, o.cfg.Language)
	}
	return turn
}

func (o *Orchestrator) chatMessages(in RunInput, r FreeformChatRoute) []llm.Message {
	history := make([]llm.HistoryEntry, 0, len(in.History))
	for _, t := range in.History {
		history = append(history, llm.HistoryEntry{Role: string(t.Role), Content: t.Content})
	}

	message := in.Text
	if r.DocumentText != "" {
		message += llm.DocumentContext(r.DocumentText, o.cfg.DocumentCharCap)
	}
	message += in.AttachmentNote

	return llm.BuildChatMessages(history, o.cfg.HistoryWindow, message, r.Images)
}

// errUnreachable marks a failed reachability probe
var errUnreachable = errors.New("backend unreachable")

// generate probes the backend and streams the completion, persisting and
// publishing coalesced progress. It returns the guarded final text.
func (o *Orchestrator) generate(ctx context.Context, turn *domain.Turn, messages []llm.Message) (string, error) {
	if !o.backend.ProbeReachable(ctx, o.cfg.ProbeTimeout) {
		return "", errUnreachable
	}

	o.transition(turn, StateGenerating, StateStreaming)

	var (
		acc      strings.Builder
		pending  strings.Builder
		first    = true
		started  = o.now()
		streamed = 0
	)

	req := llm.ChatRequest{Model: o.cfg.Model, Messages: messages, Options: o.cfg.Options}
	err := o.backend.Stream(ctx, req, func(fragment string) error {
		if first {
			o.metrics.FirstFragment(o.now().Sub(started))
			first = false
		}
		acc.WriteString(fragment)
		pending.WriteString(fragment)

		if !shouldFlush(pending.String(), o.cfg.MinWords) {
			return nil
		}
		pending.Reset()
		streamed++

		soFar := acc.String()
		if err := o.turns.UpdateContent(ctx, turn.ID, soFar); err != nil {
			log.Warn().Err(err).Str("turn_id", turn.ID.String()).Msg("Failed to persist streamed content")
		}
		turn.Content = soFar
		o.events.Publish(turn.ConversationID, domain.NewAssistantDelta(turn.ID, soFar, false))
		return nil
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(acc.String())
	if text == "" {
		return "", errors.New("backend returned an empty response")
	}

	log.Debug().Str("turn_id", turn.ID.String()).Int("deltas", streamed).Msg("Stream finished")
	o.transition(turn, StateStreaming, StateFinalizing)
	return o.guard(turn.ID, text), nil
}

// complete persists content as final and publishes the final event
func (o *Orchestrator) complete(ctx context.Context, turn *domain.Turn, from TurnState, content string) bool {
	if err := o.turns.Finalize(ctx, turn.ID, content, domain.TurnCompleted, false); err != nil {
		log.Error().Err(err).Str("turn_id", turn.ID.String()).Msg("Failed to finalize turn")
		o.fail(ctx, turn, "", err)
		return false
	}

	turn.Content = content
	turn.Status = domain.TurnCompleted
	turn.Error = false
	o.transition(turn, from, StateCompleted)
	o.events.Publish(turn.ConversationID, domain.NewAssistantDelta(turn.ID, content, true))
	return true
}

// fail moves the turn to the errored state with the message for err
func (o *Orchestrator) fail(ctx context.Context, turn *domain.Turn, route RouteKind, err error) {
	message := ErrorMessage(err)

	event := log.Error()
	if errors.Is(err, errUnreachable) {
		event = log.Warn()
	}
	event.Err(err).
		Str("conversation_id", turn.ConversationID.String()).
		Str("turn_id", turn.ID.String()).
		Str("route", string(route)).
		Msg("Assistant turn failed")

	if ferr := o.turns.Finalize(ctx, turn.ID, message, domain.TurnErrored, true); ferr != nil {
		log.Error().Err(ferr).Str("turn_id", turn.ID.String()).Msg("Failed to persist errored turn")
	}

	turn.Content = message
	turn.Status = domain.TurnErrored
	turn.Error = true
	o.transition(turn, "", StateErrored)
	o.events.Publish(turn.ConversationID, domain.NewAssistantDelta(turn.ID, message, true))
}

// guard applies the output filter and audits substitutions
func (o *Orchestrator) guard(turnID uuid.UUID, text string) string {
	filtered, verdict := o.guardrail.FilterOutput(text)
	if verdict.Triggered() {
		log.Warn().
			Str("turn_id", turnID.String()).
			Str("category", string(verdict.Category)).
			Str("pattern", verdict.Pattern).
			Msg("Guardrail replaced generated output")
		o.metrics.GuardrailHit(string(verdict.Category))
	}
	return filtered
}

func (o *Orchestrator) transition(turn *domain.Turn, from, to TurnState) {
	log.Debug().
		Str("turn_id", turn.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Turn state")
}

// Summarize runs a non-streaming summary of text for audience
func (o *Orchestrator) Summarize(ctx context.Context, audience domain.Audience, language, text string) (string, error) {
	return o.batch(ctx, llm.BuildSummaryMessages(string(audience), language, text))
}

// DescribeImage runs a non-streaming description of a medical image
func (o *Orchestrator) DescribeImage(ctx context.Context, language string, image llm.Image) (string, error) {
	return o.batch(ctx, llm.BuildImageMessages(language, image))
}

func (o *Orchestrator) batch(ctx context.Context, messages []llm.Message) (string, error) {
	resp, err := o.backend.Generate(ctx, llm.ChatRequest{Model: o.cfg.Model, Messages: messages, Options: o.cfg.Options})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content())
	if text == "" {
		return "", errors.New("backend returned an empty response")
	}
	return o.guard(uuid.Nil, text), nil
}

// ErrorMessage maps a generation failure to the message shown to the user
func ErrorMessage(err error) string {
	var connErr *llm.ConnectionError
	var exhausted *llm.RetriesExhaustedError
	switch {
	case errors.Is(err, errUnreachable):
		return MessageUnavailable
	case errors.As(err, &exhausted), errors.As(err, &connErr):
		return MessageUnreachable
	default:
		return MessageGeneric
	}
}

// shouldFlush reports whether pending text is worth a delta event
func shouldFlush(pending string, minWords int) bool {
	trimmed := strings.TrimRightFunc(pending, unicode.IsSpace)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	if strings.HasSuffix(pending, "\n") {
		return true
	}
	return len(strings.Fields(pending)) >= minWords
}
