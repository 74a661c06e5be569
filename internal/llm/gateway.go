package llm

import (
	"context"
	"errors"
	"time"

	"github.com/Rrens/med-analyzer/internal/observability"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Gateway defaults
const (
	DefaultMaxAttempts  = 3
	DefaultBackoffBase  = 600 * time.Millisecond
	DefaultProbeTimeout = 800 * time.Millisecond
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// GatewayConfig configures retries
type GatewayConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	// Sleep replaces the wait between attempts, mainly in tests
	Sleep SleepFunc
}

// Gateway wraps a provider with a reachability probe and bounded
// exponential-backoff retries on connection failures.
type Gateway struct {
	provider    Provider
	maxAttempts int
	backoffBase time.Duration
	sleep       SleepFunc
	metrics     *observability.Metrics
	tracer      trace.Tracer
}

// NewGateway creates a gateway over provider
func NewGateway(provider Provider, cfg GatewayConfig, metrics *observability.Metrics) *Gateway {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &Gateway{
		provider:    provider,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		sleep:       cfg.Sleep,
		metrics:     metrics,
		tracer:      observability.Tracer(),
	}
}

// ProviderName names the wrapped backend
func (g *Gateway) ProviderName() string {
	return g.provider.Name()
}

// schedule is base, 2*base, 4*base ... with no jitter
func (g *Gateway) schedule() *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     g.backoffBase,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         g.backoffBase << g.maxAttempts,
	}
}

// Backoff returns the wait after the given failed attempt (1-based)
func (g *Gateway) Backoff(attempt int) time.Duration {
	b := g.schedule()
	b.Reset()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// ProbeReachable checks the backend within timeout. It never returns an error.
func (g *Gateway) ProbeReachable(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := g.provider.Ping(ctx)
	reachable := err == nil
	g.metrics.BackendProbe(reachable)
	if !reachable {
		log.Warn().Err(err).Str("provider", g.provider.Name()).Msg("Backend not reachable")
	}
	return reachable
}

// Generate runs a batch chat call, retrying connection failures
func (g *Gateway) Generate(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, span := g.tracer.Start(ctx, "llm.Generate",
		trace.WithAttributes(attribute.String("llm.provider", g.provider.Name()), attribute.String("llm.model", req.Model)))
	defer span.End()

	var resp *ChatResponse
	err := g.withRetry(ctx, func() error {
		var err error
		resp, err = g.provider.Chat(ctx, req)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

// Stream runs a streaming chat call. Connection failures are retried only
// until the first fragment reaches fn; after that any failure is terminal.
func (g *Gateway) Stream(ctx context.Context, req ChatRequest, fn FragmentFunc) error {
	ctx, span := g.tracer.Start(ctx, "llm.Stream",
		trace.WithAttributes(attribute.String("llm.provider", g.provider.Name()), attribute.String("llm.model", req.Model)))
	defer span.End()

	delivered := false
	err := g.withRetry(ctx, func() error {
		err := g.provider.ChatStream(ctx, req, func(fragment string) error {
			delivered = true
			return fn(fragment)
		})
		if err != nil && delivered {
			return &terminalError{err: err}
		}
		return err
	})
	if t, ok := err.(*terminalError); ok {
		err = t.err
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (g *Gateway) withRetry(ctx context.Context, call func() error) error {
	name := g.provider.Name()

	var (
		attempts int
		lastErr  error
	)
	paced := &pacedBackOff{
		ctx:      ctx,
		schedule: g.schedule(),
		sleep:    g.sleep,
		onWait: func(wait time.Duration) {
			log.Warn().
				Err(lastErr).
				Str("provider", name).
				Int("attempt", attempts).
				Dur("backoff", wait).
				Msg("Backend call failed, retrying")
		},
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := call()
		if err == nil {
			g.metrics.BackendAttempt(name, "success")
			return struct{}{}, nil
		}
		lastErr = err

		if _, terminal := err.(*terminalError); terminal || !IsRetryable(err) {
			g.metrics.BackendAttempt(name, "failed")
			return struct{}{}, backoff.Permanent(err)
		}
		if attempts == g.maxAttempts {
			g.metrics.BackendAttempt(name, "exhausted")
		} else {
			g.metrics.BackendAttempt(name, "retry")
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(paced),
		backoff.WithMaxTries(uint(g.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	if attempts == g.maxAttempts && IsRetryable(lastErr) {
		return &RetriesExhaustedError{Attempts: attempts, Err: lastErr}
	}
	// cancelled while waiting between attempts
	return lastErr
}

// pacedBackOff waits out each delay of the schedule through sleep and then
// lets Retry continue at once, so the wait between attempts stays
// replaceable.
type pacedBackOff struct {
	ctx      context.Context
	schedule backoff.BackOff
	sleep    SleepFunc
	onWait   func(time.Duration)
}

func (b *pacedBackOff) NextBackOff() time.Duration {
	wait := b.schedule.NextBackOff()
	if wait == backoff.Stop {
		return backoff.Stop
	}
	b.onWait(wait)
	if err := b.sleep(b.ctx, wait); err != nil {
		return backoff.Stop
	}
	return 0
}

func (b *pacedBackOff) Reset() { b.schedule.Reset() }

// terminalError marks a stream failure after fragments were delivered
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
