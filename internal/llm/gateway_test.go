package llm_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Rrens/med-analyzer/internal/llm"
	"github.com/Rrens/med-analyzer/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider returns queued errors before succeeding
type stubProvider struct {
	mu          sync.Mutex
	errs        []error
	fragments   []string
	failAfter   int
	pingErr     error
	chatCalls   int
	streamCalls int
	pingCalls   int
}

func (p *stubProvider) Name() string         { return "stub" }
func (p *stubProvider) DefaultModel() string { return "stub-model" }
func (p *stubProvider) IsConfigured() bool   { return true }

func (p *stubProvider) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pingCalls++
	return p.pingErr
}

func (p *stubProvider) nextErr() error {
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	if len(p.errs) > 1 {
		p.errs = p.errs[1:]
	}
	return err
}

func (p *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chatCalls++
	if err := p.nextErr(); err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: "ok"}, Done: true}, nil
}

func (p *stubProvider) ChatStream(ctx context.Context, req llm.ChatRequest, fn llm.FragmentFunc) error {
	p.mu.Lock()
	p.streamCalls++
	err := p.nextErr()
	p.mu.Unlock()

	for i, f := range p.fragments {
		if p.failAfter > 0 && i == p.failAfter {
			return &llm.ConnectionError{Op: "stream", Err: errors.New("connection reset")}
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return err
}

type sleepRecorder struct {
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.sleeps = append(s.sleeps, d)
	return nil
}

func connRefused() error {
	return &llm.ConnectionError{Op: "chat", Err: errors.New("connection refused")}
}

func TestGateway_GenerateRetriesConnectionErrors(t *testing.T) {
	provider := &stubProvider{errs: []error{connRefused()}}
	rec := &sleepRecorder{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	gw := llm.NewGateway(provider, llm.GatewayConfig{MaxAttempts: 3, BackoffBase: 600 * time.Millisecond, Sleep: rec.sleep}, metrics)

	resp, err := gw.Generate(context.Background(), llm.ChatRequest{Model: "m"})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, 3, provider.chatCalls)
	assert.Equal(t, []time.Duration{600 * time.Millisecond, 1200 * time.Millisecond}, rec.sleeps)
	for i := 1; i < len(rec.sleeps); i++ {
		assert.GreaterOrEqual(t, rec.sleeps[i], rec.sleeps[i-1])
	}

	var exhausted *llm.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.True(t, llm.IsRetryable(err), "original connection error stays reachable")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BackendAttemptsTotal.WithLabelValues("stub", "retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BackendAttemptsTotal.WithLabelValues("stub", "exhausted")))
}

func TestGateway_GenerateRecovers(t *testing.T) {
	provider := &stubProvider{errs: []error{connRefused(), nil}}
	rec := &sleepRecorder{}
	gw := llm.NewGateway(provider, llm.GatewayConfig{MaxAttempts: 3, BackoffBase: time.Second, Sleep: rec.sleep}, nil)

	resp, err := gw.Generate(context.Background(), llm.ChatRequest{})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content())
	assert.Equal(t, 2, provider.chatCalls)
	assert.Equal(t, []time.Duration{time.Second}, rec.sleeps)
}

func TestGateway_GenerateDoesNotRetryStatusErrors(t *testing.T) {
	statusErr := &llm.StatusError{StatusCode: 404, Message: "model not found"}
	provider := &stubProvider{errs: []error{statusErr}}
	rec := &sleepRecorder{}
	gw := llm.NewGateway(provider, llm.GatewayConfig{Sleep: rec.sleep}, nil)

	_, err := gw.Generate(context.Background(), llm.ChatRequest{})

	assert.Same(t, statusErr, err)
	assert.Equal(t, 1, provider.chatCalls)
	assert.Empty(t, rec.sleeps)
}

func TestGateway_StreamRetriesBeforeFirstFragment(t *testing.T) {
	provider := &stubProvider{errs: []error{connRefused(), nil}}
	rec := &sleepRecorder{}
	gw := llm.NewGateway(provider, llm.GatewayConfig{Sleep: rec.sleep}, nil)

	// first attempt fails before any fragment because fragments are empty
	err := gw.Stream(context.Background(), llm.ChatRequest{}, func(string) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, 2, provider.streamCalls)
	assert.Equal(t, []time.Duration{llm.DefaultBackoffBase}, rec.sleeps)
}

func TestGateway_StreamFailureAfterFragmentIsTerminal(t *testing.T) {
	provider := &stubProvider{fragments: []string{"Hello", " world", "!"}, failAfter: 2}
	rec := &sleepRecorder{}
	gw := llm.NewGateway(provider, llm.GatewayConfig{Sleep: rec.sleep}, nil)

	var got []string
	err := gw.Stream(context.Background(), llm.ChatRequest{}, func(f string) error {
		got = append(got, f)
		return nil
	})

	require.Error(t, err)
	assert.True(t, llm.IsRetryable(err))
	assert.Equal(t, []string{"Hello", " world"}, got)
	assert.Equal(t, 1, provider.streamCalls)
	assert.Empty(t, rec.sleeps)
}

func TestGateway_ProbeReachable(t *testing.T) {
	up := &stubProvider{}
	down := &stubProvider{pingErr: errors.New("dial tcp: connection refused")}

	assert.True(t, llm.NewGateway(up, llm.GatewayConfig{}, nil).ProbeReachable(context.Background(), 50*time.Millisecond))
	assert.False(t, llm.NewGateway(down, llm.GatewayConfig{}, nil).ProbeReachable(context.Background(), 50*time.Millisecond))
	assert.Equal(t, 1, down.pingCalls)
}

func TestGateway_Backoff(t *testing.T) {
	gw := llm.NewGateway(&stubProvider{}, llm.GatewayConfig{BackoffBase: 100 * time.Millisecond}, nil)

	assert.Equal(t, 100*time.Millisecond, gw.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, gw.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, gw.Backoff(3))
}

func TestGateway_CancelledWaitReturnsLastError(t *testing.T) {
	refused := connRefused()
	provider := &stubProvider{errs: []error{refused}}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	gw := llm.NewGateway(provider, llm.GatewayConfig{
		Sleep: func(ctx context.Context, d time.Duration) error { return context.Canceled },
	}, metrics)

	_, err := gw.Generate(context.Background(), llm.ChatRequest{})

	assert.Same(t, refused, err)
	assert.Equal(t, 1, provider.chatCalls)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.BackendAttemptsTotal.WithLabelValues("stub", "exhausted")))
}

func TestGateway_SingleAttemptExhausts(t *testing.T) {
	provider := &stubProvider{errs: []error{connRefused()}}
	rec := &sleepRecorder{}
	gw := llm.NewGateway(provider, llm.GatewayConfig{MaxAttempts: 1, Sleep: rec.sleep}, nil)

	_, err := gw.Generate(context.Background(), llm.ChatRequest{})

	var exhausted *llm.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.Empty(t, rec.sleeps)
	assert.Equal(t, "stub", gw.ProviderName())
}
