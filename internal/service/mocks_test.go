package service

import (
	"context"
	"sync"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/llm"
	"github.com/Rrens/med-analyzer/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockConversationRepository mocks the ConversationRepository interface
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockConversationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepository) List(ctx context.Context, limit, offset int) ([]domain.Conversation, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]domain.Conversation), args.Error(1)
}

func (m *MockConversationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockTurnRepository mocks the TurnRepository interface
type MockTurnRepository struct {
	mock.Mock
}

func (m *MockTurnRepository) Create(ctx context.Context, turn *domain.Turn) error {
	args := m.Called(ctx, turn)
	return args.Error(0)
}

func (m *MockTurnRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Turn, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Turn), args.Error(1)
}

func (m *MockTurnRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.Turn, error) {
	args := m.Called(ctx, conversationID, limit)
	return args.Get(0).([]domain.Turn), args.Error(1)
}

func (m *MockTurnRepository) ListRecent(ctx context.Context, conversationID uuid.UUID, n int) ([]domain.Turn, error) {
	args := m.Called(ctx, conversationID, n)
	return args.Get(0).([]domain.Turn), args.Error(1)
}

func (m *MockTurnRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string) error {
	args := m.Called(ctx, id, content)
	return args.Error(0)
}

func (m *MockTurnRepository) Finalize(ctx context.Context, id uuid.UUID, content string, status domain.TurnStatus, isError bool) error {
	args := m.Called(ctx, id, content, status, isError)
	return args.Error(0)
}

func (m *MockTurnRepository) SetAudioPath(ctx context.Context, id uuid.UUID, path string) error {
	args := m.Called(ctx, id, path)
	return args.Error(0)
}

// MockDocumentRepository mocks the DocumentRepository interface
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Document, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).([]domain.Document), args.Error(1)
}

// MockReportRepository mocks the ReportRepository interface
type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) Create(ctx context.Context, report *domain.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Report), args.Error(1)
}

func (m *MockReportRepository) List(ctx context.Context, limit, offset int) ([]domain.Report, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]domain.Report), args.Error(1)
}

func (m *MockReportRepository) Update(ctx context.Context, report *domain.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// MockProvider mocks the llm.Provider interface.
// ChatStream feeds the []string returned by the expectation to fn.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string         { return "mock" }
func (m *MockProvider) DefaultModel() string { return "mock-model" }
func (m *MockProvider) IsConfigured() bool   { return true }

func (m *MockProvider) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.ChatResponse), args.Error(1)
}

func (m *MockProvider) ChatStream(ctx context.Context, req llm.ChatRequest, fn llm.FragmentFunc) error {
	args := m.Called(ctx, req)
	if fragments, ok := args.Get(0).([]string); ok {
		for _, f := range fragments {
			if err := fn(f); err != nil {
				return err
			}
		}
	}
	return args.Error(1)
}

// MockExtractor mocks the TextExtractor interface
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, data []byte, mime string) (string, error) {
	args := m.Called(ctx, data, mime)
	return args.String(0), args.Error(1)
}

// recordingPublisher keeps every conversation event in publish order
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

// deltas returns the assistant_delta events in order
func (p *recordingPublisher) deltas() []domain.AssistantDeltaEvent {
	var out []domain.AssistantDeltaEvent
	for _, ev := range p.received() {
		if d, ok := ev.(domain.AssistantDeltaEvent); ok {
			out = append(out, d)
		}
	}
	return out
}

// recordingStatus keeps every report status event in publish order
type recordingStatus struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (p *recordingStatus) Publish(id uuid.UUID, ev domain.StatusEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingStatus) received() []domain.StatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.StatusEvent(nil), p.events...)
}

func (p *recordingStatus) stages() []string {
	var out []string
	for _, ev := range p.received() {
		out = append(out, ev.Stage)
	}
	return out
}

type speechCall struct {
	turnID uuid.UUID
	text   string
}

// recordingSpeech records scheduled synthesis without running it
type recordingSpeech struct {
	mu    sync.Mutex
	calls []speechCall
}

func (s *recordingSpeech) SynthesizeAndNotify(conversationID, turnID uuid.UUID, text, language string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, speechCall{turnID: turnID, text: text})
	return true
}

func (s *recordingSpeech) scheduled() []speechCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speechCall(nil), s.calls...)
}

// fakeSynthesizer returns a fixed path for report audio
type fakeSynthesizer struct {
	enabled bool
	err     error
	keys    []string
}

func (f *fakeSynthesizer) Enabled() bool { return f.enabled }

func (f *fakeSynthesizer) SynthesizeNow(ctx context.Context, key, text, language string) (string, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return "", f.err
	}
	return "media/" + key, nil
}

// inlineSubmitter runs tasks synchronously on Submit
type inlineSubmitter struct {
	reject bool
}

func (s inlineSubmitter) Submit(name string, task worker.Task) bool {
	if s.reject {
		return false
	}
	_ = task(context.Background())
	return true
}

// goSubmitter runs each task on its own goroutine, like the worker pool
type goSubmitter struct {
	wg sync.WaitGroup
}

func (s *goSubmitter) Submit(name string, task worker.Task) bool {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = task(context.Background())
	}()
	return true
}
