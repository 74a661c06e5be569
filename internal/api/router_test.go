package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rrens/med-analyzer/internal/config"
	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/events"
	"github.com/Rrens/med-analyzer/internal/extract"
	"github.com/Rrens/med-analyzer/internal/llm"
	"github.com/Rrens/med-analyzer/internal/llm/ollama"
	"github.com/Rrens/med-analyzer/internal/observability"
	"github.com/Rrens/med-analyzer/internal/repository/sqlstore"
	"github.com/Rrens/med-analyzer/internal/storage"
	"github.com/Rrens/med-analyzer/internal/tts"
	"github.com/Rrens/med-analyzer/internal/worker"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stubAnswer = "LDL carries cholesterol through the blood. Higher levels raise cardiovascular risk."

// stubOllama answers /api/chat like an Ollama server, in three stream chunks
type stubOllama struct {
	calls atomic.Int32
}

func (s *stubOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/chat" {
		w.WriteHeader(http.StatusOK)
		return
	}
	s.calls.Add(1)

	var req struct {
		Stream bool `json:"stream"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	w.Header().Set("Content-Type", "application/x-ndjson")
	if !req.Stream {
		fmt.Fprintf(w, `{"model":"medgemma","message":{"role":"assistant","content":%q},"done":true}`, stubAnswer)
		return
	}

	chunks := []string{"LDL carries cholesterol through the blood. ", "Higher levels raise ", "cardiovascular risk."}
	for _, c := range chunks {
		fmt.Fprintf(w, "{\"message\":{\"role\":\"assistant\",\"content\":%q},\"done\":false}\n", c)
		w.(http.Flusher).Flush()
	}
	fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
}

type testServer struct {
	*httptest.Server
	backend *stubOllama
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	dbCfg := config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	}
	require.NoError(t, sqlstore.RunMigrations(dbCfg))
	db, err := sqlstore.NewDB(ctx, dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	stub := &stubOllama{}
	backendSrv := httptest.NewServer(stub)
	t.Cleanup(backendSrv.Close)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	pool := worker.NewPool(2, 8, metrics)
	t.Cleanup(func() { pool.Shutdown(context.Background()) })
	hub := events.NewHub(16, metrics)
	t.Cleanup(hub.Close)

	turns := sqlstore.NewTurnRepository(db)
	gateway := llm.NewGateway(ollama.NewProvider(backendSrv.URL, "medgemma", 5*time.Second), llm.GatewayConfig{
		MaxAttempts: 1,
		BackoffBase: time.Millisecond,
	}, metrics)

	cfg := &config.Config{
		Server: config.ServerConfig{
			MiddlewareTimeout: 30 * time.Second,
			MaxUploadBytes:    1 << 20,
			AllowedOrigins:    []string{"*"},
		},
		LLM: config.LLMConfig{
			ProbeTimeout:    2 * time.Second,
			HistoryWindow:   5,
			DocumentCharCap: 2000,
			ReportLanguage:  "en",
		},
		Stream:  config.StreamConfig{MinWords: 3},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}

	router := NewRouter(cfg, Dependencies{
		Repos: Repositories{
			DB:            db,
			Conversations: sqlstore.NewConversationRepository(db),
			Turns:         turns,
			Documents:     sqlstore.NewDocumentRepository(db),
			Reports:       sqlstore.NewReportRepository(db),
		},
		Store:     store,
		Backend:   gateway,
		Model:     "medgemma",
		Hub:       hub,
		Queues:    events.NewQueues(time.Minute),
		Pool:      pool,
		Extractor: extract.NewExtractor(nil, false),
		Speech:    tts.NewTrigger(nil, store, pool, turns, hub, metrics, false),
		Metrics:   metrics,
		Gatherer:  registry,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, backend: stub}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   any             `json:"error"`
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.True(t, env.Success, "error: %v", env.Error)

	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (s *testServer) createConversation(t *testing.T) domain.Conversation {
	t.Helper()
	resp, err := http.Post(s.URL+"/api/v1/chat/sessions", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[domain.Conversation](t, resp)
}

func (s *testServer) postMessage(t *testing.T, conversationID uuid.UUID, content string) *http.Response {
	t.Helper()
	var body strings.Builder
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("content", content))
	require.NoError(t, mw.Close())

	resp, err := http.Post(
		fmt.Sprintf("%s/api/v1/chat/sessions/%s/messages", s.URL, conversationID),
		mw.FormDataContentType(),
		strings.NewReader(body.String()),
	)
	require.NoError(t, err)
	return resp
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/api/v1/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", health["database"])
	assert.Equal(t, "reachable", health["backend"])
	assert.Equal(t, "ollama", health["provider"])

	resp, err = http.Get(s.URL + "/api/v1/infra/tts")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRouter_ChatTurn(t *testing.T) {
	s := newTestServer(t)
	conversation := s.createConversation(t)
	assert.Equal(t, domain.DefaultConversationTitle, conversation.Title)

	resp := s.postMessage(t, conversation.ID, "What does a high LDL cholesterol level mean?")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	turn := decode[domain.Turn](t, resp)

	assert.Equal(t, domain.RoleAssistant, turn.Role)
	assert.Equal(t, domain.TurnCompleted, turn.Status)
	assert.Equal(t, stubAnswer, turn.Content)
	assert.EqualValues(t, 1, s.backend.calls.Load())

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/chat/sessions/%s/messages", s.URL, conversation.ID))
	require.NoError(t, err)
	history := decode[[]domain.Turn](t, resp)
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, turn.ID, history[1].ID)
	assert.Equal(t, stubAnswer, history[1].Content)
}

func TestRouter_GreetingSkipsBackend(t *testing.T) {
	s := newTestServer(t)
	conversation := s.createConversation(t)

	resp := s.postMessage(t, conversation.ID, "hello")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	turn := decode[domain.Turn](t, resp)

	assert.Equal(t, llm.GreetingReply, turn.Content)
	assert.Zero(t, s.backend.calls.Load())
}

func TestRouter_UnknownConversation(t *testing.T) {
	s := newTestServer(t)

	resp := s.postMessage(t, uuid.New(), "What does a high LDL cholesterol level mean?")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err := http.Get(s.URL + "/api/v1/chat/sessions/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_WebsocketReceivesTurnEvents(t *testing.T) {
	s := newTestServer(t)
	conversation := s.createConversation(t)

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/v1/chat/ws/sessions/" + conversation.ID.String()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The subscription is registered after the upgrade completes
	time.Sleep(50 * time.Millisecond)

	resp := s.postMessage(t, conversation.ID, "What does a high LDL cholesterol level mean?")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	turn := decode[domain.Turn](t, resp)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first domain.AssistantInitEvent
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, domain.EventAssistantInit, first.Type)
	assert.Equal(t, turn.ID, first.MessageID)

	var last domain.AssistantDeltaEvent
	for !last.Final {
		require.NoError(t, conn.ReadJSON(&last))
		assert.Equal(t, domain.EventAssistantDelta, last.Type)
	}
	assert.Equal(t, stubAnswer, last.Content)
}

func TestRouter_TextReportEvents(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{"text_content": {"LDL 160 mg/dL, HDL 40 mg/dL"}, "audience": {"patient"}}
	resp, err := http.PostForm(s.URL+"/api/v1/reports/text", form)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	report := decode[domain.Report](t, resp)
	assert.Equal(t, domain.ReportText, report.ReportType)

	resp, err = http.Get(fmt.Sprintf("%s/api/v1/reports/%s/events", s.URL, report.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var stages []string
	var last domain.StatusEvent
	reader := bufio.NewReader(resp.Body)
	for !last.Terminal() {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		require.NoError(t, json.Unmarshal([]byte(payload), &last))
		if last.Stage != "" {
			stages = append(stages, last.Stage)
		}
	}

	assert.Equal(t, domain.StatusCompleted, last.Status)
	assert.Equal(t, []string{"created", "summarize_start", "summarize_done", "done"}, stages)

	resp, err = http.Get(fmt.Sprintf("%s/api/v1/reports/%s", s.URL, report.ID))
	require.NoError(t, err)
	saved := decode[domain.Report](t, resp)
	assert.Equal(t, domain.ReportCompleted, saved.Status)
	require.NotNil(t, saved.SummaryText)
	assert.Equal(t, stubAnswer, *saved.SummaryText)
}

func TestRouter_MediaServesStoredFiles(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/media/audio/missing.wav")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "http_requests_total")
}
