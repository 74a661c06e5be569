package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Rrens/med-analyzer/internal/llm"
)

const (
	DefaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"

	// the Messages API requires max_tokens on every request
	defaultMaxTokens = 1024
)

// Provider implements llm.Provider for the Anthropic Messages API
type Provider struct {
	apiKey       string
	defaultModel string
	client       *http.Client
	baseURL      string
}

// NewProvider creates a new Anthropic provider
func NewProvider(apiKey, baseURL, defaultModel string, timeout time.Duration) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if defaultModel == "" {
		defaultModel = "claude-3-5-haiku-latest"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Provider{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(baseURL, "/"),
	}
}

func (p *Provider) Name() string {
	return "anthropic"
}

func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

// IsConfigured checks if provider has valid credentials
func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// streamEvent covers the event payloads ChatStream acts on
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Ping lists models to verify the endpoint answers
func (p *Provider) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return &llm.ConnectionError{Op: "ping", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return &llm.StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Chat runs a non-streaming Messages call and joins its text blocks
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()

	resp, err := p.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &llm.ConnectionError{Op: "decode", Err: err}
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no response from anthropic")
	}

	return &llm.ChatResponse{
		Message:   llm.Message{Role: llm.RoleAssistant, Content: text.String()},
		Model:     out.Model,
		EvalCount: out.Usage.OutputTokens,
		Done:      true,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// ChatStream forwards the text of content_block_delta events until
// message_stop. An error event mid-stream becomes a StatusError.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest, fn llm.FragmentFunc) error {
	resp, err := p.do(ctx, req, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		data, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "data:")
		if !ok {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
			return fmt.Errorf("failed to decode stream event: %w", err)
		}

		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Type != "text_delta" || ev.Delta.Text == "" {
				continue
			}
			if err := fn(ev.Delta.Text); err != nil {
				return err
			}
		case "message_stop":
			return nil
		case "error":
			return &llm.StatusError{StatusCode: http.StatusBadGateway, Message: ev.Error.Message}
		}
	}

	if err := scanner.Err(); err != nil {
		return &llm.ConnectionError{Op: "stream", Err: err}
	}
	return nil
}

func (p *Provider) do(ctx context.Context, req llm.ChatRequest, stream bool) (*http.Response, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.Options.NumPredict
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	system, messages := toMessages(req.Messages)
	body, err := json.Marshal(messagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    messages,
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &llm.ConnectionError{Op: "chat", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &llm.StatusError{StatusCode: resp.StatusCode, Message: readError(resp.Body)}
	}
	return resp, nil
}

func (p *Provider) setHeaders(r *http.Request) {
	r.Header.Set("x-api-key", p.apiKey)
	r.Header.Set("anthropic-version", apiVersion)
}

// toMessages lifts system messages into the top-level system prompt.
// Images go before the text block of their message.
func toMessages(in []llm.Message) (string, []message) {
	var system []string
	out := make([]message, 0, len(in))
	for _, m := range in {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}

		blocks := make([]contentBlock, 0, len(m.Images)+1)
		for _, img := range m.Images {
			blocks = append(blocks, contentBlock{
				Type: "image",
				Source: &imageSource{
					Type:      "base64",
					MediaType: img.MimeType,
					Data:      base64.StdEncoding.EncodeToString(img.Data),
				},
			})
		}
		blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
		out = append(out, message{Role: m.Role, Content: blocks})
	}
	return strings.Join(system, "\n\n"), out
}

func readError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(string(data))
}
