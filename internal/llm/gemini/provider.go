package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/Rrens/med-analyzer/internal/config"
	"github.com/Rrens/med-analyzer/internal/llm"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Provider struct {
	apiKey string
	model  string
}

func NewProvider(cfg config.GeminiConfig) *Provider {
	return &Provider{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "gemini-2.5-flash"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) newClient(ctx context.Context) (*genai.Client, error) {
	if !p.IsConfigured() {
		return nil, fmt.Errorf("gemini provider is not configured (missing API key)")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, classify("connect", err)
	}
	return client, nil
}

// Ping lists one model to verify the API answers
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	it := client.ListModels(ctx)
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return classify("ping", err)
	}
	return nil
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	model := p.modelName(req)
	session, parts := p.startChat(client, model, req)

	start := time.Now()
	resp, err := session.SendMessage(ctx, parts...)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, classify("chat", err)
	}

	output := responseText(resp)
	if output == "" {
		return nil, &llm.StatusError{Message: "empty response from gemini"}
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return &llm.ChatResponse{
		Message:   llm.Message{Role: llm.RoleAssistant, Content: output},
		Model:     model,
		EvalCount: tokens,
		Done:      true,
		LatencyMs: latency,
	}, nil
}

func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest, fn llm.FragmentFunc) error {
	client, err := p.newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	session, parts := p.startChat(client, p.modelName(req), req)
	it := session.SendMessageStream(ctx, parts...)

	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return classify("stream", err)
		}
		if text := responseText(resp); text != "" {
			if err := fn(text); err != nil {
				return err
			}
		}
	}
}

func (p *Provider) modelName(req llm.ChatRequest) string {
	if req.Model != "" && strings.HasPrefix(req.Model, "gemini") {
		return req.Model
	}
	return p.DefaultModel()
}

// startChat maps the message sequence onto a chat session. System messages
// become the system instruction and the last message is returned as parts.
func (p *Provider) startChat(client *genai.Client, model string, req llm.ChatRequest) (*genai.ChatSession, []genai.Part) {
	gm := client.GenerativeModel(model)
	gm.SetTemperature(float32(req.Options.Temperature))
	if req.Options.TopP > 0 {
		gm.SetTopP(float32(req.Options.TopP))
	}
	if req.Options.NumPredict > 0 {
		gm.SetMaxOutputTokens(int32(req.Options.NumPredict))
	}

	var system []string
	var turns []llm.Message
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(system) > 0 {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}

	session := gm.StartChat()
	if len(turns) == 0 {
		return session, []genai.Part{genai.Text("")}
	}

	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{Role: role, Parts: toParts(m)})
	}
	return session, toParts(turns[len(turns)-1])
}

func toParts(m llm.Message) []genai.Part {
	parts := []genai.Part{genai.Text(m.Content)}
	for _, img := range m.Images {
		format := strings.TrimPrefix(img.MimeType, "image/")
		if format == "" {
			format = "png"
		}
		parts = append(parts, genai.ImageData(format, img.Data))
	}
	return parts
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

func classify(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &llm.ConnectionError{Op: op, Err: err}
	}
	return &llm.StatusError{Message: fmt.Sprintf("gemini %s error: %v", op, err)}
}
