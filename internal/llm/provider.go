package llm

import "context"

// Message roles understood by every backend
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Image is an inline image sent with a message
type Image struct {
	Data     []byte
	MimeType string
}

// Message is one entry of the chat sequence sent to a backend
type Message struct {
	Role    string
	Content string
	Images  []Image
}

// Options tunes sampling on the backend
type Options struct {
	Temperature float64
	TopP        float64
	NumPredict  int
}

// ChatRequest contains chat generation parameters
type ChatRequest struct {
	Model    string
	Messages []Message
	Options  Options
}

// ChatResponse is the single typed result of a batch chat call
type ChatResponse struct {
	Message   Message
	Model     string
	EvalCount int
	Done      bool
	LatencyMs int64
}

// Content returns the generated text
func (r *ChatResponse) Content() string {
	if r == nil {
		return ""
	}
	return r.Message.Content
}

// FragmentFunc receives streamed text in generation order.
// Returning an error stops the stream and the error is returned as is.
type FragmentFunc func(fragment string) error

// Provider defines the interface for generation backends
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has the settings it needs
	IsConfigured() bool

	// Ping checks that the backend endpoint answers
	Ping(ctx context.Context) error

	// Chat runs a non-streaming chat completion
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream runs a streaming chat completion
	ChatStream(ctx context.Context, req ChatRequest, fn FragmentFunc) error
}
