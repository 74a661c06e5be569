package deepseek

import (
	"time"

	"github.com/Rrens/med-analyzer/internal/llm/openai"
)

const baseURL = "https://api.deepseek.com/v1"

// NewProvider creates a DeepSeek provider. DeepSeek serves the OpenAI chat
// completion protocol, so only the endpoint and default model differ.
func NewProvider(apiKey, defaultModel string, timeout time.Duration) *openai.Provider {
	if defaultModel == "" {
		defaultModel = "deepseek-chat"
	}
	return openai.NewNamed("deepseek", apiKey, baseURL, defaultModel, timeout)
}
