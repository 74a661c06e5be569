package llm_test

import (
	"strings"
	"testing"

	"github.com/Rrens/med-analyzer/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildChatMessages(t *testing.T) {
	history := []llm.HistoryEntry{
		{Role: llm.RoleUser, Content: "one"},
		{Role: llm.RoleAssistant, Content: "two"},
		{Role: llm.RoleUser, Content: "three"},
		{Role: llm.RoleAssistant, Content: ""},
		{Role: llm.RoleUser, Content: "five"},
		{Role: llm.RoleAssistant, Content: "six"},
		{Role: llm.RoleUser, Content: "seven"},
	}

	messages := llm.BuildChatMessages(history, 5, "What is HbA1c?", nil)

	require.NotEmpty(t, messages)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, llm.ChatSystemPrompt, messages[0].Content)

	// window of 5 keeps three..seven, the empty entry is skipped
	var contents []string
	for _, m := range messages[1 : len(messages)-1] {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"three", "five", "six", "seven"}, contents)

	last := messages[len(messages)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Equal(t, "What is HbA1c?", last.Content)
}

func TestSummaryPrompt(t *testing.T) {
	doctor := llm.SummaryPrompt("doctor", "en")
	patient := llm.SummaryPrompt("patient", "fr")

	assert.Contains(t, doctor, "healthcare professionals")
	assert.Contains(t, doctor, "English")
	assert.Contains(t, patient, "plain language")
	assert.Contains(t, patient, "French")
	assert.Equal(t, patient, llm.SummaryPrompt("", "fr"))
}

func TestBuildSummaryMessages(t *testing.T) {
	messages := llm.BuildSummaryMessages("doctor", "en", "LDL 160 mg/dL")

	require.Len(t, messages, 2)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, "LDL 160 mg/dL", messages[1].Content)
}

func TestDocumentContext(t *testing.T) {
	text := strings.Repeat("a", 2500)

	ctx := llm.DocumentContext(text, 2000)

	assert.True(t, strings.HasPrefix(ctx, "\n\n[Document Content]\n"))
	assert.Equal(t, 2000, len(strings.TrimPrefix(ctx, "\n\n[Document Content]\n")))
	assert.Equal(t, "\n\n[Error: Could not process file scan.pdf]", llm.FileErrorContext("scan.pdf"))
}
