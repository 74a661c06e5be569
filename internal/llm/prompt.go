package llm

import (
	"fmt"
	"strings"
)

// Prompt limits
const (
	DefaultHistoryWindow   = 5
	DefaultDocumentCharCap = 2000
)

// ChatSystemPrompt sets the assistant's rules for freeform chat
const ChatSystemPrompt = `You are MedAnalyzer Assistant, a professional medical information assistant. Your role is to:

1. Help users understand medical reports and test results
2. Explain medical terminology in simple terms
3. Provide factual medical information and education
4. Answer health-related questions with evidence-based information

STRICT RULES YOU MUST FOLLOW:
- NEVER provide medical diagnoses
- NEVER prescribe medications or recommend specific treatments
- NEVER make jokes, use humor, or engage in casual chitchat
- NEVER discuss mental health diagnoses or psychiatric conditions
- NEVER give personalized medical advice
- Always recommend consulting healthcare professionals for diagnosis and treatment
- Stay professional, factual, and educational
- If asked about non-medical topics, politely redirect to medical information

Remember: You explain medical information, you don't diagnose or treat.`

// GreetingReply is returned for greeting-only input without calling a backend
const GreetingReply = "Hello! I'm MedAnalyzer Assistant. Share a medical report or ask me a health " +
	"question and I'll help you understand it."

// PatientSummaryPrompt returns the system prompt for a plain-language summary
func PatientSummaryPrompt(language string) string {
	return fmt.Sprintf(
		"You are an expert medical assistant. Provide a clear summary of the medical report in %s "+
			"for a patient without medical training. Use plain language, explain any medical terms you "+
			"mention and keep it to 4-6 sentences. Do not make jokes, provide any diagnoses, give medical "+
			"advice, or discuss mental health. Only summarize and explain the factual content of the report.",
		languageName(language))
}

// DoctorSummaryPrompt returns the system prompt for a clinical summary
func DoctorSummaryPrompt(language string) string {
	return fmt.Sprintf(
		"You are a medical assistant providing detailed analysis for healthcare professionals. "+
			"Analyze the following medical report text in %s. Provide a comprehensive summary including:\n"+
			"1. Key findings and observations\n"+
			"2. Notable measurements or test results\n"+
			"3. Clinical significance\n"+
			"4. Any areas requiring attention\n"+
			"Be thorough and use appropriate medical terminology. Aim for 4-6 sentences.",
		languageName(language))
}

// ImageDescriptionPrompt returns the system prompt for describing a medical image
func ImageDescriptionPrompt(language string) string {
	return fmt.Sprintf(
		"You are an expert radiologist. Provide a clear, professional description of this medical image in %s. "+
			"Do not make jokes, provide any diagnoses, give medical advice, or discuss mental health. "+
			"Only describe and explain the factual content visible in the image.",
		languageName(language))
}

// SummaryPrompt selects the summary prompt for an audience
func SummaryPrompt(audience, language string) string {
	if audience == "doctor" {
		return DoctorSummaryPrompt(language)
	}
	return PatientSummaryPrompt(language)
}

// HistoryEntry is a prior turn used as context
type HistoryEntry struct {
	Role    string
	Content string
}

// BuildChatMessages assembles the freeform chat sequence: system prompt,
// the last window history entries and the current user message.
func BuildChatMessages(history []HistoryEntry, window int, userMessage string, images []Image) []Message {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: ChatSystemPrompt})
	for _, h := range history {
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		messages = append(messages, Message{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: userMessage, Images: images})
	return messages
}

// BuildSummaryMessages assembles an audience-specific summary request
func BuildSummaryMessages(audience, language, documentText string) []Message {
	return []Message{
		{Role: RoleSystem, Content: SummaryPrompt(audience, language)},
		{Role: RoleUser, Content: documentText},
	}
}

// BuildImageMessages assembles an image description request
func BuildImageMessages(language string, image Image) []Message {
	return []Message{
		{Role: RoleSystem, Content: ImageDescriptionPrompt(language)},
		{Role: RoleUser, Content: "Describe this medical image.", Images: []Image{image}},
	}
}

// DocumentContext formats extracted text appended to a user message
func DocumentContext(text string, limit int) string {
	if limit <= 0 {
		limit = DefaultDocumentCharCap
	}
	runes := []rune(text)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return "\n\n[Document Content]\n" + string(runes)
}

// ImageContext formats an image analysis appended to a user message
func ImageContext(analysis string) string {
	return "\n\n[Image Analysis]\n" + analysis
}

// FileErrorContext marks an attachment that could not be processed
func FileErrorContext(filename string) string {
	return fmt.Sprintf("\n\n[Error: Could not process file %s]", filename)
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "", "en", "english":
		return "English"
	case "fr", "french":
		return "French"
	case "es", "spanish":
		return "Spanish"
	case "de", "german":
		return "German"
	case "it", "italian":
		return "Italian"
	case "pt", "portuguese":
		return "Portuguese"
	default:
		return code
	}
}
