package domain

import "github.com/google/uuid"

// Event types sent over the conversation channel
const (
	EventAssistantInit  = "assistant_init"
	EventAssistantDelta = "assistant_delta"
	EventAudioReady     = "audio_ready"
)

// AssistantInitEvent announces a new, empty assistant turn
type AssistantInitEvent struct {
	Type      string    `json:"type"`
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

// AssistantDeltaEvent carries the content of a turn so far.
// The event with Final set carries the authoritative content.
type AssistantDeltaEvent struct {
	Type      string    `json:"type"`
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
	Final     bool      `json:"final"`
}

// AudioReadyEvent announces synthesized audio for a turn
type AudioReadyEvent struct {
	Type          string    `json:"type"`
	MessageID     uuid.UUID `json:"message_id"`
	AudioFilePath string    `json:"audio_file_path"`
}

func (e AssistantInitEvent) EventType() string  { return e.Type }
func (e AssistantDeltaEvent) EventType() string { return e.Type }
func (e AudioReadyEvent) EventType() string     { return e.Type }

func NewAssistantInit(turnID uuid.UUID) AssistantInitEvent {
	return AssistantInitEvent{Type: EventAssistantInit, MessageID: turnID}
}

func NewAssistantDelta(turnID uuid.UUID, content string, final bool) AssistantDeltaEvent {
	return AssistantDeltaEvent{Type: EventAssistantDelta, MessageID: turnID, Content: content, Final: final}
}

func NewAudioReady(turnID uuid.UUID, path string) AudioReadyEvent {
	return AudioReadyEvent{Type: EventAudioReady, MessageID: turnID, AudioFilePath: path}
}

// Report pipeline statuses
const (
	StatusStarted    = "started"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// StatusEvent is one message on a report's pull channel
type StatusEvent struct {
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	ReportID string `json:"report_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	Chars    int    `json:"chars,omitempty"`
	Audio    string `json:"audio,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Terminal reports whether the event ends the stream
func (e StatusEvent) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}
