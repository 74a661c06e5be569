package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role is the author of a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnStatus tracks the lifecycle of an assistant turn
type TurnStatus string

const (
	TurnStreaming TurnStatus = "streaming"
	TurnCompleted TurnStatus = "completed"
	TurnErrored   TurnStatus = "errored"
)

// Turn is one message within a conversation.
// User content never changes after creation. Assistant content grows while
// streaming and is frozen once the status leaves TurnStreaming.
type Turn struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"session_id"`
	Role           Role       `json:"role"`
	Content        string     `json:"content"`
	Status         TurnStatus `json:"status"`
	Error          bool       `json:"error"`
	AudioFilePath  *string    `json:"audio_file_path"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TurnRepository defines the interface for turn storage
type TurnRepository interface {
	Create(ctx context.Context, turn *Turn) error
	Get(ctx context.Context, id uuid.UUID) (*Turn, error)
	// ListByConversation returns turns oldest first. A limit <= 0 returns all.
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]Turn, error)
	// ListRecent returns the last n turns in chronological order
	ListRecent(ctx context.Context, conversationID uuid.UUID, n int) ([]Turn, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string) error
	Finalize(ctx context.Context, id uuid.UUID, content string, status TurnStatus, isError bool) error
	SetAudioPath(ctx context.Context, id uuid.UUID, path string) error
}
