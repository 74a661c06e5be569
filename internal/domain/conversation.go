package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultConversationTitle is used when a conversation is created without a title
const DefaultConversationTitle = "New Conversation"

// Conversation is a named container of turns
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationCreate is the input for creating a conversation
type ConversationCreate struct {
	Title string `json:"title" validate:"omitempty,max=255"`
}

// ConversationRepository defines the interface for conversation storage
type ConversationRepository interface {
	Create(ctx context.Context, conversation *Conversation) error
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)
	// List returns conversations newest first
	List(ctx context.Context, limit, offset int) ([]Conversation, error)
	// Delete removes the conversation with its turns and documents
	Delete(ctx context.Context, id uuid.UUID) error
}
