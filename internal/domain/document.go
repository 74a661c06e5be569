package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DocumentCategory is the detected kind of an attachment
type DocumentCategory string

const (
	DocumentImage DocumentCategory = "image"
	DocumentText  DocumentCategory = "text"
)

// Document is a file attached to a conversation turn
type Document struct {
	ID               uuid.UUID        `json:"id"`
	ConversationID   uuid.UUID        `json:"session_id"`
	TurnID           uuid.NullUUID    `json:"message_id"`
	Category         DocumentCategory `json:"category"`
	StoragePath      string           `json:"storage_path"`
	OriginalFilename string           `json:"original_filename"`
	MimeType         string           `json:"mime_type"`
	ThumbnailPath    *string          `json:"thumbnail_path"`
	ExtractedChars   int              `json:"extracted_chars"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Upload is a file received from a client
type Upload struct {
	Filename string
	Data     []byte
}

// DocumentRepository defines the interface for document storage
type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id uuid.UUID) (*Document, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]Document, error)
}
