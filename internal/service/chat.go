package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/extract"
	"github.com/Rrens/med-analyzer/internal/llm"
	"github.com/Rrens/med-analyzer/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TextExtractor converts document bytes to text
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mime string) (string, error)
}

// PostTurnInput is one user message with an optional attachment
type PostTurnInput struct {
	ConversationID uuid.UUID
	Content        string
	Audience       string
	Upload         *domain.Upload
}

// ChatService manages conversations and runs user turns
type ChatService struct {
	conversations domain.ConversationRepository
	turns         domain.TurnRepository
	documents     domain.DocumentRepository
	store         storage.Store
	extractor     TextExtractor
	orchestrator  *Orchestrator
	events        Publisher
	historyWindow int
	now           func() time.Time
}

// NewChatService creates a new chat service
func NewChatService(
	conversations domain.ConversationRepository,
	turns domain.TurnRepository,
	documents domain.DocumentRepository,
	store storage.Store,
	extractor TextExtractor,
	orchestrator *Orchestrator,
	events Publisher,
	historyWindow int,
) *ChatService {
	if historyWindow <= 0 {
		historyWindow = llm.DefaultHistoryWindow
	}
	return &ChatService{
		conversations: conversations,
		turns:         turns,
		documents:     documents,
		store:         store,
		extractor:     extractor,
		orchestrator:  orchestrator,
		events:        events,
		historyWindow: historyWindow,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateConversation creates a conversation, titled by default when empty
func (s *ChatService) CreateConversation(ctx context.Context, req domain.ConversationCreate) (*domain.Conversation, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = domain.DefaultConversationTitle
	}

	c := &domain.Conversation{
		ID:        uuid.New(),
		Title:     title,
		CreatedAt: s.now(),
	}
	if err := s.conversations.Create(ctx, c); err != nil {
		return nil, err
	}

	log.Info().Str("conversation_id", c.ID.String()).Msg("Conversation created")
	return c, nil
}

// ListConversations returns conversations newest first
func (s *ChatService) ListConversations(ctx context.Context, limit, offset int) ([]domain.Conversation, error) {
	return s.conversations.List(ctx, limit, offset)
}

// GetConversation returns one conversation
func (s *ChatService) GetConversation(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return s.conversations.Get(ctx, id)
}

// ListTurns returns the conversation history oldest first
func (s *ChatService) ListTurns(ctx context.Context, id uuid.UUID) ([]domain.Turn, error) {
	if _, err := s.conversations.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.turns.ListByConversation(ctx, id, 0)
}

// ListDocuments returns the attachments of a conversation
func (s *ChatService) ListDocuments(ctx context.Context, id uuid.UUID) ([]domain.Document, error) {
	if _, err := s.conversations.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.documents.ListByConversation(ctx, id)
}

// DeleteConversation removes a conversation with its turns and documents
func (s *ChatService) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	if err := s.conversations.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("conversation_id", id.String()).Msg("Conversation deleted")
	return nil
}

// attachment is a processed upload
type attachment struct {
	document     *domain.Document
	documentText string
	images       []llm.Image
	note         string
}

// PostTurn stores the user turn, then creates and runs the assistant turn.
// Generation is detached from ctx cancellation so a client hang-up never
// leaves a turn half-persisted.
func (s *ChatService) PostTurn(ctx context.Context, in PostTurnInput) (*domain.Turn, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && in.Upload == nil {
		return nil, fmt.Errorf("%w: content is required", domain.ErrInvalidInput)
	}
	if _, ok := domain.ParseAudience(in.Audience); !ok {
		return nil, fmt.Errorf("%w: audience must be patient or doctor", domain.ErrInvalidInput)
	}

	if _, err := s.conversations.Get(ctx, in.ConversationID); err != nil {
		return nil, err
	}

	// History is read before the new user turn exists, so it never
	// contains the current message.
	history, err := s.turns.ListRecent(ctx, in.ConversationID, s.historyWindow)
	if err != nil {
		return nil, err
	}

	var att *attachment
	if in.Upload != nil {
		att = s.processUpload(ctx, in.ConversationID, in.Upload)
	}

	display := content
	if in.Upload != nil {
		display = fmt.Sprintf("📎 %s\n\n%s", in.Upload.Filename, content)
	}

	userTurn := &domain.Turn{
		ID:             uuid.New(),
		ConversationID: in.ConversationID,
		Role:           domain.RoleUser,
		Content:        display,
		Status:         domain.TurnCompleted,
		CreatedAt:      s.now(),
	}
	if err := s.turns.Create(ctx, userTurn); err != nil {
		return nil, err
	}

	if att != nil && att.document != nil {
		att.document.TurnID = uuid.NullUUID{UUID: userTurn.ID, Valid: true}
		if err := s.documents.Create(ctx, att.document); err != nil {
			log.Error().Err(err).Str("conversation_id", in.ConversationID.String()).Msg("Failed to record document")
		}
	}

	assistant := &domain.Turn{
		ID:             uuid.New(),
		ConversationID: in.ConversationID,
		Role:           domain.RoleAssistant,
		Status:         domain.TurnStreaming,
		CreatedAt:      s.now(),
	}
	if err := s.turns.Create(ctx, assistant); err != nil {
		return nil, err
	}
	s.events.Publish(in.ConversationID, domain.NewAssistantInit(assistant.ID))

	run := RunInput{
		Turn:          assistant,
		Text:          content,
		History:       history,
		HasAttachment: in.Upload != nil,
		Audience:      in.Audience,
	}
	if att != nil {
		run.DocumentText = att.documentText
		run.Images = att.images
		run.AttachmentNote = att.note
	}

	return s.orchestrator.Run(context.WithoutCancel(ctx), run), nil
}

// processUpload stores and reads an attachment. Failures become a note in
// the user message instead of failing the turn.
func (s *ChatService) processUpload(ctx context.Context, conversationID uuid.UUID, up *domain.Upload) *attachment {
	category, mime := extract.Detect(up.Data, up.Filename)
	key := UploadKey("chat_uploads", up.Filename)

	stored, err := s.store.Put(ctx, key, up.Data, mime)
	if err != nil {
		log.Error().Err(err).Str("filename", up.Filename).Msg("Failed to store attachment")
		return &attachment{note: llm.FileErrorContext(up.Filename)}
	}

	att := &attachment{
		document: &domain.Document{
			ID:               uuid.New(),
			ConversationID:   conversationID,
			Category:         category,
			StoragePath:      stored,
			OriginalFilename: up.Filename,
			MimeType:         mime,
			CreatedAt:        s.now(),
		},
	}

	if category == domain.DocumentImage {
		att.images = []llm.Image{{Data: up.Data, MimeType: mime}}
		log.Info().Str("filename", up.Filename).Msg("Image attached for multimodal analysis")
		return att
	}

	text, err := s.extractor.Extract(ctx, up.Data, mime)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Error().Err(err).Str("filename", up.Filename).Str("mime", mime).Msg("Failed to extract attachment text")
		att.note = llm.FileErrorContext(up.Filename)
		return att
	}

	att.documentText = text
	att.document.ExtractedChars = len([]rune(text))
	return att
}

// UploadKey builds a unique storage key for an uploaded file
func UploadKey(dir, filename string) string {
	name := strings.ReplaceAll(path.Base(strings.ReplaceAll(filename, "\\", "/")), " ", "_")
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return fmt.Sprintf("%s/%s_%s", dir, strings.ReplaceAll(uuid.NewString(), "-", ""), name)
}
