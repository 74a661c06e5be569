package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Rrens/med-analyzer/internal/api/response"
	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/service"
)

// multipartOverhead covers form fields and boundaries around an upload
const multipartOverhead = 1 << 20

// ChatHandler handles conversation endpoints
type ChatHandler struct {
	chat      *service.ChatService
	maxUpload int64
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat *service.ChatService, maxUpload int64) *ChatHandler {
	if maxUpload <= 0 {
		maxUpload = service.DefaultMaxUploadBytes
	}
	return &ChatHandler{chat: chat, maxUpload: maxUpload}
}

// Create handles conversation creation. The body is optional.
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input domain.ConversationCreate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(input); err != nil {
		response.BadRequest(w, validationErrors(err))
		return
	}

	conversation, err := h.chat.CreateConversation(r.Context(), input)
	if err != nil {
		writeError(w, err, "failed to create conversation")
		return
	}

	response.Created(w, conversation)
}

// List returns conversations newest first
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	conversations, err := h.chat.ListConversations(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err, "failed to list conversations")
		return
	}

	response.OK(w, conversations)
}

// Get returns one conversation
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionID")
	if !ok {
		response.BadRequest(w, "invalid session ID")
		return
	}

	conversation, err := h.chat.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, err, "failed to get conversation")
		return
	}

	response.OK(w, conversation)
}

// Delete removes a conversation with its messages and documents
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionID")
	if !ok {
		response.BadRequest(w, "invalid session ID")
		return
	}

	if err := h.chat.DeleteConversation(r.Context(), id); err != nil {
		writeError(w, err, "failed to delete conversation")
		return
	}

	response.NoContent(w)
}

// Messages returns the conversation history oldest first
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionID")
	if !ok {
		response.BadRequest(w, "invalid session ID")
		return
	}

	turns, err := h.chat.ListTurns(r.Context(), id)
	if err != nil {
		writeError(w, err, "failed to list messages")
		return
	}

	response.OK(w, turns)
}

// Documents returns the attachments of a conversation
func (h *ChatHandler) Documents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionID")
	if !ok {
		response.BadRequest(w, "invalid session ID")
		return
	}

	docs, err := h.chat.ListDocuments(r.Context(), id)
	if err != nil {
		writeError(w, err, "failed to list documents")
		return
	}

	response.OK(w, docs)
}

// PostMessage accepts a multipart message with an optional file and
// answers with the finalized assistant message. Partial output goes out
// on the session's websocket.
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionID")
	if !ok {
		response.BadRequest(w, "invalid session ID")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		if isTooLarge(err) {
			response.TooLarge(w, "file too large")
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}

	input := service.PostTurnInput{
		ConversationID: id,
		Content:        r.FormValue("content"),
		Audience:       r.FormValue("audience"),
	}

	upload, err := formUpload(r, "file", h.maxUpload)
	if err != nil {
		writeError(w, err, "failed to read upload")
		return
	}
	input.Upload = upload

	turn, err := h.chat.PostTurn(r.Context(), input)
	if err != nil {
		writeError(w, err, "failed to process message")
		return
	}

	response.OK(w, turn)
}

// formUpload reads an optional file field. A missing field returns nil.
func formUpload(r *http.Request, field string, maxUpload int64) (*domain.Upload, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if header.Size > maxUpload {
		return nil, domain.ErrTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, maxUpload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxUpload {
		return nil, domain.ErrTooLarge
	}

	return &domain.Upload{Filename: header.Filename, Data: data}, nil
}
