package handler

import (
	"net/http"
	"slices"

	"github.com/Rrens/med-analyzer/internal/api/response"
	"github.com/Rrens/med-analyzer/internal/events"
	"github.com/Rrens/med-analyzer/internal/service"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// maxClientMessage bounds what clients may send; their messages are ignored
const maxClientMessage = 4096

// EventHandler serves the per-conversation websocket event channel
type EventHandler struct {
	hub      *events.Hub
	chat     *service.ChatService
	upgrader websocket.Upgrader
}

// NewEventHandler creates an event handler accepting the given origins.
// "*" accepts any origin.
func NewEventHandler(hub *events.Hub, chat *service.ChatService, allowedOrigins []string) *EventHandler {
	return &EventHandler{
		hub:  hub,
		chat: chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// Subscribe upgrades the connection and streams conversation events until
// the client disconnects or the hub drops the subscriber.
func (h *EventHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionID")
	if !ok {
		response.BadRequest(w, "invalid session ID")
		return
	}
	if _, err := h.chat.GetConversation(r.Context(), id); err != nil {
		writeError(w, err, "failed to get conversation")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", id.String()).Msg("Websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxClientMessage)

	sub := h.hub.Subscribe(id, conn)
	defer h.hub.Unsubscribe(sub)

	log.Info().
		Str("conversation_id", id.String()).
		Str("subscription_id", sub.ID.String()).
		Msg("Websocket client connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debug().Err(err).Str("subscription_id", sub.ID.String()).Msg("Websocket client disconnected")
			return
		}
	}
}
