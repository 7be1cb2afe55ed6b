package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/field-notes/apiserver/internal/logger"
	"github.com/field-notes/apiserver/internal/relay"
	"github.com/field-notes/apiserver/types"
)

// Dispatcher sends a note to chat, inline or through a queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, noteID string) (types.Note, bool, error)
}

type RelayHandler struct {
	relay Dispatcher
}

func NewRelayHandler(d Dispatcher) *RelayHandler {
	return &RelayHandler{relay: d}
}

type SendToChatRequest struct {
	NoteID string `json:"noteId"`
}

type SendToChatResponse struct {
	Success bool        `json:"success"`
	Note    *types.Note `json:"note,omitempty"`
}

// SendToChat posts a note to the chat webhook.
func (h *RelayHandler) SendToChat(w http.ResponseWriter, r *http.Request) {
	var req SendToChatRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.NoteID) == "" {
		writeError(w, http.StatusBadRequest, "Note ID is required")
		return
	}

	log := logger.FromRequest(r)
	note, queued, err := h.relay.Dispatch(r.Context(), req.NoteID)
	var rejected *relay.RejectedError
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrNotConfigured):
		log.Error().Msg("GOOGLE_CHAT_WEBHOOK_URL is not set")
		writeError(w, http.StatusInternalServerError, "Chat webhook not configured")
		return
	case errors.As(err, &rejected):
		log.Error().Int("status", rejected.StatusCode).Str("body", rejected.Body).Msg("chat webhook rejected note")
		writeError(w, http.StatusBadGateway, "Failed to send to chat")
		return
	case errors.Is(err, relay.ErrUnreachable):
		log.Error().Err(err).Msg("chat webhook unreachable")
		writeError(w, http.StatusBadGateway, "Failed to send to chat")
		return
	default:
		writeServiceError(w, r, err, "Failed to send to chat")
		return
	}

	if queued {
		writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
		return
	}
	writeJSON(w, http.StatusOK, SendToChatResponse{Success: true, Note: &note})
}
