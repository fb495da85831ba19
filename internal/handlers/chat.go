package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"focusvault-backend/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type messageHistory interface {
	ListRoom(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error)
}

// ChatHandler serves room message history; live traffic goes over the
// websocket gateway.
type ChatHandler struct {
	messages messageHistory
}

func NewChatHandler(messages messageHistory) *ChatHandler {
	return &ChatHandler{messages: messages}
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(chi.URLParam(r, "roomID"))
	if roomID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Room ID is required", r))
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid limit", r))
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	messages, err := h.messages.ListRoom(r.Context(), roomID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load messages", r))
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}
