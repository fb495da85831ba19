package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"focusvault-backend/internal/middleware"
	"focusvault-backend/internal/models"
	"focusvault-backend/internal/services"
)

type SessionHandler struct {
	coordinator *services.SessionCoordinator
	coalescer   *services.SyncCoalescer
	jwt         *middleware.JWTAuth
}

func NewSessionHandler(coordinator *services.SessionCoordinator, coalescer *services.SyncCoalescer, jwtAuth *middleware.JWTAuth) *SessionHandler {
	return &SessionHandler{
		coordinator: coordinator,
		coalescer:   coalescer,
		jwt:         jwtAuth,
	}
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	state, err := h.coordinator.Start(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"session": state})
}

func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	var req models.UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	state, err := h.coordinator.Update(r.Context(), userID, sessionID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"session": state})
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	var req models.EndSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	record, err := h.coordinator.End(r.Context(), userID, sessionID, req.Notes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"record": record})
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	if err := h.coordinator.Cancel(r.Context(), userID, sessionID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session discarded"})
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	states, err := h.coordinator.ListActive(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list sessions", r))
		return
	}
	if states == nil {
		states = []models.StudySessionState{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": states})
}

// Beacon receives the fire-and-forget elapsed-time write a client sends
// when its page is being torn down. sendBeacon cannot set headers, so the
// token travels as a query parameter, and the response body is never seen
// by the client. Writes are coalesced: unload and visibility-change often
// both fire within milliseconds.
func (h *SessionHandler) Beacon(w http.ResponseWriter, r *http.Request) {
	userID, err := h.jwt.VerifyToken(r.URL.Query().Get("token"))
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req struct {
		ElapsedTime int `json:"elapsed_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ElapsedTime < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.coalescer.Record(userID, sessionID, req.ElapsedTime)
	w.WriteHeader(http.StatusNoContent)
}
