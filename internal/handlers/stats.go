package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"focusvault-backend/internal/middleware"
	"focusvault-backend/internal/models"
)

type statsStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.UserStats, error)
}

type recordHistory interface {
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]models.StudySessionRecord, error)
}

// StatsHandler exposes the per-user aggregates (totals, streaks, daily
// buckets) and recent session history.
type StatsHandler struct {
	stats   statsStore
	records recordHistory
}

func NewStatsHandler(stats statsStore, records recordHistory) *StatsHandler {
	return &StatsHandler{stats: stats, records: records}
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	stats, err := h.stats.Get(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load stats", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"stats": stats})
}

func (h *StatsHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid limit", r))
			return
		}
		limit = n
	}

	records, err := h.records.ListRecent(r.Context(), userID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load history", r))
		return
	}
	if records == nil {
		records = []models.StudySessionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}
