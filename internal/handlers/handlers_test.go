package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"focusvault-backend/internal/middleware"
	"focusvault-backend/internal/models"
	"focusvault-backend/internal/services"
)

// In-memory stores backing a real coordinator; the handlers are exercised
// through a chi router so URL params resolve the same way they do in
// production.

type memStateStore struct {
	mu     sync.Mutex
	states map[uuid.UUID]*models.StudySessionState
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: make(map[uuid.UUID]*models.StudySessionState)}
}

func (s *memStateStore) Get(_ context.Context, userID, sessionID uuid.UUID) (*models.StudySessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[sessionID]
	if !ok || st.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	copied := *st
	return &copied, nil
}

func (s *memStateStore) GetBySubject(_ context.Context, userID uuid.UUID, subject string) (*models.StudySessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st.UserID == userID && st.Subject == subject {
			copied := *st
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *memStateStore) ListByOwner(_ context.Context, userID uuid.UUID) ([]models.StudySessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StudySessionState
	for _, st := range s.states {
		if st.UserID == userID {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (s *memStateStore) Insert(_ context.Context, st *models.StudySessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *st
	s.states[st.ID] = &copied
	return nil
}

func (s *memStateStore) ApplyPartial(_ context.Context, userID, sessionID uuid.UUID, req models.UpdateSessionRequest, now time.Time) (*models.StudySessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[sessionID]
	if !ok || st.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	if req.Status != nil {
		st.Status = *req.Status
	}
	if req.ElapsedTime != nil {
		st.ElapsedTime = *req.ElapsedTime
	}
	if req.Notes != nil {
		st.Notes = *req.Notes
	}
	st.LastActiveAt = now
	copied := *st
	return &copied, nil
}

func (s *memStateStore) Delete(_ context.Context, userID, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[sessionID]
	if !ok || st.UserID != userID {
		return pgx.ErrNoRows
	}
	delete(s.states, sessionID)
	return nil
}

func (s *memStateStore) Finalize(ctx context.Context, st *models.StudySessionState, _ *models.StudySessionRecord) error {
	return s.Delete(ctx, st.UserID, st.ID)
}

type memStatsStore struct{}

func (memStatsStore) ApplySession(_ context.Context, _ *models.StudySessionRecord, _ string) (*models.UserStats, error) {
	return &models.UserStats{}, nil
}

func newSessionTestRouter(t *testing.T) (chi.Router, *memStateStore, uuid.UUID) {
	t.Helper()

	states := newMemStateStore()
	coordinator := services.NewSessionCoordinator(states, memStatsStore{}, nil, nil)
	coalescer := services.NewSyncCoalescer(time.Hour, func(_, _ uuid.UUID, _ int) {})
	jwtAuth := middleware.NewJWTAuth("test-secret")
	h := NewSessionHandler(coordinator, coalescer, jwtAuth)

	userID := uuid.New()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/study-sessions/start", h.Start)
	r.Get("/study-sessions", h.List)
	r.Put("/study-sessions/{id}", h.Update)
	r.Post("/study-sessions/{id}/end", h.End)
	r.Delete("/study-sessions/{id}", h.Cancel)
	return r, states, userID
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errObj, _ := body["error"].(map[string]interface{})
	code, _ := errObj["code"].(string)
	return code
}

func TestStartSession_Created(t *testing.T) {
	router, _, _ := newSessionTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/study-sessions/start", models.StartSessionRequest{
		Subject:    "Mathematics",
		TargetTime: 1500,
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	session, _ := body["session"].(map[string]interface{})
	if session["subject"] != "Mathematics" {
		t.Errorf("Expected subject Mathematics, got %v", session["subject"])
	}
	if session["status"] != string(models.SessionActive) {
		t.Errorf("Expected active status, got %v", session["status"])
	}
}

func TestStartSession_MissingSubject(t *testing.T) {
	router, _, _ := newSessionTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/study-sessions/start", models.StartSessionRequest{TargetTime: 1500})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
		t.Errorf("Expected VALIDATION_ERROR, got %q", code)
	}
}

func TestStartSession_MalformedBody(t *testing.T) {
	router, _, _ := newSessionTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/study-sessions/start", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestUpdateSession_InvalidID(t *testing.T) {
	router, _, _ := newSessionTestRouter(t)

	rec := doJSON(t, router, http.MethodPut, "/study-sessions/not-a-uuid", models.UpdateSessionRequest{})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestUpdateSession_RoundTrip(t *testing.T) {
	router, states, userID := newSessionTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/study-sessions/start", models.StartSessionRequest{
		Subject:    "Physics",
		TargetTime: 1500,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Start failed: %d", rec.Code)
	}
	session, _ := decodeBody(t, rec)["session"].(map[string]interface{})
	sessionID := session["id"].(string)

	elapsed := 300
	paused := models.SessionPaused
	rec = doJSON(t, router, http.MethodPut, "/study-sessions/"+sessionID, models.UpdateSessionRequest{
		Status:      &paused,
		ElapsedTime: &elapsed,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated, _ := decodeBody(t, rec)["session"].(map[string]interface{})
	if updated["status"] != string(models.SessionPaused) {
		t.Errorf("Expected paused, got %v", updated["status"])
	}
	if updated["elapsed_time"] != float64(300) {
		t.Errorf("Expected elapsed_time 300, got %v", updated["elapsed_time"])
	}

	stored, err := states.Get(context.Background(), userID, uuid.MustParse(sessionID))
	if err != nil {
		t.Fatalf("Expected stored state: %v", err)
	}
	if stored.ElapsedTime != 300 {
		t.Errorf("Expected stored elapsed 300, got %d", stored.ElapsedTime)
	}
}

func TestEndSession_NotFound(t *testing.T) {
	router, _, _ := newSessionTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/study-sessions/"+uuid.NewString()+"/end", models.EndSessionRequest{})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "NOT_FOUND" {
		t.Errorf("Expected NOT_FOUND, got %q", code)
	}
}

func TestEndSession_ReturnsRecord(t *testing.T) {
	router, _, _ := newSessionTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/study-sessions/start", models.StartSessionRequest{
		Subject:    "Chemistry",
		TargetTime: 600,
	})
	session, _ := decodeBody(t, rec)["session"].(map[string]interface{})
	sessionID := session["id"].(string)

	elapsed := 900
	doJSON(t, router, http.MethodPut, "/study-sessions/"+sessionID, models.UpdateSessionRequest{ElapsedTime: &elapsed})

	rec = doJSON(t, router, http.MethodPost, "/study-sessions/"+sessionID+"/end", models.EndSessionRequest{Notes: "done"})

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	record, _ := decodeBody(t, rec)["record"].(map[string]interface{})
	if record["completed"] != true {
		t.Errorf("Expected completed record, got %v", record["completed"])
	}
	if record["notes"] != "done" {
		t.Errorf("Expected notes carried over, got %v", record["notes"])
	}

	// The live session is gone afterwards.
	rec = doJSON(t, router, http.MethodGet, "/study-sessions", nil)
	sessions, _ := decodeBody(t, rec)["sessions"].([]interface{})
	if len(sessions) != 0 {
		t.Errorf("Expected no live sessions after end, got %d", len(sessions))
	}
}

func TestCancelSession_NoRecord(t *testing.T) {
	router, _, _ := newSessionTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/study-sessions/start", models.StartSessionRequest{
		Subject:    "History",
		TargetTime: 600,
	})
	session, _ := decodeBody(t, rec)["session"].(map[string]interface{})
	sessionID := session["id"].(string)

	rec = doJSON(t, router, http.MethodDelete, "/study-sessions/"+sessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/study-sessions/"+sessionID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on repeat cancel, got %d", rec.Code)
	}
}

func TestListSessions_EmptyArrayNotNull(t *testing.T) {
	router, _, _ := newSessionTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/study-sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if _, ok := body["sessions"].([]interface{}); !ok {
		t.Errorf("Expected sessions to be an array, got %v", body["sessions"])
	}
}

func TestBeacon(t *testing.T) {
	type captured struct {
		sessionID uuid.UUID
		elapsed   int
	}
	var mu sync.Mutex
	var writes []captured

	states := newMemStateStore()
	coordinator := services.NewSessionCoordinator(states, memStatsStore{}, nil, nil)
	coalescer := services.NewSyncCoalescer(time.Hour, func(_, sessionID uuid.UUID, elapsed int) {
		mu.Lock()
		writes = append(writes, captured{sessionID, elapsed})
		mu.Unlock()
	})
	jwtAuth := middleware.NewJWTAuth("test-secret")
	h := NewSessionHandler(coordinator, coalescer, jwtAuth)

	r := chi.NewRouter()
	r.Post("/study-sessions/{id}/beacon", h.Beacon)

	userID := uuid.New()
	sessionID := uuid.New()
	token, err := jwtAuth.GenerateAccessToken(userID, "alice@example.com")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	t.Run("accepts valid write", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodPost, "/study-sessions/"+sessionID.String()+"/beacon?token="+token, map[string]int{"elapsed_time": 420})
		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d", rec.Code)
		}

		coalescer.Flush()
		mu.Lock()
		defer mu.Unlock()
		if len(writes) != 1 || writes[0].elapsed != 420 || writes[0].sessionID != sessionID {
			t.Errorf("Expected one flushed write of 420, got %+v", writes)
		}
	})

	t.Run("rejects missing token", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodPost, "/study-sessions/"+sessionID.String()+"/beacon", map[string]int{"elapsed_time": 420})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})

	t.Run("rejects negative elapsed", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodPost, "/study-sessions/"+sessionID.String()+"/beacon?token="+token, map[string]int{"elapsed_time": -5})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

type fakeMessageHistory struct {
	messages  []models.ChatMessage
	lastLimit int
}

func (f *fakeMessageHistory) ListRoom(_ context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	f.lastLimit = limit
	return f.messages, nil
}

func TestChatHistory(t *testing.T) {
	history := &fakeMessageHistory{messages: []models.ChatMessage{
		{ID: uuid.New(), RoomID: "deep-work", Body: "hello", Kind: models.MessageText},
	}}
	h := NewChatHandler(history)

	r := chi.NewRouter()
	r.Get("/chat/rooms/{roomID}/messages", h.History)

	t.Run("returns messages", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodGet, "/chat/rooms/deep-work/messages", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		messages, _ := decodeBody(t, rec)["messages"].([]interface{})
		if len(messages) != 1 {
			t.Errorf("Expected 1 message, got %d", len(messages))
		}
		if history.lastLimit != defaultHistoryLimit {
			t.Errorf("Expected default limit %d, got %d", defaultHistoryLimit, history.lastLimit)
		}
	})

	t.Run("caps oversized limit", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodGet, "/chat/rooms/deep-work/messages?limit=500", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if history.lastLimit != maxHistoryLimit {
			t.Errorf("Expected limit capped at %d, got %d", maxHistoryLimit, history.lastLimit)
		}
	})

	t.Run("rejects invalid limit", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodGet, "/chat/rooms/deep-work/messages?limit=abc", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

type fakeStatsReader struct {
	stats *models.UserStats
}

func (f *fakeStatsReader) Get(_ context.Context, _ uuid.UUID) (*models.UserStats, error) {
	return f.stats, nil
}

type fakeRecordHistory struct {
	records []models.StudySessionRecord
}

func (f *fakeRecordHistory) ListRecent(_ context.Context, _ uuid.UUID, _ int) ([]models.StudySessionRecord, error) {
	return f.records, nil
}

func TestStats(t *testing.T) {
	userID := uuid.New()
	h := NewStatsHandler(
		&fakeStatsReader{stats: &models.UserStats{UserID: userID, TotalSessions: 3, CurrentStreak: 2}},
		&fakeRecordHistory{},
	)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/stats", h.Stats)
	r.Get("/stats/history", h.History)

	t.Run("returns aggregates", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodGet, "/stats", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		stats, _ := decodeBody(t, rec)["stats"].(map[string]interface{})
		if stats["total_sessions"] != float64(3) {
			t.Errorf("Expected total_sessions 3, got %v", stats["total_sessions"])
		}
		if stats["current_streak"] != float64(2) {
			t.Errorf("Expected current_streak 2, got %v", stats["current_streak"])
		}
	})

	t.Run("history empty array not null", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodGet, "/stats/history", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if _, ok := decodeBody(t, rec)["records"].([]interface{}); !ok {
			t.Error("Expected records to be an array")
		}
	})

	t.Run("history rejects invalid limit", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodGet, "/stats/history?limit=0", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}
