package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"focusvault-backend/internal/models"
)

// SessionStateStore is the persistence contract for live sessions.
// *repository.SessionStateRepo satisfies it.
type SessionStateStore interface {
	Get(ctx context.Context, userID, sessionID uuid.UUID) (*models.StudySessionState, error)
	GetBySubject(ctx context.Context, userID uuid.UUID, subject string) (*models.StudySessionState, error)
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]models.StudySessionState, error)
	Insert(ctx context.Context, s *models.StudySessionState) error
	ApplyPartial(ctx context.Context, userID, sessionID uuid.UUID, req models.UpdateSessionRequest, now time.Time) (*models.StudySessionState, error)
	Delete(ctx context.Context, userID, sessionID uuid.UUID) error
	Finalize(ctx context.Context, s *models.StudySessionState, rec *models.StudySessionRecord) error
}

// StatsStore applies finished sessions to the per-user aggregate.
// *repository.UserStatsRepo satisfies it.
type StatsStore interface {
	ApplySession(ctx context.Context, rec *models.StudySessionRecord, day string) (*models.UserStats, error)
}

// SessionCoordinator owns the lifecycle of live study sessions: one logical
// session per (user, subject), merge-on-start resume, atomic end with stat
// aggregation, and a fire-and-forget relay of lifecycle events to the
// owner's other devices via redis pub/sub.
type SessionCoordinator struct {
	states   SessionStateStore
	stats    StatsStore
	redis    *redis.Client
	notifier Notifier
}

func NewSessionCoordinator(states SessionStateStore, stats StatsStore, redisClient *redis.Client, notifier Notifier) *SessionCoordinator {
	return &SessionCoordinator{
		states:   states,
		stats:    stats,
		redis:    redisClient,
		notifier: notifier,
	}
}

// SessionChannel is the pub/sub channel carrying session lifecycle events
// for one owner. The realtime gateway subscribes to it per connected user.
func SessionChannel(userID uuid.UUID) string {
	return "session_updates:" + userID.String()
}

// Start opens a session for (owner, subject), or resumes the existing one.
// Repeated starts are deliberately not an error: duplicate client requests
// (double-click, reconnect race) must converge on a single live session.
func (c *SessionCoordinator) Start(ctx context.Context, userID uuid.UUID, req models.StartSessionRequest) (*models.StudySessionState, error) {
	fieldErrors := make(map[string]string)
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		fieldErrors["subject"] = "Subject is required"
	}
	if req.TargetTime <= 0 {
		fieldErrors["target_time"] = "Target time must be positive"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	now := time.Now().UTC()

	existing, err := c.states.GetBySubject(ctx, userID, subject)
	if err == nil {
		active := models.SessionActive
		resumed, err := c.states.ApplyPartial(ctx, userID, existing.ID, models.UpdateSessionRequest{Status: &active}, now)
		if err != nil {
			return nil, fmt.Errorf("failed to resume session: %w", err)
		}
		c.publishRelay(ctx, userID, "session:resume", resumed)
		return resumed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	state := &models.StudySessionState{
		ID:           uuid.New(),
		UserID:       userID,
		Subject:      subject,
		Status:       models.SessionActive,
		ElapsedTime:  0,
		TargetTime:   req.TargetTime,
		StartTime:    now,
		LastActiveAt: now,
	}
	if err := c.states.Insert(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c.publishRelay(ctx, userID, "session:start", state)
	return state, nil
}

// Update applies the provided fields to a live session. The merge happens
// in a single statement at the store, so concurrent updates from two
// devices serialize on the row: overlapping fields are last-write-wins,
// non-overlapping fields both survive. Elapsed time is not validated
// against earlier values because the client owns the ticking clock while
// the session is live.
func (c *SessionCoordinator) Update(ctx context.Context, userID, sessionID uuid.UUID, req models.UpdateSessionRequest) (*models.StudySessionState, error) {
	if req.Status != nil && !req.Status.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"status": "Status must be active or paused"}}
	}
	if req.ElapsedTime != nil && *req.ElapsedTime < 0 {
		return nil, &ValidationError{Fields: map[string]string{"elapsed_time": "Elapsed time cannot be negative"}}
	}

	state, err := c.states.ApplyPartial(ctx, userID, sessionID, req, time.Now().UTC())
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Message: "No live session with that ID"}
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// End finalizes a live session: it writes the immutable history record and
// removes the live state in one transaction, then folds the record into the
// owner's aggregate stats.
func (c *SessionCoordinator) End(ctx context.Context, userID, sessionID uuid.UUID, notes string) (*models.StudySessionRecord, error) {
	state, err := c.states.Get(ctx, userID, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Message: "No live session with that ID"}
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(notes) == "" {
		notes = state.Notes
	}
	now := time.Now().UTC()
	rec := &models.StudySessionRecord{
		ID:         uuid.New(),
		UserID:     state.UserID,
		Subject:    state.Subject,
		ActualTime: state.ElapsedTime,
		TargetTime: state.TargetTime,
		StartTime:  state.StartTime,
		EndTime:    now,
		Completed:  state.ElapsedTime >= state.TargetTime,
		Notes:      notes,
	}

	if err := c.states.Finalize(ctx, state, rec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "No live session with that ID"}
		}
		return nil, err
	}

	if _, err := c.stats.ApplySession(ctx, rec, models.DayKey(now)); err != nil {
		// The record is already committed; aggregation is a side effect.
		log.Printf("failed to apply stats for user %s: %v", userID, err)
	}

	c.publishRelay(ctx, userID, "session:complete", rec)

	if rec.Completed && c.notifier != nil {
		subject := "Study goal reached"
		body := fmt.Sprintf("You finished %q and hit your %d minute target. Keep the streak going!", rec.Subject, rec.TargetTime/60)
		if err := c.notifier.Notify(ctx, userID, subject, body); err != nil {
			log.Printf("failed to notify user %s: %v", userID, err)
		}
	}

	return rec, nil
}

// Cancel discards a live session without writing history.
func (c *SessionCoordinator) Cancel(ctx context.Context, userID, sessionID uuid.UUID) error {
	err := c.states.Delete(ctx, userID, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Message: "No live session with that ID"}
	}
	return err
}

// ListActive returns the owner's live sessions, most recently active first.
func (c *SessionCoordinator) ListActive(ctx context.Context, userID uuid.UUID) ([]models.StudySessionState, error) {
	return c.states.ListByOwner(ctx, userID)
}

// publishRelay fans a lifecycle event out to the owner's other devices.
// Failures are logged and dropped; session state is already persisted.
func (c *SessionCoordinator) publishRelay(ctx context.Context, userID uuid.UUID, eventType string, payload interface{}) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(map[string]interface{}{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		return
	}
	if err := c.redis.Publish(ctx, SessionChannel(userID), data).Err(); err != nil {
		log.Printf("failed to publish %s for user %s: %v", eventType, userID, err)
	}
}
