package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"focusvault-backend/internal/models"
)

type SessionStateRepo struct {
	pool *pgxpool.Pool
}

func NewSessionStateRepo(pool *pgxpool.Pool) *SessionStateRepo {
	return &SessionStateRepo{pool: pool}
}

const sessionStateColumns = `id, user_id, subject, status, elapsed_time, target_time, notes, start_time, last_active_at`

func scanSessionState(row pgx.Row) (*models.StudySessionState, error) {
	var s models.StudySessionState
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Subject,
		&s.Status,
		&s.ElapsedTime,
		&s.TargetTime,
		&s.Notes,
		&s.StartTime,
		&s.LastActiveAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionStateRepo) Get(ctx context.Context, userID, sessionID uuid.UUID) (*models.StudySessionState, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionStateColumns+`
		FROM study_session_states
		WHERE id = $1 AND user_id = $2
	`, sessionID, userID)
	return scanSessionState(row)
}

func (r *SessionStateRepo) GetBySubject(ctx context.Context, userID uuid.UUID, subject string) (*models.StudySessionState, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionStateColumns+`
		FROM study_session_states
		WHERE user_id = $1 AND subject = $2
	`, userID, subject)
	return scanSessionState(row)
}

func (r *SessionStateRepo) ListByOwner(ctx context.Context, userID uuid.UUID) ([]models.StudySessionState, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionStateColumns+`
		FROM study_session_states
		WHERE user_id = $1
		ORDER BY last_active_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session states: %w", err)
	}
	defer rows.Close()

	var states []models.StudySessionState
	for rows.Next() {
		s, err := scanSessionState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *s)
	}
	return states, rows.Err()
}

func (r *SessionStateRepo) Insert(ctx context.Context, s *models.StudySessionState) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO study_session_states (id, user_id, subject, status, elapsed_time, target_time, notes, start_time, last_active_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.UserID, s.Subject, s.Status, s.ElapsedTime, s.TargetTime, s.Notes, s.StartTime, s.LastActiveAt)
	if err != nil {
		return fmt.Errorf("failed to insert session state: %w", err)
	}
	return nil
}

// ApplyPartial merges the request's set fields into the row in one
// statement. Unset fields fall through to the stored value, so two devices
// updating different fields at the same time serialize on the row instead
// of one read-modify-write erasing the other's write.
func (r *SessionStateRepo) ApplyPartial(ctx context.Context, userID, sessionID uuid.UUID, req models.UpdateSessionRequest, now time.Time) (*models.StudySessionState, error) {
	var status *string
	if req.Status != nil {
		s := string(*req.Status)
		status = &s
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE study_session_states
		SET status = COALESCE($3, status),
			elapsed_time = COALESCE($4, elapsed_time),
			notes = COALESCE($5, notes),
			last_active_at = $6
		WHERE id = $1 AND user_id = $2
		RETURNING `+sessionStateColumns+`
	`, sessionID, userID, status, req.ElapsedTime, req.Notes, now)
	return scanSessionState(row)
}

func (r *SessionStateRepo) Delete(ctx context.Context, userID, sessionID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM study_session_states
		WHERE id = $1 AND user_id = $2
	`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Finalize converts a live session into a history record in one
// transaction: the record insert and the state delete commit together or
// not at all. The delete is the guard against a concurrent end for the same
// session.
func (r *SessionStateRepo) Finalize(ctx context.Context, s *models.StudySessionState, rec *models.StudySessionRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin finalize transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM study_session_states
		WHERE id = $1 AND user_id = $2
	`, s.ID, s.UserID)
	if err != nil {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO study_session_records (id, user_id, subject, actual_time, target_time, start_time, end_time, completed, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.UserID, rec.Subject, rec.ActualTime, rec.TargetTime, rec.StartTime, rec.EndTime, rec.Completed, rec.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert session record: %w", err)
	}

	return tx.Commit(ctx)
}
