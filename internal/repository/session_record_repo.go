package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"focusvault-backend/internal/models"
)

type SessionRecordRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRecordRepo(pool *pgxpool.Pool) *SessionRecordRepo {
	return &SessionRecordRepo{pool: pool}
}

func (r *SessionRecordRepo) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]models.StudySessionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, subject, actual_time, target_time, start_time, end_time, completed, notes
		FROM study_session_records
		WHERE user_id = $1
		ORDER BY end_time DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}
	defer rows.Close()

	var records []models.StudySessionRecord
	for rows.Next() {
		var rec models.StudySessionRecord
		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Subject,
			&rec.ActualTime,
			&rec.TargetTime,
			&rec.StartTime,
			&rec.EndTime,
			&rec.Completed,
			&rec.Notes,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
