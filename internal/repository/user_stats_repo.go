package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"focusvault-backend/internal/models"
)

type UserStatsRepo struct {
	pool *pgxpool.Pool
}

func NewUserStatsRepo(pool *pgxpool.Pool) *UserStatsRepo {
	return &UserStatsRepo{pool: pool}
}

// Get returns the user's aggregate stats, or a zero-value aggregate if the
// user has never finished a session.
func (r *UserStatsRepo) Get(ctx context.Context, userID uuid.UUID) (*models.UserStats, error) {
	stats, err := scanUserStats(r.pool.QueryRow(ctx, `
		SELECT user_id, total_seconds, total_sessions, subjects, daily,
		       current_streak, highest_streak, last_study_date, updated_at
		FROM user_stats
		WHERE user_id = $1
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.UserStats{UserID: userID}, nil
	}
	return stats, err
}

// ApplySession folds one finished session into the aggregate under a row
// lock, so concurrent ends for the same owner on different subjects cannot
// lose updates.
func (r *UserStatsRepo) ApplySession(ctx context.Context, rec *models.StudySessionRecord, day string) (*models.UserStats, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin stats transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Ensure the row exists before locking it.
	_, err = tx.Exec(ctx, `
		INSERT INTO user_stats (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stats row: %w", err)
	}

	stats, err := scanUserStats(tx.QueryRow(ctx, `
		SELECT user_id, total_seconds, total_sessions, subjects, daily,
		       current_streak, highest_streak, last_study_date, updated_at
		FROM user_stats
		WHERE user_id = $1
		FOR UPDATE
	`, rec.UserID))
	if err != nil {
		return nil, err
	}

	stats.ApplySession(rec, day)
	stats.UpdatedAt = time.Now().UTC()

	subjectsJSON, err := json.Marshal(stats.Subjects)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subjects: %w", err)
	}
	dailyJSON, err := json.Marshal(stats.Daily)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal daily buckets: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE user_stats
		SET total_seconds = $2,
			total_sessions = $3,
			subjects = $4,
			daily = $5,
			current_streak = $6,
			highest_streak = $7,
			last_study_date = $8,
			updated_at = $9
		WHERE user_id = $1
	`, stats.UserID, stats.TotalSeconds, stats.TotalSessions, subjectsJSON, dailyJSON,
		stats.CurrentStreak, stats.HighestStreak, stats.LastStudyDate, stats.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to write stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stats: %w", err)
	}
	return stats, nil
}

func scanUserStats(row pgx.Row) (*models.UserStats, error) {
	var stats models.UserStats
	var subjectsJSON, dailyJSON []byte
	err := row.Scan(
		&stats.UserID,
		&stats.TotalSeconds,
		&stats.TotalSessions,
		&subjectsJSON,
		&dailyJSON,
		&stats.CurrentStreak,
		&stats.HighestStreak,
		&stats.LastStudyDate,
		&stats.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(subjectsJSON, &stats.Subjects); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subjects: %w", err)
	}
	if err := json.Unmarshal(dailyJSON, &stats.Daily); err != nil {
		return nil, fmt.Errorf("failed to unmarshal daily buckets: %w", err)
	}
	return &stats, nil
}
