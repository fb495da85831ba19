package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"focusvault-backend/internal/models"
)

type ChatMessageRepo struct {
	pool *pgxpool.Pool
}

func NewChatMessageRepo(pool *pgxpool.Pool) *ChatMessageRepo {
	return &ChatMessageRepo{pool: pool}
}

func (r *ChatMessageRepo) Insert(ctx context.Context, m *models.ChatMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, room_id, user_id, display_name, avatar_url, body, kind, edited, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.RoomID, m.UserID, m.DisplayName, m.AvatarURL, m.Body, m.Kind, m.Edited, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// ListRoom returns the most recent messages for a room in chronological
// order (oldest first), so clients can render history directly.
func (r *ChatMessageRepo) ListRoom(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, room_id, user_id, display_name, avatar_url, body, kind, edited, created_at
		FROM (
			SELECT id, room_id, user_id, display_name, avatar_url, body, kind, edited, created_at
			FROM chat_messages
			WHERE room_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.UserID,
			&m.DisplayName,
			&m.AvatarURL,
			&m.Body,
			&m.Kind,
			&m.Edited,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
