package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
)

func (s SessionStatus) Valid() bool {
	return s == SessionActive || s == SessionPaused
}

// StudySessionState is a live (active or paused) timer. At most one exists
// per (user, subject); starting the same subject again resumes it.
type StudySessionState struct {
	ID           uuid.UUID     `json:"id"`
	UserID       uuid.UUID     `json:"user_id"`
	Subject      string        `json:"subject"`
	Status       SessionStatus `json:"status"`
	ElapsedTime  int           `json:"elapsed_time"`
	TargetTime   int           `json:"target_time"`
	Notes        string        `json:"notes"`
	StartTime    time.Time     `json:"start_time"`
	LastActiveAt time.Time     `json:"last_active_at"`
}

// StudySessionRecord is the immutable history row written when a live
// session ends.
type StudySessionRecord struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Subject    string    `json:"subject"`
	ActualTime int       `json:"actual_time"`
	TargetTime int       `json:"target_time"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Completed  bool      `json:"completed"`
	Notes      string    `json:"notes"`
}

type StartSessionRequest struct {
	Subject    string `json:"subject"`
	TargetTime int    `json:"target_time"`
}

type UpdateSessionRequest struct {
	Status      *SessionStatus `json:"status,omitempty"`
	ElapsedTime *int           `json:"elapsed_time,omitempty"`
	Notes       *string        `json:"notes,omitempty"`
}

type EndSessionRequest struct {
	Notes string `json:"notes"`
}
