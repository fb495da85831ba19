package services

// Service error types, mapped to HTTP codes (or realtime error events) by
// the callers.

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

// CapacityError is raised when a chat room is already at its member cap.
type CapacityError struct{ Message string }

func (e *CapacityError) Error() string { return e.Message }
