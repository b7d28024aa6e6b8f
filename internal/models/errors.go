package models

import "errors"

// Sentinel errors shared across services and repositories.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCapacity indicates the configured concurrency limit was reached.
	ErrCapacity = errors.New("capacity limit reached")
	// ErrAlreadyRecording indicates the stream already has an active recording.
	ErrAlreadyRecording = errors.New("recording already active for stream")
	// ErrShuttingDown indicates the service is shutting down and refuses new work.
	ErrShuttingDown = errors.New("shutting down")
	// ErrInvalidToken indicates a missing or expired share token.
	ErrInvalidToken = errors.New("invalid or expired share token")
	// ErrStepCompleted indicates a processing step was already completed.
	ErrStepCompleted = errors.New("processing step already completed")
)
