package models

import (
	"encoding/json"
	"fmt"
)

// StepStatus is the durable status of one post-processing step.
type StepStatus string

const (
	// StepPending indicates the step has not started.
	StepPending StepStatus = "pending"
	// StepRunning indicates a worker is executing the step.
	StepRunning StepStatus = "running"
	// StepCompleted indicates the step finished and its output exists on disk.
	StepCompleted StepStatus = "completed"
	// StepFailed indicates the step failed after retries.
	StepFailed StepStatus = "failed"
	// StepCancelled indicates the step was cancelled.
	StepCancelled StepStatus = "cancelled"
)

// Post-processing step names. These double as queue task types.
const (
	StepMetadata      = "metadata_generation"
	StepChapters      = "chapters"
	StepRemux         = "mp4_remux"
	StepValidation    = "mp4_validation"
	StepThumbnail     = "thumbnail_generation"
	StepCleanup       = "cleanup"
	StepConcatenation = "segment_concatenation"
)

// ProcessingSteps is the canonical step order for a recording.
var ProcessingSteps = []string{
	StepMetadata,
	StepChapters,
	StepRemux,
	StepValidation,
	StepThumbnail,
	StepCleanup,
}

// RecordingProcessingState is the durable post-processing DAG status for one
// recording. Handlers re-read their step status before working and skip any
// step already completed, making the pipeline idempotent across restarts.
type RecordingProcessingState struct {
	BaseModel

	RecordingID ULID `gorm:"not null;uniqueIndex;type:varchar(26)" json:"recording_id"`
	StreamID    ULID `gorm:"not null;index;type:varchar(26)" json:"stream_id"`
	StreamerID  ULID `gorm:"not null;index;type:varchar(26)" json:"streamer_id"`

	MetadataStatus   StepStatus `gorm:"not null;size:16;default:'pending'" json:"metadata_status"`
	ChaptersStatus   StepStatus `gorm:"not null;size:16;default:'pending'" json:"chapters_status"`
	RemuxStatus      StepStatus `gorm:"not null;size:16;default:'pending'" json:"mp4_remux_status"`
	ValidationStatus StepStatus `gorm:"not null;size:16;default:'pending'" json:"mp4_validation_status"`
	ThumbnailStatus  StepStatus `gorm:"not null;size:16;default:'pending'" json:"thumbnail_status"`
	CleanupStatus    StepStatus `gorm:"not null;size:16;default:'pending'" json:"cleanup_status"`

	LastError string `gorm:"size:4096" json:"last_error,omitempty"`

	// TaskIDsJSON maps step name to the queue task id created for it, so a
	// restart can re-attach progress reporting.
	TaskIDsJSON string `gorm:"type:text" json:"task_ids_json,omitempty"`
}

// TableName returns the table name for RecordingProcessingState.
func (RecordingProcessingState) TableName() string {
	return "recording_processing_state"
}

// StepStatusFor returns the status of the named step.
func (s *RecordingProcessingState) StepStatusFor(step string) (StepStatus, error) {
	switch step {
	case StepMetadata:
		return s.MetadataStatus, nil
	case StepChapters:
		return s.ChaptersStatus, nil
	case StepRemux:
		return s.RemuxStatus, nil
	case StepValidation:
		return s.ValidationStatus, nil
	case StepThumbnail:
		return s.ThumbnailStatus, nil
	case StepCleanup:
		return s.CleanupStatus, nil
	default:
		return "", fmt.Errorf("unknown processing step: %s", step)
	}
}

// SetStepStatus sets the status of the named step.
func (s *RecordingProcessingState) SetStepStatus(step string, status StepStatus) error {
	switch step {
	case StepMetadata:
		s.MetadataStatus = status
	case StepChapters:
		s.ChaptersStatus = status
	case StepRemux:
		s.RemuxStatus = status
	case StepValidation:
		s.ValidationStatus = status
	case StepThumbnail:
		s.ThumbnailStatus = status
	case StepCleanup:
		s.CleanupStatus = status
	default:
		return fmt.Errorf("unknown processing step: %s", step)
	}
	return nil
}

// AllCompleted returns true when every step is completed.
func (s *RecordingProcessingState) AllCompleted() bool {
	for _, step := range ProcessingSteps {
		status, _ := s.StepStatusFor(step)
		if status != StepCompleted {
			return false
		}
	}
	return true
}

// EarliestIncomplete returns the first step, in canonical order, that is not
// completed. Returns "" when everything is done.
func (s *RecordingProcessingState) EarliestIncomplete() string {
	for _, step := range ProcessingSteps {
		status, _ := s.StepStatusFor(step)
		if status != StepCompleted {
			return step
		}
	}
	return ""
}

// TaskIDs decodes the step-name -> task id map.
func (s *RecordingProcessingState) TaskIDs() (map[string]string, error) {
	ids := make(map[string]string)
	if s.TaskIDsJSON == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(s.TaskIDsJSON), &ids); err != nil {
		return nil, fmt.Errorf("decoding task ids: %w", err)
	}
	return ids, nil
}

// SetTaskIDs encodes the step-name -> task id map.
func (s *RecordingProcessingState) SetTaskIDs(ids map[string]string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding task ids: %w", err)
	}
	s.TaskIDsJSON = string(data)
	return nil
}
