// Package queue implements the background task system: a progress tracker,
// a dependency DAG, per-streamer worker pools and the manager that composes
// them. Post-processing steps, captures and maintenance checks all flow
// through it.
package queue

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/streamvault/streamvault/internal/models"
)

// TaskStatus is the lifecycle state of a queue task.
type TaskStatus string

const (
	// TaskPending indicates the task is waiting on dependencies.
	TaskPending TaskStatus = "pending"
	// TaskReady indicates all dependencies completed and the task can run.
	TaskReady TaskStatus = "ready"
	// TaskRunning indicates a worker is executing the task.
	TaskRunning TaskStatus = "running"
	// TaskCompleted indicates the task finished successfully.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed indicates the task failed after retries.
	TaskFailed TaskStatus = "failed"
	// TaskCancelled indicates the task was cancelled.
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal returns true when no further transitions are expected.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Task types beyond the post-processing steps in models.
const (
	TaskTypeCapture     = "capture"
	TaskTypeOrphanCheck = "orphan_recovery_check"
)

// OrphanCheckLimitID is the sentinel id returned when an orphan-check
// enqueue is refused by the in-flight cap. No task with this id ever runs.
const OrphanCheckLimitID = "orphan-check-limit-reached"

// Payload carries the typed task parameters. One variant exists per task
// family; the generic map form appears only at the wire boundary.
type Payload interface {
	// TaskType returns the handler registry key.
	TaskType() string
	// StreamerKey returns the per-streamer queue key, or "" when unknown.
	StreamerKey() string
}

// StepPayload is the payload for every post-processing step handler.
type StepPayload struct {
	Step         string      `json:"step"`
	RecordingID  models.ULID `json:"recording_id"`
	StreamID     models.ULID `json:"stream_id"`
	StreamerID   models.ULID `json:"streamer_id"`
	StreamerName string      `json:"streamer_name,omitempty"`
	// TSPath is the capture output (canonical TS once concatenation ran).
	TSPath string `json:"ts_path"`
	// SegmentsDir is set for segmented captures.
	SegmentsDir string `json:"segments_dir,omitempty"`
}

// TaskType returns the step name, which doubles as the handler key.
func (p StepPayload) TaskType() string { return p.Step }

// StreamerKey returns the streamer queue key.
func (p StepPayload) StreamerKey() string { return p.StreamerName }

// CapturePayload is the payload of an external capture task.
type CapturePayload struct {
	RecordingID  models.ULID `json:"recording_id"`
	StreamID     models.ULID `json:"stream_id"`
	StreamerID   models.ULID `json:"streamer_id"`
	StreamerName string      `json:"streamer_name"`
	ProcessID    string      `json:"process_id"`
	OutputPath   string      `json:"output_path"`
}

// TaskType returns the capture task type.
func (p CapturePayload) TaskType() string { return TaskTypeCapture }

// StreamerKey returns the streamer queue key.
func (p CapturePayload) StreamerKey() string { return p.StreamerName }

// OrphanCheckPayload is the payload of a recovery orphan check.
type OrphanCheckPayload struct {
	Root string `json:"root"`
}

// TaskType returns the orphan check task type.
func (p OrphanCheckPayload) TaskType() string { return TaskTypeOrphanCheck }

// StreamerKey returns "" — orphan checks are not streamer-scoped.
func (p OrphanCheckPayload) StreamerKey() string { return "" }

// Task is one unit of background work. Lower Priority drains first; ties
// break on CreatedAt.
type Task struct {
	ID       string     `json:"id"`
	Type     string     `json:"task_type"`
	Status   TaskStatus `json:"status"`
	Priority int        `json:"priority"`
	// Progress is 0-100.
	Progress float64 `json:"progress"`

	Payload      Payload `json:"payload"`
	StreamerName string  `json:"streamer_name,omitempty"`
	// External marks tasks whose execution is owned outside the worker
	// pool (captures).
	External bool `json:"external,omitempty"`

	// Dependencies are task ids that must complete first.
	Dependencies []string `json:"dependencies,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
}

// NewTask creates a pending task with a fresh id.
func NewTask(payload Payload, priority int, deps ...string) *Task {
	return &Task{
		ID:           ulid.Make().String(),
		Type:         payload.TaskType(),
		Status:       TaskPending,
		Priority:     priority,
		Payload:      payload,
		StreamerName: payload.StreamerKey(),
		Dependencies: deps,
		CreatedAt:    time.Now().UTC(),
	}
}

// Clone returns a shallow copy safe to hand to listeners.
func (t *Task) Clone() Task {
	c := *t
	c.Dependencies = append([]string(nil), t.Dependencies...)
	return c
}
