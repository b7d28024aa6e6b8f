package models

import "time"

// RecordingStatus represents the current status of a recording.
type RecordingStatus string

const (
	// RecordingStatusRecording indicates an active capture.
	RecordingStatusRecording RecordingStatus = "recording"
	// RecordingStatusProcessing indicates post-processing is underway.
	RecordingStatusProcessing RecordingStatus = "processing"
	// RecordingStatusCompleted indicates capture and processing finished.
	RecordingStatusCompleted RecordingStatus = "completed"
	// RecordingStatusStopped indicates the capture was stopped by request.
	RecordingStatusStopped RecordingStatus = "stopped"
	// RecordingStatusFailed indicates the recording failed.
	RecordingStatusFailed RecordingStatus = "failed"
)

// IsTerminal returns true when no further status transitions are expected.
func (s RecordingStatus) IsTerminal() bool {
	return s == RecordingStatusCompleted || s == RecordingStatusStopped || s == RecordingStatusFailed
}

// Recording represents one capture of a stream. Path points at the current
// working file: the TS during capture, the MP4 after remux. At most one
// recording per stream is active at a time; the lifecycle manager enforces
// this, not a database constraint.
type Recording struct {
	BaseModel

	StreamID ULID   `gorm:"not null;index;type:varchar(26)" json:"stream_id"`
	Stream   Stream `gorm:"foreignKey:StreamID;constraint:OnDelete:CASCADE" json:"-"`

	Path   string          `gorm:"not null;size:1024" json:"path"`
	Status RecordingStatus `gorm:"not null;size:20;index" json:"status"`

	StartTime time.Time  `gorm:"not null" json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	FileSize        *int64   `json:"file_size,omitempty"`

	// ErrorMessage is the one-line human-readable failure description.
	ErrorMessage string `gorm:"size:2048" json:"error_message,omitempty"`
	// FailureReason is a stable machine-readable failure tag.
	FailureReason string `gorm:"size:64" json:"failure_reason,omitempty"`
	// ErroredAt is when the failure was recorded.
	ErroredAt *time.Time `json:"errored_at,omitempty"`
}

// TableName returns the table name for Recording.
func (Recording) TableName() string {
	return "recordings"
}

// MarkFailed records a failure with a machine-readable reason tag.
func (r *Recording) MarkFailed(reason, message string) {
	now := Now()
	r.Status = RecordingStatusFailed
	r.FailureReason = reason
	r.ErrorMessage = message
	r.ErroredAt = &now
	if r.EndTime == nil {
		r.EndTime = &now
	}
}

// ActiveRecordingStatus is the status of an ActiveRecordingState row.
type ActiveRecordingStatus string

const (
	// ActiveRecordingActive indicates a healthy capture.
	ActiveRecordingActive ActiveRecordingStatus = "active"
	// ActiveRecordingError indicates the capture reported an error.
	ActiveRecordingError ActiveRecordingStatus = "error"
)

// ActiveRecordingState is the durable capture registry. One row exists per
// active capture; rows survive process restarts so recovery can reconcile
// them. Rows without a heartbeat for five minutes are recovery candidates.
type ActiveRecordingState struct {
	BaseModel

	StreamID    ULID `gorm:"not null;uniqueIndex;type:varchar(26)" json:"stream_id"`
	RecordingID ULID `gorm:"not null;index;type:varchar(26)" json:"recording_id"`

	// PID is the OS process id of the capture child.
	PID int `gorm:"not null" json:"pid"`
	// ProcessID is the synthetic supervisor identifier (stream_<id>).
	ProcessID string `gorm:"not null;size:64;index" json:"process_id"`

	StreamerName string    `gorm:"not null;size:255" json:"streamer_name"`
	StartedAt    time.Time `gorm:"not null" json:"started_at"`

	// OutputPath is the TS path the capture writes to.
	OutputPath string `gorm:"not null;size:1024" json:"output_path"`

	// Forced marks recordings started by operator override rather than a
	// platform live event.
	Forced  bool   `gorm:"default:false" json:"forced"`
	Quality string `gorm:"size:32" json:"quality"`

	Status        ActiveRecordingStatus `gorm:"not null;size:16;default:'active'" json:"status"`
	LastHeartbeat time.Time             `gorm:"not null;index" json:"last_heartbeat"`

	// ConfigJSON is an opaque capture configuration blob.
	ConfigJSON string `gorm:"type:text" json:"config_json,omitempty"`
}

// TableName returns the table name for ActiveRecordingState.
func (ActiveRecordingState) TableName() string {
	return "active_recording_state"
}

// HeartbeatStale returns true when the heartbeat is older than the window.
func (a *ActiveRecordingState) HeartbeatStale(window time.Duration) bool {
	return time.Since(a.LastHeartbeat) > window
}
