package models

import "time"

// Stream represents a single live broadcast by a streamer. It is created
// when the streamer goes live, mutated on metadata updates, and sealed
// (EndedAt set) when the capture terminates. Deleting a stream cascades to
// its recordings.
type Stream struct {
	BaseModel

	StreamerID ULID     `gorm:"not null;index;type:varchar(26)" json:"streamer_id"`
	Streamer   Streamer `gorm:"foreignKey:StreamerID" json:"-"`

	// PlatformStreamID is the external stream id, when the platform provided one.
	PlatformStreamID string `gorm:"size:64;index" json:"platform_stream_id,omitempty"`

	Title        string `gorm:"size:512" json:"title"`
	CategoryName string `gorm:"size:255" json:"category_name,omitempty"`
	Language     string `gorm:"size:16" json:"language,omitempty"`

	StartedAt time.Time  `gorm:"not null;index" json:"started_at"`
	// EndedAt is NULL while the stream is live.
	EndedAt *time.Time `json:"ended_at,omitempty"`

	// EpisodeNumber is the monthly episode number, assigned once on start.
	// Within a (streamer, YYYYMM) bucket it is monotonic and never re-used.
	EpisodeNumber int `gorm:"not null;default:0" json:"episode_number"`

	// RecordingPath is the finalized MP4 location once known.
	RecordingPath string `gorm:"size:1024" json:"recording_path,omitempty"`
}

// TableName returns the table name for Stream.
func (Stream) TableName() string {
	return "streams"
}

// IsLive returns true while the stream has not been sealed.
func (s *Stream) IsLive() bool {
	return s.EndedAt == nil
}

// SeasonKey returns the YYYYMM season bucket the stream belongs to.
func (s *Stream) SeasonKey() string {
	return s.StartedAt.UTC().Format("200601")
}

// Chapter records an in-stream category or title change observed while the
// stream was live. Chapters feed the WebVTT and FFmpeg chapter sidecars.
type Chapter struct {
	BaseModel

	StreamID ULID   `gorm:"not null;index;type:varchar(26)" json:"stream_id"`
	Stream   Stream `gorm:"foreignKey:StreamID;constraint:OnDelete:CASCADE" json:"-"`

	// Title is the chapter label (new stream title or category name).
	Title string `gorm:"size:512" json:"title"`
	// CategoryName is the category at the time of the change.
	CategoryName string `gorm:"size:255" json:"category_name,omitempty"`
	// StartOffset is the offset from stream start.
	StartOffsetSeconds float64 `gorm:"not null" json:"start_offset_seconds"`
}

// TableName returns the table name for Chapter.
func (Chapter) TableName() string {
	return "stream_chapters"
}
