package models

// StreamMetadata records the sidecar files generated for a stream's
// recording, plus segment bookkeeping for segmented captures.
type StreamMetadata struct {
	BaseModel

	StreamID ULID   `gorm:"not null;uniqueIndex;type:varchar(26)" json:"stream_id"`
	Stream   Stream `gorm:"foreignKey:StreamID;constraint:OnDelete:CASCADE" json:"-"`

	// VTTChaptersPath is the WebVTT chapter sidecar next to the MP4.
	VTTChaptersPath string `gorm:"size:1024" json:"vtt_chapters_path,omitempty"`
	// FFmpegChaptersPath is the ;FFMETADATA1 chapter sidecar.
	FFmpegChaptersPath string `gorm:"column:ffmpeg_chapters_path;size:1024" json:"ffmpeg_chapters_path,omitempty"`
	// NFOPath is the media-server episode NFO sidecar.
	NFOPath string `gorm:"size:1024" json:"nfo_path,omitempty"`
	// ThumbnailPath is the episode thumbnail image.
	ThumbnailPath string `gorm:"size:1024" json:"thumbnail_path,omitempty"`

	// SegmentsDir is the *_segments directory for segmented captures.
	SegmentsDir string `gorm:"size:1024" json:"segments_dir,omitempty"`
	// SegmentsRemoved is set once cleanup deleted the segments directory.
	SegmentsRemoved bool `gorm:"default:false" json:"segments_removed"`
}

// TableName returns the table name for StreamMetadata.
func (StreamMetadata) TableName() string {
	return "stream_metadata"
}
