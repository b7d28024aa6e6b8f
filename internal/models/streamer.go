package models

// Streamer represents a platform channel the operator has registered for
// automatic recording. Rows are created by the operator and mutated by
// platform-event ingestion; they are never deleted while streams reference
// them.
type Streamer struct {
	BaseModel

	// PlatformID is the external platform identifier for this channel.
	PlatformID string `gorm:"not null;size:64;uniqueIndex" json:"platform_id"`

	// Username is the platform login name. Matching is case-insensitive;
	// the canonical lowercase form is stored.
	Username string `gorm:"not null;size:128;uniqueIndex" json:"username"`

	// DisplayName is the platform display name, shown in UIs and filenames.
	DisplayName string `gorm:"size:255" json:"display_name"`

	// CategoryName is the channel's current category/game.
	CategoryName string `gorm:"size:255" json:"category_name,omitempty"`

	// IsLive reflects the last known live state from platform events.
	IsLive bool `gorm:"default:false;index" json:"is_live"`

	// ProfileImageURL is the current platform profile image.
	ProfileImageURL string `gorm:"size:1024" json:"profile_image_url,omitempty"`
	// ArchivedImageURL points to the locally archived copy of the profile image.
	ArchivedImageURL string `gorm:"size:1024" json:"archived_image_url,omitempty"`
	// BannerURL is the current platform banner image.
	BannerURL string `gorm:"size:1024" json:"banner_url,omitempty"`
	// ArchivedBannerURL points to the locally archived banner copy.
	ArchivedBannerURL string `gorm:"size:1024" json:"archived_banner_url,omitempty"`

	// IsTestData marks rows created by fixtures so cleanup can find them.
	IsTestData bool `gorm:"default:false" json:"is_test_data,omitempty"`
}

// TableName returns the table name for Streamer.
func (Streamer) TableName() string {
	return "streamers"
}

// Name returns the best human-readable name for the streamer.
func (s *Streamer) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Username
}
