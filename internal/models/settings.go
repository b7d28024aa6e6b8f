package models

// GlobalSettings is a single-row table holding instance-wide configuration
// that must survive restarts but is not file configuration. Credential
// columns are encrypted at rest with the key stored in EncryptionKey,
// auto-generated on first use.
type GlobalSettings struct {
	BaseModel

	// EncryptionKey is the base64-encoded AES-256 key used to encrypt
	// credential columns. Generated on first use.
	EncryptionKey string `gorm:"size:64" json:"-"`

	// AccessTokenEnc and RefreshTokenEnc are the platform OAuth tokens,
	// encrypted with EncryptionKey.
	AccessTokenEnc  string `gorm:"size:2048" json:"-"`
	RefreshTokenEnc string `gorm:"size:2048" json:"-"`

	// RecordingsRetentionDays optionally bounds how long completed
	// recordings are kept (0 = forever).
	RecordingsRetentionDays int `gorm:"default:0" json:"recordings_retention_days"`
}

// TableName returns the table name for GlobalSettings.
func (GlobalSettings) TableName() string {
	return "global_settings"
}

// ProxySettings holds the optional capture proxy, with the URL (which may
// embed credentials) encrypted at rest.
type ProxySettings struct {
	BaseModel

	Enabled bool `gorm:"default:false" json:"enabled"`
	// ProxyURLEnc is the proxy URL encrypted with the global key.
	ProxyURLEnc string `gorm:"size:2048" json:"-"`
}

// TableName returns the table name for ProxySettings.
func (ProxySettings) TableName() string {
	return "proxy_settings"
}

// StreamerRecordingSettings holds per-streamer capture overrides.
type StreamerRecordingSettings struct {
	BaseModel

	StreamerID ULID `gorm:"not null;uniqueIndex;type:varchar(26)" json:"streamer_id"`

	// Enabled controls whether live events trigger automatic recording.
	Enabled bool `gorm:"default:true" json:"enabled"`
	// Quality overrides the global capture quality when set.
	Quality string `gorm:"size:32" json:"quality,omitempty"`
	// CodecPreference overrides the global codec preference list when set.
	CodecPreference string `gorm:"size:255" json:"codec_preference,omitempty"`
}

// TableName returns the table name for StreamerRecordingSettings.
func (StreamerRecordingSettings) TableName() string {
	return "streamer_recording_settings"
}
