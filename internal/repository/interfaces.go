// Package repository provides data access layer interfaces and GORM
// implementations for streamvault entities. Lookups that find nothing return
// (nil, nil); callers decide whether absence is an error.
package repository

import (
	"context"
	"time"

	"github.com/streamvault/streamvault/internal/models"
)

// StreamerRepository manages registered streamers.
type StreamerRepository interface {
	Create(ctx context.Context, streamer *models.Streamer) error
	GetByID(ctx context.Context, id models.ULID) (*models.Streamer, error)
	GetByPlatformID(ctx context.Context, platformID string) (*models.Streamer, error)
	// GetByUsername matches case-insensitively.
	GetByUsername(ctx context.Context, username string) (*models.Streamer, error)
	GetAll(ctx context.Context) ([]*models.Streamer, error)
	GetLive(ctx context.Context) ([]*models.Streamer, error)
	Update(ctx context.Context, streamer *models.Streamer) error
	SetLive(ctx context.Context, id models.ULID, live bool) error
	Delete(ctx context.Context, id models.ULID) error
}

// StreamRepository manages streams and their chapters.
type StreamRepository interface {
	Create(ctx context.Context, stream *models.Stream) error
	GetByID(ctx context.Context, id models.ULID) (*models.Stream, error)
	GetByPlatformStreamID(ctx context.Context, platformStreamID string) (*models.Stream, error)
	// GetLiveByStreamer returns the streamer's current unsealed stream, if any.
	GetLiveByStreamer(ctx context.Context, streamerID models.ULID) (*models.Stream, error)
	GetByStreamer(ctx context.Context, streamerID models.ULID, offset, limit int) ([]*models.Stream, int64, error)
	// GetRecorded returns streams with a finalized recording path.
	GetRecorded(ctx context.Context, offset, limit int) ([]*models.Stream, int64, error)
	Update(ctx context.Context, stream *models.Stream) error
	// Seal sets EndedAt, closing the stream.
	Seal(ctx context.Context, id models.ULID, endedAt time.Time) error
	Delete(ctx context.Context, id models.ULID) error

	// MaxEpisodeNumber returns the highest episode number assigned to the
	// streamer for streams started in [from, to). Zero when none exist.
	MaxEpisodeNumber(ctx context.Context, streamerID models.ULID, from, to time.Time) (int, error)
}

// ChapterRepository manages in-stream chapter markers.
type ChapterRepository interface {
	Create(ctx context.Context, chapter *models.Chapter) error
	GetByStream(ctx context.Context, streamID models.ULID) ([]*models.Chapter, error)
	DeleteByStream(ctx context.Context, streamID models.ULID) error
}

// RecordingRepository manages recordings.
type RecordingRepository interface {
	Create(ctx context.Context, recording *models.Recording) error
	GetByID(ctx context.Context, id models.ULID) (*models.Recording, error)
	GetByStream(ctx context.Context, streamID models.ULID) ([]*models.Recording, error)
	// GetLatestByStream returns the most recently started recording for the stream.
	GetLatestByStream(ctx context.Context, streamID models.ULID) (*models.Recording, error)
	// GetByPath returns the recording whose working file is at the path.
	GetByPath(ctx context.Context, path string) (*models.Recording, error)
	GetByStatus(ctx context.Context, status models.RecordingStatus) ([]*models.Recording, error)
	Update(ctx context.Context, recording *models.Recording) error
	UpdateStatus(ctx context.Context, id models.ULID, status models.RecordingStatus) error
	Delete(ctx context.Context, id models.ULID) error
	// DeleteCompletedBefore removes terminal recordings whose end time is
	// older than the cutoff. Returns rows removed.
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
}

// ActiveRecordingRepository manages the durable capture registry.
type ActiveRecordingRepository interface {
	Create(ctx context.Context, state *models.ActiveRecordingState) error
	GetByStreamID(ctx context.Context, streamID models.ULID) (*models.ActiveRecordingState, error)
	GetByProcessID(ctx context.Context, processID string) (*models.ActiveRecordingState, error)
	GetAll(ctx context.Context) ([]*models.ActiveRecordingState, error)
	// GetStale returns rows whose heartbeat is older than the cutoff.
	GetStale(ctx context.Context, cutoff time.Time) ([]*models.ActiveRecordingState, error)
	Update(ctx context.Context, state *models.ActiveRecordingState) error
	// Heartbeat bumps LastHeartbeat without touching other columns.
	Heartbeat(ctx context.Context, id models.ULID, at time.Time) error
	Delete(ctx context.Context, id models.ULID) error
	DeleteByStreamID(ctx context.Context, streamID models.ULID) error
	Count(ctx context.Context) (int64, error)
}

// ProcessingStateRepository manages durable post-processing step state.
type ProcessingStateRepository interface {
	Create(ctx context.Context, state *models.RecordingProcessingState) error
	GetByRecordingID(ctx context.Context, recordingID models.ULID) (*models.RecordingProcessingState, error)
	// GetIncomplete returns states with at least one step not completed.
	GetIncomplete(ctx context.Context) ([]*models.RecordingProcessingState, error)
	Update(ctx context.Context, state *models.RecordingProcessingState) error
	// SetStepStatus updates a single step column atomically.
	SetStepStatus(ctx context.Context, recordingID models.ULID, step string, status models.StepStatus) error
	Delete(ctx context.Context, recordingID models.ULID) error
}

// StreamMetadataRepository manages sidecar bookkeeping.
type StreamMetadataRepository interface {
	// Upsert creates or updates the row keyed by StreamID.
	Upsert(ctx context.Context, meta *models.StreamMetadata) error
	GetByStreamID(ctx context.Context, streamID models.ULID) (*models.StreamMetadata, error)
	Delete(ctx context.Context, streamID models.ULID) error
}

// SessionRepository manages authentication sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, id models.ULID) error
	// DeleteOlderThan removes sessions created before the cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ShareTokenRepository manages share links for recordings.
type ShareTokenRepository interface {
	Create(ctx context.Context, token *models.ShareToken) error
	GetByToken(ctx context.Context, token string) (*models.ShareToken, error)
	Delete(ctx context.Context, id models.ULID) error
	// DeleteExpired removes tokens whose expiry is before the cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SettingsRepository manages global, proxy, and per-streamer settings.
// Credential accessors transparently encrypt and decrypt using the global key.
type SettingsRepository interface {
	// GetGlobal returns the singleton settings row, creating it (with a fresh
	// encryption key) on first use.
	GetGlobal(ctx context.Context) (*models.GlobalSettings, error)
	UpdateGlobal(ctx context.Context, settings *models.GlobalSettings) error

	// SetTokens encrypts and stores the platform OAuth tokens.
	SetTokens(ctx context.Context, accessToken, refreshToken string) error
	// GetTokens decrypts and returns the platform OAuth tokens.
	GetTokens(ctx context.Context) (accessToken, refreshToken string, err error)

	// SetProxy encrypts and stores the capture proxy URL.
	SetProxy(ctx context.Context, enabled bool, proxyURL string) error
	// GetProxy returns the proxy state and decrypted URL.
	GetProxy(ctx context.Context) (enabled bool, proxyURL string, err error)

	GetStreamerSettings(ctx context.Context, streamerID models.ULID) (*models.StreamerRecordingSettings, error)
	UpsertStreamerSettings(ctx context.Context, settings *models.StreamerRecordingSettings) error
}
