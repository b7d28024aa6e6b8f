package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
)

// streamRepo implements StreamRepository using GORM.
type streamRepo struct {
	db *gorm.DB
}

// NewStreamRepository creates a new StreamRepository.
func NewStreamRepository(db *gorm.DB) *streamRepo {
	return &streamRepo{db: db}
}

// Create creates a new stream.
func (r *streamRepo) Create(ctx context.Context, stream *models.Stream) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Create(stream).Error; err != nil {
			return fmt.Errorf("creating stream: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a stream by ID.
func (r *streamRepo) GetByID(ctx context.Context, id models.ULID) (*models.Stream, error) {
	var stream models.Stream
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&stream).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting stream by ID: %w", err)
	}
	return &stream, nil
}

// GetByPlatformStreamID retrieves a stream by external platform stream id.
func (r *streamRepo) GetByPlatformStreamID(ctx context.Context, platformStreamID string) (*models.Stream, error) {
	var stream models.Stream
	if err := r.db.WithContext(ctx).Where("platform_stream_id = ?", platformStreamID).First(&stream).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting stream by platform stream ID: %w", err)
	}
	return &stream, nil
}

// GetLiveByStreamer returns the streamer's current unsealed stream. When
// event delivery glitches leave more than one open, the most recent wins.
func (r *streamRepo) GetLiveByStreamer(ctx context.Context, streamerID models.ULID) (*models.Stream, error) {
	var stream models.Stream
	if err := r.db.WithContext(ctx).
		Where("streamer_id = ? AND ended_at IS NULL", streamerID).
		Order("started_at DESC").
		First(&stream).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting live stream for streamer: %w", err)
	}
	return &stream, nil
}

// GetByStreamer retrieves a streamer's streams, newest first, with pagination.
func (r *streamRepo) GetByStreamer(ctx context.Context, streamerID models.ULID, offset, limit int) ([]*models.Stream, int64, error) {
	var streams []*models.Stream
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Stream{}).Where("streamer_id = ?", streamerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting streams: %w", err)
	}
	if err := query.Order("started_at DESC").Offset(offset).Limit(limit).Find(&streams).Error; err != nil {
		return nil, 0, fmt.Errorf("getting streams by streamer: %w", err)
	}
	return streams, total, nil
}

// GetRecorded retrieves streams with a finalized recording, newest first,
// with pagination.
func (r *streamRepo) GetRecorded(ctx context.Context, offset, limit int) ([]*models.Stream, int64, error) {
	var streams []*models.Stream
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Stream{}).Where("recording_path <> ''")
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting recorded streams: %w", err)
	}
	if err := query.Order("started_at DESC").Offset(offset).Limit(limit).Find(&streams).Error; err != nil {
		return nil, 0, fmt.Errorf("getting recorded streams: %w", err)
	}
	return streams, total, nil
}

// Update updates an existing stream.
func (r *streamRepo) Update(ctx context.Context, stream *models.Stream) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Save(stream).Error; err != nil {
			return fmt.Errorf("updating stream: %w", err)
		}
		return nil
	})
}

// Seal closes the stream by setting its end time. Already-sealed streams are
// left untouched.
func (r *streamRepo) Seal(ctx context.Context, id models.ULID, endedAt time.Time) error {
	return withRetry(ctx, func() error {
		result := r.db.WithContext(ctx).Model(&models.Stream{}).
			Where("id = ? AND ended_at IS NULL", id).
			UpdateColumn("ended_at", endedAt)
		if result.Error != nil {
			return fmt.Errorf("sealing stream: %w", result.Error)
		}
		return nil
	})
}

// Delete deletes a stream by ID. Recordings and chapters cascade.
func (r *streamRepo) Delete(ctx context.Context, id models.ULID) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Stream{}).Error; err != nil {
			return fmt.Errorf("deleting stream: %w", err)
		}
		return nil
	})
}

// MaxEpisodeNumber returns the highest episode number for the streamer among
// streams started in [from, to). The time-range form keeps the query portable
// across SQLite, Postgres and MySQL.
func (r *streamRepo) MaxEpisodeNumber(ctx context.Context, streamerID models.ULID, from, to time.Time) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).Model(&models.Stream{}).
		Where("streamer_id = ? AND started_at >= ? AND started_at < ?", streamerID, from, to).
		Select("MAX(episode_number)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("getting max episode number: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// Ensure streamRepo implements StreamRepository at compile time.
var _ StreamRepository = (*streamRepo)(nil)
