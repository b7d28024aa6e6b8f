package repository

import (
	"context"
	"fmt"

	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// streamMetadataRepo implements StreamMetadataRepository using GORM.
type streamMetadataRepo struct {
	db *gorm.DB
}

// NewStreamMetadataRepository creates a new StreamMetadataRepository.
func NewStreamMetadataRepository(db *gorm.DB) *streamMetadataRepo {
	return &streamMetadataRepo{db: db}
}

// Upsert creates or updates the sidecar bookkeeping row keyed by stream_id.
func (r *streamMetadataRepo) Upsert(ctx context.Context, meta *models.StreamMetadata) error {
	return withRetry(ctx, func() error {
		err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stream_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"vtt_chapters_path", "ffmpeg_chapters_path", "nfo_path",
				"thumbnail_path", "segments_dir", "segments_removed", "updated_at",
			}),
		}).Create(meta).Error
		if err != nil {
			return fmt.Errorf("upserting stream metadata: %w", err)
		}
		return nil
	})
}

// GetByStreamID retrieves sidecar bookkeeping for a stream.
func (r *streamMetadataRepo) GetByStreamID(ctx context.Context, streamID models.ULID) (*models.StreamMetadata, error) {
	var meta models.StreamMetadata
	if err := r.db.WithContext(ctx).Where("stream_id = ?", streamID).First(&meta).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting stream metadata: %w", err)
	}
	return &meta, nil
}

// Delete removes the sidecar bookkeeping row for a stream.
func (r *streamMetadataRepo) Delete(ctx context.Context, streamID models.ULID) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("stream_id = ?", streamID).Delete(&models.StreamMetadata{}).Error; err != nil {
			return fmt.Errorf("deleting stream metadata: %w", err)
		}
		return nil
	})
}

// Ensure streamMetadataRepo implements StreamMetadataRepository at compile time.
var _ StreamMetadataRepository = (*streamMetadataRepo)(nil)
