package repository

import (
	"context"
	"fmt"

	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
)

// chapterRepo implements ChapterRepository using GORM.
type chapterRepo struct {
	db *gorm.DB
}

// NewChapterRepository creates a new ChapterRepository.
func NewChapterRepository(db *gorm.DB) *chapterRepo {
	return &chapterRepo{db: db}
}

// Create creates a new chapter marker.
func (r *chapterRepo) Create(ctx context.Context, chapter *models.Chapter) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Create(chapter).Error; err != nil {
			return fmt.Errorf("creating chapter: %w", err)
		}
		return nil
	})
}

// GetByStream retrieves a stream's chapters ordered by offset.
func (r *chapterRepo) GetByStream(ctx context.Context, streamID models.ULID) ([]*models.Chapter, error) {
	var chapters []*models.Chapter
	if err := r.db.WithContext(ctx).
		Where("stream_id = ?", streamID).
		Order("start_offset_seconds ASC").
		Find(&chapters).Error; err != nil {
		return nil, fmt.Errorf("getting chapters by stream: %w", err)
	}
	return chapters, nil
}

// DeleteByStream deletes all chapters for a stream.
func (r *chapterRepo) DeleteByStream(ctx context.Context, streamID models.ULID) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("stream_id = ?", streamID).Delete(&models.Chapter{}).Error; err != nil {
			return fmt.Errorf("deleting chapters by stream: %w", err)
		}
		return nil
	})
}

// Ensure chapterRepo implements ChapterRepository at compile time.
var _ ChapterRepository = (*chapterRepo)(nil)
