package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
)

// recordingRepo implements RecordingRepository using GORM.
type recordingRepo struct {
	db *gorm.DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *gorm.DB) *recordingRepo {
	return &recordingRepo{db: db}
}

// Create creates a new recording.
func (r *recordingRepo) Create(ctx context.Context, recording *models.Recording) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Create(recording).Error; err != nil {
			return fmt.Errorf("creating recording: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a recording by ID.
func (r *recordingRepo) GetByID(ctx context.Context, id models.ULID) (*models.Recording, error) {
	var recording models.Recording
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&recording).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting recording by ID: %w", err)
	}
	return &recording, nil
}

// GetByStream retrieves a stream's recordings, newest first.
func (r *recordingRepo) GetByStream(ctx context.Context, streamID models.ULID) ([]*models.Recording, error) {
	var recordings []*models.Recording
	if err := r.db.WithContext(ctx).
		Where("stream_id = ?", streamID).
		Order("start_time DESC").
		Find(&recordings).Error; err != nil {
		return nil, fmt.Errorf("getting recordings by stream: %w", err)
	}
	return recordings, nil
}

// GetLatestByStream returns the most recently started recording for a stream.
func (r *recordingRepo) GetLatestByStream(ctx context.Context, streamID models.ULID) (*models.Recording, error) {
	var recording models.Recording
	if err := r.db.WithContext(ctx).
		Where("stream_id = ?", streamID).
		Order("start_time DESC").
		First(&recording).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest recording by stream: %w", err)
	}
	return &recording, nil
}

// GetByPath retrieves the recording whose working file is at the given path.
func (r *recordingRepo) GetByPath(ctx context.Context, path string) (*models.Recording, error) {
	var recording models.Recording
	if err := r.db.WithContext(ctx).Where("path = ?", path).First(&recording).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting recording by path: %w", err)
	}
	return &recording, nil
}

// GetByStatus retrieves recordings by status, oldest first.
func (r *recordingRepo) GetByStatus(ctx context.Context, status models.RecordingStatus) ([]*models.Recording, error) {
	var recordings []*models.Recording
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("start_time ASC").
		Find(&recordings).Error; err != nil {
		return nil, fmt.Errorf("getting recordings by status: %w", err)
	}
	return recordings, nil
}

// Update updates an existing recording.
func (r *recordingRepo) Update(ctx context.Context, recording *models.Recording) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Save(recording).Error; err != nil {
			return fmt.Errorf("updating recording: %w", err)
		}
		return nil
	})
}

// UpdateStatus updates only the status column.
func (r *recordingRepo) UpdateStatus(ctx context.Context, id models.ULID, status models.RecordingStatus) error {
	return withRetry(ctx, func() error {
		result := r.db.WithContext(ctx).Model(&models.Recording{}).Where("id = ?", id).
			UpdateColumn("status", status)
		if result.Error != nil {
			return fmt.Errorf("updating recording status: %w", result.Error)
		}
		return nil
	})
}

// Delete deletes a recording by ID.
func (r *recordingRepo) Delete(ctx context.Context, id models.ULID) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Recording{}).Error; err != nil {
			return fmt.Errorf("deleting recording: %w", err)
		}
		return nil
	})
}

// DeleteCompletedBefore removes terminal recordings whose end time is older
// than the cutoff.
func (r *recordingRepo) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN (?, ?, ?) AND end_time < ?",
			models.RecordingStatusCompleted, models.RecordingStatusStopped, models.RecordingStatusFailed, before).
		Delete(&models.Recording{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting completed recordings: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure recordingRepo implements RecordingRepository at compile time.
var _ RecordingRepository = (*recordingRepo)(nil)
