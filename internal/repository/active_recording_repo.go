package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
)

// activeRecordingRepo implements ActiveRecordingRepository using GORM.
type activeRecordingRepo struct {
	db *gorm.DB
}

// NewActiveRecordingRepository creates a new ActiveRecordingRepository.
func NewActiveRecordingRepository(db *gorm.DB) *activeRecordingRepo {
	return &activeRecordingRepo{db: db}
}

// Create registers a capture. The unique index on stream_id rejects a second
// concurrent capture of the same stream.
func (r *activeRecordingRepo) Create(ctx context.Context, state *models.ActiveRecordingState) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Create(state).Error; err != nil {
			return fmt.Errorf("creating active recording state: %w", err)
		}
		return nil
	})
}

// GetByStreamID retrieves the capture registered for a stream.
func (r *activeRecordingRepo) GetByStreamID(ctx context.Context, streamID models.ULID) (*models.ActiveRecordingState, error) {
	var state models.ActiveRecordingState
	if err := r.db.WithContext(ctx).Where("stream_id = ?", streamID).First(&state).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting active recording by stream ID: %w", err)
	}
	return &state, nil
}

// GetByProcessID retrieves a capture by supervisor process identifier.
func (r *activeRecordingRepo) GetByProcessID(ctx context.Context, processID string) (*models.ActiveRecordingState, error) {
	var state models.ActiveRecordingState
	if err := r.db.WithContext(ctx).Where("process_id = ?", processID).First(&state).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting active recording by process ID: %w", err)
	}
	return &state, nil
}

// GetAll retrieves every registered capture, oldest first.
func (r *activeRecordingRepo) GetAll(ctx context.Context) ([]*models.ActiveRecordingState, error) {
	var states []*models.ActiveRecordingState
	if err := r.db.WithContext(ctx).Order("started_at ASC").Find(&states).Error; err != nil {
		return nil, fmt.Errorf("getting all active recordings: %w", err)
	}
	return states, nil
}

// GetStale retrieves captures whose heartbeat is older than the cutoff.
func (r *activeRecordingRepo) GetStale(ctx context.Context, cutoff time.Time) ([]*models.ActiveRecordingState, error) {
	var states []*models.ActiveRecordingState
	if err := r.db.WithContext(ctx).
		Where("last_heartbeat < ?", cutoff).
		Order("last_heartbeat ASC").
		Find(&states).Error; err != nil {
		return nil, fmt.Errorf("getting stale active recordings: %w", err)
	}
	return states, nil
}

// Update updates an existing capture row.
func (r *activeRecordingRepo) Update(ctx context.Context, state *models.ActiveRecordingState) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Save(state).Error; err != nil {
			return fmt.Errorf("updating active recording state: %w", err)
		}
		return nil
	})
}

// Heartbeat bumps LastHeartbeat only.
func (r *activeRecordingRepo) Heartbeat(ctx context.Context, id models.ULID, at time.Time) error {
	return withRetry(ctx, func() error {
		result := r.db.WithContext(ctx).Model(&models.ActiveRecordingState{}).Where("id = ?", id).
			UpdateColumn("last_heartbeat", at)
		if result.Error != nil {
			return fmt.Errorf("updating heartbeat: %w", result.Error)
		}
		return nil
	})
}

// Delete removes a capture row by ID.
func (r *activeRecordingRepo) Delete(ctx context.Context, id models.ULID) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ActiveRecordingState{}).Error; err != nil {
			return fmt.Errorf("deleting active recording state: %w", err)
		}
		return nil
	})
}

// DeleteByStreamID removes the capture row for a stream.
func (r *activeRecordingRepo) DeleteByStreamID(ctx context.Context, streamID models.ULID) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("stream_id = ?", streamID).Delete(&models.ActiveRecordingState{}).Error; err != nil {
			return fmt.Errorf("deleting active recording by stream ID: %w", err)
		}
		return nil
	})
}

// Count returns the number of registered captures.
func (r *activeRecordingRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ActiveRecordingState{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting active recordings: %w", err)
	}
	return count, nil
}

// Ensure activeRecordingRepo implements ActiveRecordingRepository at compile time.
var _ ActiveRecordingRepository = (*activeRecordingRepo)(nil)
