package repository

import (
	"context"
	"fmt"

	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
)

// stepColumns maps step names to their status columns.
var stepColumns = map[string]string{
	models.StepMetadata:   "metadata_status",
	models.StepChapters:   "chapters_status",
	models.StepRemux:      "remux_status",
	models.StepValidation: "validation_status",
	models.StepThumbnail:  "thumbnail_status",
	models.StepCleanup:    "cleanup_status",
}

// processingStateRepo implements ProcessingStateRepository using GORM.
type processingStateRepo struct {
	db *gorm.DB
}

// NewProcessingStateRepository creates a new ProcessingStateRepository.
func NewProcessingStateRepository(db *gorm.DB) *processingStateRepo {
	return &processingStateRepo{db: db}
}

// Create creates processing state for a recording. The unique index on
// recording_id makes duplicate enqueues fail loudly instead of forking state.
func (r *processingStateRepo) Create(ctx context.Context, state *models.RecordingProcessingState) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Create(state).Error; err != nil {
			return fmt.Errorf("creating processing state: %w", err)
		}
		return nil
	})
}

// GetByRecordingID retrieves processing state for a recording.
func (r *processingStateRepo) GetByRecordingID(ctx context.Context, recordingID models.ULID) (*models.RecordingProcessingState, error) {
	var state models.RecordingProcessingState
	if err := r.db.WithContext(ctx).Where("recording_id = ?", recordingID).First(&state).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting processing state by recording ID: %w", err)
	}
	return &state, nil
}

// GetIncomplete retrieves states with at least one step not yet completed.
// Startup recovery uses this to resume pipelines interrupted by a restart.
func (r *processingStateRepo) GetIncomplete(ctx context.Context) ([]*models.RecordingProcessingState, error) {
	var states []*models.RecordingProcessingState
	done := models.StepCompleted
	if err := r.db.WithContext(ctx).
		Where("metadata_status != ? OR chapters_status != ? OR remux_status != ? OR validation_status != ? OR thumbnail_status != ? OR cleanup_status != ?",
			done, done, done, done, done, done).
		Order("created_at ASC").
		Find(&states).Error; err != nil {
		return nil, fmt.Errorf("getting incomplete processing states: %w", err)
	}
	return states, nil
}

// Update updates an existing processing state row.
func (r *processingStateRepo) Update(ctx context.Context, state *models.RecordingProcessingState) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Save(state).Error; err != nil {
			return fmt.Errorf("updating processing state: %w", err)
		}
		return nil
	})
}

// SetStepStatus updates a single step column without rewriting the row.
func (r *processingStateRepo) SetStepStatus(ctx context.Context, recordingID models.ULID, step string, status models.StepStatus) error {
	column, ok := stepColumns[step]
	if !ok {
		return fmt.Errorf("unknown processing step: %s", step)
	}
	return withRetry(ctx, func() error {
		result := r.db.WithContext(ctx).Model(&models.RecordingProcessingState{}).
			Where("recording_id = ?", recordingID).
			UpdateColumn(column, status)
		if result.Error != nil {
			return fmt.Errorf("setting step status: %w", result.Error)
		}
		return nil
	})
}

// Delete removes processing state for a recording.
func (r *processingStateRepo) Delete(ctx context.Context, recordingID models.ULID) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("recording_id = ?", recordingID).Delete(&models.RecordingProcessingState{}).Error; err != nil {
			return fmt.Errorf("deleting processing state: %w", err)
		}
		return nil
	})
}

// Ensure processingStateRepo implements ProcessingStateRepository at compile time.
var _ ProcessingStateRepository = (*processingStateRepo)(nil)
