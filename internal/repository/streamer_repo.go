package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
)

// streamerRepo implements StreamerRepository using GORM.
type streamerRepo struct {
	db *gorm.DB
}

// NewStreamerRepository creates a new StreamerRepository.
func NewStreamerRepository(db *gorm.DB) *streamerRepo {
	return &streamerRepo{db: db}
}

// Create creates a new streamer. The username is canonicalized to lowercase.
func (r *streamerRepo) Create(ctx context.Context, streamer *models.Streamer) error {
	streamer.Username = strings.ToLower(streamer.Username)
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Create(streamer).Error; err != nil {
			return fmt.Errorf("creating streamer: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a streamer by ID.
func (r *streamerRepo) GetByID(ctx context.Context, id models.ULID) (*models.Streamer, error) {
	var streamer models.Streamer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&streamer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting streamer by ID: %w", err)
	}
	return &streamer, nil
}

// GetByPlatformID retrieves a streamer by platform identifier.
func (r *streamerRepo) GetByPlatformID(ctx context.Context, platformID string) (*models.Streamer, error) {
	var streamer models.Streamer
	if err := r.db.WithContext(ctx).Where("platform_id = ?", platformID).First(&streamer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting streamer by platform ID: %w", err)
	}
	return &streamer, nil
}

// GetByUsername retrieves a streamer by login name, case-insensitively.
func (r *streamerRepo) GetByUsername(ctx context.Context, username string) (*models.Streamer, error) {
	var streamer models.Streamer
	if err := r.db.WithContext(ctx).Where("username = ?", strings.ToLower(username)).First(&streamer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting streamer by username: %w", err)
	}
	return &streamer, nil
}

// GetAll retrieves all streamers ordered by username.
func (r *streamerRepo) GetAll(ctx context.Context) ([]*models.Streamer, error) {
	var streamers []*models.Streamer
	if err := r.db.WithContext(ctx).Order("username ASC").Find(&streamers).Error; err != nil {
		return nil, fmt.Errorf("getting all streamers: %w", err)
	}
	return streamers, nil
}

// GetLive retrieves streamers currently marked live.
func (r *streamerRepo) GetLive(ctx context.Context) ([]*models.Streamer, error) {
	var streamers []*models.Streamer
	if err := r.db.WithContext(ctx).Where("is_live = ?", true).Order("username ASC").Find(&streamers).Error; err != nil {
		return nil, fmt.Errorf("getting live streamers: %w", err)
	}
	return streamers, nil
}

// Update updates an existing streamer.
func (r *streamerRepo) Update(ctx context.Context, streamer *models.Streamer) error {
	streamer.Username = strings.ToLower(streamer.Username)
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Save(streamer).Error; err != nil {
			return fmt.Errorf("updating streamer: %w", err)
		}
		return nil
	})
}

// SetLive flips the live flag without touching other columns.
func (r *streamerRepo) SetLive(ctx context.Context, id models.ULID, live bool) error {
	return withRetry(ctx, func() error {
		result := r.db.WithContext(ctx).Model(&models.Streamer{}).Where("id = ?", id).
			UpdateColumn("is_live", live)
		if result.Error != nil {
			return fmt.Errorf("setting streamer live state: %w", result.Error)
		}
		return nil
	})
}

// Delete deletes a streamer by ID.
func (r *streamerRepo) Delete(ctx context.Context, id models.ULID) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Streamer{}).Error; err != nil {
			return fmt.Errorf("deleting streamer: %w", err)
		}
		return nil
	})
}

// Ensure streamerRepo implements StreamerRepository at compile time.
var _ StreamerRepository = (*streamerRepo)(nil)
