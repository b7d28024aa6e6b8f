package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
)

// sessionRepo implements SessionRepository using GORM.
type sessionRepo struct {
	db *gorm.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *gorm.DB) *sessionRepo {
	return &sessionRepo{db: db}
}

// Create creates a new session.
func (r *sessionRepo) Create(ctx context.Context, session *models.Session) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		return nil
	})
}

// GetByToken retrieves a session by its token.
func (r *sessionRepo) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&session).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting session by token: %w", err)
	}
	return &session, nil
}

// Delete deletes a session by ID.
func (r *sessionRepo) Delete(ctx context.Context, id models.ULID) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
		return nil
	})
}

// DeleteOlderThan removes sessions created before the cutoff.
func (r *sessionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure sessionRepo implements SessionRepository at compile time.
var _ SessionRepository = (*sessionRepo)(nil)

// shareTokenRepo implements ShareTokenRepository using GORM.
type shareTokenRepo struct {
	db *gorm.DB
}

// NewShareTokenRepository creates a new ShareTokenRepository.
func NewShareTokenRepository(db *gorm.DB) *shareTokenRepo {
	return &shareTokenRepo{db: db}
}

// Create creates a new share token.
func (r *shareTokenRepo) Create(ctx context.Context, token *models.ShareToken) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
			return fmt.Errorf("creating share token: %w", err)
		}
		return nil
	})
}

// GetByToken retrieves a share token by its value.
func (r *shareTokenRepo) GetByToken(ctx context.Context, token string) (*models.ShareToken, error) {
	var t models.ShareToken
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&t).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting share token: %w", err)
	}
	return &t, nil
}

// Delete deletes a share token by ID.
func (r *shareTokenRepo) Delete(ctx context.Context, id models.ULID) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ShareToken{}).Error; err != nil {
			return fmt.Errorf("deleting share token: %w", err)
		}
		return nil
	})
}

// DeleteExpired removes tokens whose expiry precedes the cutoff.
func (r *shareTokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&models.ShareToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting expired share tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure shareTokenRepo implements ShareTokenRepository at compile time.
var _ ShareTokenRepository = (*shareTokenRepo)(nil)
