package repository

import (
	"context"
	"fmt"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/secrets"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// settingsRepo implements SettingsRepository using GORM. Credential columns
// are encrypted with the AES-256 key stored in the global settings row.
type settingsRepo struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *gorm.DB) *settingsRepo {
	return &settingsRepo{db: db}
}

// GetGlobal returns the singleton global settings row, creating it with a
// fresh encryption key on first use.
func (r *settingsRepo) GetGlobal(ctx context.Context) (*models.GlobalSettings, error) {
	var settings models.GlobalSettings
	err := r.db.WithContext(ctx).Order("created_at ASC").First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("getting global settings: %w", err)
	}

	key, err := secrets.NewKey()
	if err != nil {
		return nil, fmt.Errorf("generating encryption key: %w", err)
	}
	settings = models.GlobalSettings{EncryptionKey: key}
	if err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Create(&settings).Error
	}); err != nil {
		return nil, fmt.Errorf("creating global settings: %w", err)
	}
	return &settings, nil
}

// UpdateGlobal updates the global settings row.
func (r *settingsRepo) UpdateGlobal(ctx context.Context, settings *models.GlobalSettings) error {
	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Save(settings).Error; err != nil {
			return fmt.Errorf("updating global settings: %w", err)
		}
		return nil
	})
}

// SetTokens encrypts and stores the platform OAuth tokens.
func (r *settingsRepo) SetTokens(ctx context.Context, accessToken, refreshToken string) error {
	settings, err := r.GetGlobal(ctx)
	if err != nil {
		return err
	}

	if settings.AccessTokenEnc, err = secrets.Encrypt(settings.EncryptionKey, accessToken); err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}
	if settings.RefreshTokenEnc, err = secrets.Encrypt(settings.EncryptionKey, refreshToken); err != nil {
		return fmt.Errorf("encrypting refresh token: %w", err)
	}
	return r.UpdateGlobal(ctx, settings)
}

// GetTokens decrypts and returns the platform OAuth tokens.
func (r *settingsRepo) GetTokens(ctx context.Context) (string, string, error) {
	settings, err := r.GetGlobal(ctx)
	if err != nil {
		return "", "", err
	}

	access, err := secrets.Decrypt(settings.EncryptionKey, settings.AccessTokenEnc)
	if err != nil {
		return "", "", fmt.Errorf("decrypting access token: %w", err)
	}
	refresh, err := secrets.Decrypt(settings.EncryptionKey, settings.RefreshTokenEnc)
	if err != nil {
		return "", "", fmt.Errorf("decrypting refresh token: %w", err)
	}
	return access, refresh, nil
}

// SetProxy encrypts and stores the capture proxy configuration.
func (r *settingsRepo) SetProxy(ctx context.Context, enabled bool, proxyURL string) error {
	global, err := r.GetGlobal(ctx)
	if err != nil {
		return err
	}

	enc, err := secrets.Encrypt(global.EncryptionKey, proxyURL)
	if err != nil {
		return fmt.Errorf("encrypting proxy URL: %w", err)
	}

	var proxy models.ProxySettings
	err = r.db.WithContext(ctx).Order("created_at ASC").First(&proxy).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return fmt.Errorf("getting proxy settings: %w", err)
	}
	proxy.Enabled = enabled
	proxy.ProxyURLEnc = enc

	return withRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Save(&proxy).Error; err != nil {
			return fmt.Errorf("saving proxy settings: %w", err)
		}
		return nil
	})
}

// GetProxy returns the proxy enabled flag and decrypted URL. A missing row
// means the proxy is disabled.
func (r *settingsRepo) GetProxy(ctx context.Context) (bool, string, error) {
	var proxy models.ProxySettings
	if err := r.db.WithContext(ctx).Order("created_at ASC").First(&proxy).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, "", nil
		}
		return false, "", fmt.Errorf("getting proxy settings: %w", err)
	}
	if proxy.ProxyURLEnc == "" {
		return proxy.Enabled, "", nil
	}

	global, err := r.GetGlobal(ctx)
	if err != nil {
		return false, "", err
	}
	url, err := secrets.Decrypt(global.EncryptionKey, proxy.ProxyURLEnc)
	if err != nil {
		return false, "", fmt.Errorf("decrypting proxy URL: %w", err)
	}
	return proxy.Enabled, url, nil
}

// GetStreamerSettings retrieves per-streamer overrides.
func (r *settingsRepo) GetStreamerSettings(ctx context.Context, streamerID models.ULID) (*models.StreamerRecordingSettings, error) {
	var settings models.StreamerRecordingSettings
	if err := r.db.WithContext(ctx).Where("streamer_id = ?", streamerID).First(&settings).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting streamer settings: %w", err)
	}
	return &settings, nil
}

// UpsertStreamerSettings creates or updates per-streamer overrides.
func (r *settingsRepo) UpsertStreamerSettings(ctx context.Context, settings *models.StreamerRecordingSettings) error {
	return withRetry(ctx, func() error {
		err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "streamer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"enabled", "quality", "codec_preference", "updated_at",
			}),
		}).Create(settings).Error
		if err != nil {
			return fmt.Errorf("upserting streamer settings: %w", err)
		}
		return nil
	})
}

// Ensure settingsRepo implements SettingsRepository at compile time.
var _ SettingsRepository = (*settingsRepo)(nil)
