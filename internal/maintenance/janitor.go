// Package maintenance runs the scheduled cleanup jobs: age-based session
// expiry and share-token purging. It also owns the share-token lifecycle,
// including the lazy purge on validation.
package maintenance

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/observability"
	"github.com/streamvault/streamvault/internal/repository"
)

// shareTokenBytes is the entropy of a generated share token.
const shareTokenBytes = 32

// Janitor schedules and executes the cleanup sweeps.
type Janitor struct {
	cfg      config.MaintenanceConfig
	sessions repository.SessionRepository
	tokens   repository.ShareTokenRepository
	log      *slog.Logger

	cron *cron.Cron
}

// NewJanitor creates a Janitor, applying defaults for unset config.
func NewJanitor(cfg config.MaintenanceConfig, sessions repository.SessionRepository, tokens repository.ShareTokenRepository, log *slog.Logger) *Janitor {
	if cfg.SessionMaxAge <= 0 {
		cfg.SessionMaxAge = 24 * time.Hour
	}
	if cfg.SessionSweepCron == "" {
		cfg.SessionSweepCron = "0 * * * *"
	}
	if cfg.TokenSweepCron == "" {
		cfg.TokenSweepCron = cfg.SessionSweepCron
	}
	return &Janitor{
		cfg:      cfg,
		sessions: sessions,
		tokens:   tokens,
		log:      observability.WithComponent(log, "maintenance"),
		cron:     cron.New(),
	}
}

// Start registers the sweeps and starts the cron scheduler.
func (j *Janitor) Start(ctx context.Context) error {
	if _, err := j.cron.AddFunc(j.cfg.SessionSweepCron, func() { j.SweepSessions(ctx) }); err != nil {
		return fmt.Errorf("scheduling session sweep: %w", err)
	}
	if _, err := j.cron.AddFunc(j.cfg.TokenSweepCron, func() { j.SweepTokens(ctx) }); err != nil {
		return fmt.Errorf("scheduling token sweep: %w", err)
	}
	j.cron.Start()
	j.log.Info("cleanup sweeps scheduled",
		"session_cron", j.cfg.SessionSweepCron,
		"token_cron", j.cfg.TokenSweepCron,
		"session_max_age", j.cfg.SessionMaxAge)
	return nil
}

// Stop halts the scheduler and waits for running sweeps.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// SweepSessions deletes sessions older than the configured window.
func (j *Janitor) SweepSessions(ctx context.Context) {
	cutoff := time.Now().Add(-j.cfg.SessionMaxAge)
	n, err := j.sessions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.log.Error("session sweep failed", "error", err)
		return
	}
	if n > 0 {
		j.log.Info("expired sessions removed", "count", n)
	}
}

// SweepTokens deletes share tokens past their expiry.
func (j *Janitor) SweepTokens(ctx context.Context) {
	n, err := j.tokens.DeleteExpired(ctx, time.Now())
	if err != nil {
		j.log.Error("token sweep failed", "error", err)
		return
	}
	if n > 0 {
		j.log.Info("expired share tokens removed", "count", n)
	}
}

// CreateShareToken mints a share token for a stream's recording.
func (j *Janitor) CreateShareToken(ctx context.Context, streamID models.ULID, ttl time.Duration) (*models.ShareToken, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("share token ttl must be positive")
	}
	buf := make([]byte, shareTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating share token: %w", err)
	}
	token := &models.ShareToken{
		Token:     hex.EncodeToString(buf),
		StreamID:  streamID,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if err := j.tokens.Create(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// ValidateShareToken resolves a token to its stream. A token validates iff
// it exists and has not expired; an expired row is purged on the spot.
func (j *Janitor) ValidateShareToken(ctx context.Context, token string) (models.ULID, error) {
	row, err := j.tokens.GetByToken(ctx, token)
	if err != nil {
		return models.ULID{}, err
	}
	if row == nil {
		return models.ULID{}, models.ErrInvalidToken
	}
	if !row.Valid(time.Now()) {
		if err := j.tokens.Delete(ctx, row.ID); err != nil {
			j.log.Warn("purging expired share token", "error", err)
		}
		return models.ULID{}, models.ErrInvalidToken
	}
	return row.StreamID, nil
}
