package maintenance

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/observability"
	"github.com/streamvault/streamvault/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testLogger() *slog.Logger {
	return observability.NewLoggerWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, os.Stderr)
}

type fixture struct {
	janitor  *Janitor
	db       *gorm.DB
	sessions repository.SessionRepository
	tokens   repository.ShareTokenRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Session{}, &models.ShareToken{}))

	f := &fixture{
		db:       db,
		sessions: repository.NewSessionRepository(db),
		tokens:   repository.NewShareTokenRepository(db),
	}
	f.janitor = NewJanitor(config.MaintenanceConfig{SessionMaxAge: 24 * time.Hour}, f.sessions, f.tokens, testLogger())
	return f
}

// backdate rewrites a session's creation time; GORM stamps it on insert.
func (f *fixture) backdate(t *testing.T, id models.ULID, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Session{}).Where("id = ?", id).
		UpdateColumn("created_at", at).Error)
}

func TestSweepSessions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	old := &models.Session{Token: "old-token", UserID: models.NewULID()}
	fresh := &models.Session{Token: "fresh-token", UserID: models.NewULID()}
	require.NoError(t, f.sessions.Create(ctx, old))
	require.NoError(t, f.sessions.Create(ctx, fresh))
	f.backdate(t, old.ID, time.Now().Add(-25*time.Hour))

	f.janitor.SweepSessions(ctx)

	gone, err := f.sessions.GetByToken(ctx, "old-token")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := f.sessions.GetByToken(ctx, "fresh-token")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestSweepTokens(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.tokens.Create(ctx, &models.ShareToken{
		Token: "expired", StreamID: models.NewULID(), ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, f.tokens.Create(ctx, &models.ShareToken{
		Token: "live", StreamID: models.NewULID(), ExpiresAt: time.Now().Add(time.Hour),
	}))

	f.janitor.SweepTokens(ctx)

	gone, err := f.tokens.GetByToken(ctx, "expired")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := f.tokens.GetByToken(ctx, "live")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestCreateAndValidateShareToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	streamID := models.NewULID()

	token, err := f.janitor.CreateShareToken(ctx, streamID, time.Hour)
	require.NoError(t, err)
	assert.Len(t, token.Token, 64)

	got, err := f.janitor.ValidateShareToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, streamID, got)
}

func TestValidateShareToken_Missing(t *testing.T) {
	f := setup(t)

	_, err := f.janitor.ValidateShareToken(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestValidateShareToken_ExpiredIsPurged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.tokens.Create(ctx, &models.ShareToken{
		Token: "stale", StreamID: models.NewULID(), ExpiresAt: time.Now().Add(-time.Minute),
	}))

	_, err := f.janitor.ValidateShareToken(ctx, "stale")
	assert.ErrorIs(t, err, models.ErrInvalidToken)

	row, err := f.tokens.GetByToken(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, row, "expired token purged on validation")
}

func TestCreateShareToken_RejectsNonPositiveTTL(t *testing.T) {
	f := setup(t)
	_, err := f.janitor.CreateShareToken(context.Background(), models.NewULID(), 0)
	assert.Error(t, err)
}

func TestStart_BadCronRejected(t *testing.T) {
	f := setup(t)
	j := NewJanitor(config.MaintenanceConfig{SessionSweepCron: "not a cron"}, f.sessions, f.tokens, testLogger())
	assert.Error(t, j.Start(context.Background()))
}
