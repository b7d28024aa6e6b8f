package repository

import (
	"context"
	"testing"
	"time"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStream(t *testing.T, ctx context.Context, db interface {
	Create(context.Context, *models.Stream) error
}, streamerID models.ULID) *models.Stream {
	t.Helper()
	stream := &models.Stream{StreamerID: streamerID, StartedAt: models.Now()}
	require.NoError(t, db.Create(ctx, stream))
	return stream
}

func TestRecordingRepo_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	streamers := NewStreamerRepository(db)
	streams := NewStreamRepository(db)
	repo := NewRecordingRepository(db)
	ctx := context.Background()

	streamer := createTestStreamer(t, ctx, streamers, "jane")
	stream := createTestStream(t, ctx, streams, streamer.ID)

	rec := &models.Recording{
		StreamID:  stream.ID,
		Path:      "/recordings/jane/ep.ts",
		Status:    models.RecordingStatusRecording,
		StartTime: models.Now(),
	}
	require.NoError(t, repo.Create(ctx, rec))

	require.NoError(t, repo.UpdateStatus(ctx, rec.ID, models.RecordingStatusProcessing))

	found, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.RecordingStatusProcessing, found.Status)

	processing, err := repo.GetByStatus(ctx, models.RecordingStatusProcessing)
	require.NoError(t, err)
	assert.Len(t, processing, 1)
}

func TestRecordingRepo_GetLatestByStream(t *testing.T) {
	db := setupTestDB(t)
	streamers := NewStreamerRepository(db)
	streams := NewStreamRepository(db)
	repo := NewRecordingRepository(db)
	ctx := context.Background()

	streamer := createTestStreamer(t, ctx, streamers, "kate")
	stream := createTestStream(t, ctx, streams, streamer.ID)

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	older := &models.Recording{StreamID: stream.ID, Path: "a.ts", Status: models.RecordingStatusStopped, StartTime: base}
	newer := &models.Recording{StreamID: stream.ID, Path: "b.ts", Status: models.RecordingStatusRecording, StartTime: base.Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	latest, err := repo.GetLatestByStream(ctx, stream.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "b.ts", latest.Path)

	missing, err := repo.GetLatestByStream(ctx, models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordingRepo_MarkFailed(t *testing.T) {
	db := setupTestDB(t)
	streamers := NewStreamerRepository(db)
	streams := NewStreamRepository(db)
	repo := NewRecordingRepository(db)
	ctx := context.Background()

	streamer := createTestStreamer(t, ctx, streamers, "lena")
	stream := createTestStream(t, ctx, streams, streamer.ID)

	rec := &models.Recording{StreamID: stream.ID, Path: "c.ts", Status: models.RecordingStatusRecording, StartTime: models.Now()}
	require.NoError(t, repo.Create(ctx, rec))

	rec.MarkFailed("remux_failed", "ffmpeg exited with code 1")
	require.NoError(t, repo.Update(ctx, rec))

	found, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusFailed, found.Status)
	assert.Equal(t, "remux_failed", found.FailureReason)
	assert.NotNil(t, found.EndTime)
	assert.NotNil(t, found.ErroredAt)
}

func TestRecordingRepo_DeleteCompletedBefore(t *testing.T) {
	db := setupTestDB(t)
	streamers := NewStreamerRepository(db)
	streams := NewStreamRepository(db)
	repo := NewRecordingRepository(db)
	ctx := context.Background()

	streamer := createTestStreamer(t, ctx, streamers, "mira")
	stream := createTestStream(t, ctx, streams, streamer.ID)

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := models.Now()

	mk := func(status models.RecordingStatus, end *time.Time) {
		require.NoError(t, repo.Create(ctx, &models.Recording{
			StreamID:  stream.ID,
			Path:      "x.ts",
			Status:    status,
			StartTime: old,
			EndTime:   end,
		}))
	}
	mk(models.RecordingStatusCompleted, &old)
	mk(models.RecordingStatusFailed, &old)
	mk(models.RecordingStatusCompleted, &recent)
	mk(models.RecordingStatusRecording, nil) // active, never purged

	removed, err := repo.DeleteCompletedBefore(ctx, old.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	remaining, err := repo.GetByStream(ctx, stream.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}
