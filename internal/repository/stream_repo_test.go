package repository

import (
	"context"
	"testing"
	"time"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStreamer(t *testing.T, ctx context.Context, repo StreamerRepository, username string) *models.Streamer {
	t.Helper()
	streamer := &models.Streamer{
		PlatformID:  "platform-" + username,
		Username:    username,
		DisplayName: username,
	}
	require.NoError(t, repo.Create(ctx, streamer))
	return streamer
}

func TestStreamRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	streamers := NewStreamerRepository(db)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	streamer := createTestStreamer(t, ctx, streamers, "alice")

	stream := &models.Stream{
		StreamerID:       streamer.ID,
		PlatformStreamID: "ext-123",
		Title:            "Morning show",
		CategoryName:     "Just Chatting",
		StartedAt:        time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
		EpisodeNumber:    4,
	}
	require.NoError(t, repo.Create(ctx, stream))
	assert.False(t, stream.ID.IsZero())

	found, err := repo.GetByID(ctx, stream.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Morning show", found.Title)
	assert.Equal(t, 4, found.EpisodeNumber)
	assert.True(t, found.IsLive())

	byExt, err := repo.GetByPlatformStreamID(ctx, "ext-123")
	require.NoError(t, err)
	require.NotNil(t, byExt)
	assert.Equal(t, stream.ID, byExt.ID)

	missing, err := repo.GetByID(ctx, models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStreamRepo_GetLiveByStreamer(t *testing.T) {
	db := setupTestDB(t)
	streamers := NewStreamerRepository(db)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	streamer := createTestStreamer(t, ctx, streamers, "bob")

	ended := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := &models.Stream{
		StreamerID: streamer.ID,
		StartedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		EndedAt:    &ended,
	}
	require.NoError(t, repo.Create(ctx, old))

	live := &models.Stream{
		StreamerID: streamer.ID,
		StartedAt:  time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(ctx, live))

	found, err := repo.GetLiveByStreamer(ctx, streamer.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, live.ID, found.ID)

	// Sealing it makes the lookup come up empty.
	require.NoError(t, repo.Seal(ctx, live.ID, time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)))
	found, err = repo.GetLiveByStreamer(ctx, streamer.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestStreamRepo_SealIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	streamers := NewStreamerRepository(db)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	streamer := createTestStreamer(t, ctx, streamers, "carol")
	stream := &models.Stream{
		StreamerID: streamer.ID,
		StartedAt:  time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(ctx, stream))

	first := time.Date(2026, 4, 1, 11, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Seal(ctx, stream.ID, first))

	// A second seal must not move the end time.
	require.NoError(t, repo.Seal(ctx, stream.ID, first.Add(time.Hour)))

	found, err := repo.GetByID(ctx, stream.ID)
	require.NoError(t, err)
	require.NotNil(t, found.EndedAt)
	assert.True(t, found.EndedAt.Equal(first))
}

func TestStreamRepo_MaxEpisodeNumber(t *testing.T) {
	db := setupTestDB(t)
	streamers := NewStreamerRepository(db)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	streamer := createTestStreamer(t, ctx, streamers, "dana")
	other := createTestStreamer(t, ctx, streamers, "erin")

	mk := func(owner models.ULID, started time.Time, episode int) {
		require.NoError(t, repo.Create(ctx, &models.Stream{
			StreamerID:    owner,
			StartedAt:     started,
			EpisodeNumber: episode,
		}))
	}

	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	may := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mk(streamer.ID, march.Add(24*time.Hour), 1)
	mk(streamer.ID, march.Add(48*time.Hour), 2)
	mk(streamer.ID, april.Add(24*time.Hour), 1) // next month resets
	mk(other.ID, march.Add(24*time.Hour), 9)    // other streamer does not count

	max, err := repo.MaxEpisodeNumber(ctx, streamer.ID, march, april)
	require.NoError(t, err)
	assert.Equal(t, 2, max)

	max, err = repo.MaxEpisodeNumber(ctx, streamer.ID, april, may)
	require.NoError(t, err)
	assert.Equal(t, 1, max)

	// Empty month yields zero.
	max, err = repo.MaxEpisodeNumber(ctx, streamer.ID, may, may.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, max)
}

func TestStreamRepo_GetByStreamerPagination(t *testing.T) {
	db := setupTestDB(t)
	streamers := NewStreamerRepository(db)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	streamer := createTestStreamer(t, ctx, streamers, "frank")
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &models.Stream{
			StreamerID: streamer.ID,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	page, total, err := repo.GetByStreamer(ctx, streamer.ID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	// Newest first.
	assert.True(t, page[0].StartedAt.After(page[1].StartedAt))
}

func TestChapterRepo_Ordering(t *testing.T) {
	db := setupTestDB(t)
	streamers := NewStreamerRepository(db)
	streams := NewStreamRepository(db)
	repo := NewChapterRepository(db)
	ctx := context.Background()

	streamer := createTestStreamer(t, ctx, streamers, "gina")
	stream := &models.Stream{StreamerID: streamer.ID, StartedAt: models.Now()}
	require.NoError(t, streams.Create(ctx, stream))

	for _, c := range []struct {
		title  string
		offset float64
	}{
		{"Late chapter", 3600},
		{"Opening", 0},
		{"Mid game", 1800},
	} {
		require.NoError(t, repo.Create(ctx, &models.Chapter{
			StreamID:           stream.ID,
			Title:              c.title,
			StartOffsetSeconds: c.offset,
		}))
	}

	chapters, err := repo.GetByStream(ctx, stream.ID)
	require.NoError(t, err)
	require.Len(t, chapters, 3)
	assert.Equal(t, "Opening", chapters[0].Title)
	assert.Equal(t, "Mid game", chapters[1].Title)
	assert.Equal(t, "Late chapter", chapters[2].Title)

	require.NoError(t, repo.DeleteByStream(ctx, stream.ID))
	chapters, err = repo.GetByStream(ctx, stream.ID)
	require.NoError(t, err)
	assert.Empty(t, chapters)
}
