package repository

import (
	"context"
	"testing"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamerRepo_CreateCanonicalizesUsername(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamerRepository(db)
	ctx := context.Background()

	streamer := &models.Streamer{
		PlatformID:  "12345",
		Username:    "CoolStreamer",
		DisplayName: "CoolStreamer",
	}
	require.NoError(t, repo.Create(ctx, streamer))
	assert.Equal(t, "coolstreamer", streamer.Username)

	// Lookup matches regardless of case.
	found, err := repo.GetByUsername(ctx, "COOLSTREAMER")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, streamer.ID, found.ID)
	assert.Equal(t, "CoolStreamer", found.Name())
}

func TestStreamerRepo_GetByPlatformID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamerRepository(db)
	ctx := context.Background()

	streamer := &models.Streamer{PlatformID: "999", Username: "henry"}
	require.NoError(t, repo.Create(ctx, streamer))

	found, err := repo.GetByPlatformID(ctx, "999")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, streamer.ID, found.ID)

	missing, err := repo.GetByPlatformID(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStreamerRepo_SetLive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamerRepository(db)
	ctx := context.Background()

	streamer := &models.Streamer{PlatformID: "1", Username: "iris"}
	require.NoError(t, repo.Create(ctx, streamer))

	require.NoError(t, repo.SetLive(ctx, streamer.ID, true))

	live, err := repo.GetLive(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, streamer.ID, live[0].ID)

	require.NoError(t, repo.SetLive(ctx, streamer.ID, false))
	live, err = repo.GetLive(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}
