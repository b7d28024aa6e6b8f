package repository

import (
	"context"
	"testing"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessingState() *models.RecordingProcessingState {
	return &models.RecordingProcessingState{
		RecordingID: models.NewULID(),
		StreamID:    models.NewULID(),
		StreamerID:  models.NewULID(),
	}
}

func TestProcessingStateRepo_DefaultsPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProcessingStateRepository(db)
	ctx := context.Background()

	state := newTestProcessingState()
	require.NoError(t, repo.Create(ctx, state))

	found, err := repo.GetByRecordingID(ctx, state.RecordingID)
	require.NoError(t, err)
	require.NotNil(t, found)
	for _, step := range models.ProcessingSteps {
		status, err := found.StepStatusFor(step)
		require.NoError(t, err)
		assert.Equal(t, models.StepPending, status, step)
	}
	assert.False(t, found.AllCompleted())
	assert.Equal(t, models.StepMetadata, found.EarliestIncomplete())
}

func TestProcessingStateRepo_SetStepStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProcessingStateRepository(db)
	ctx := context.Background()

	state := newTestProcessingState()
	require.NoError(t, repo.Create(ctx, state))

	for _, step := range []string{models.StepMetadata, models.StepChapters, models.StepRemux} {
		require.NoError(t, repo.SetStepStatus(ctx, state.RecordingID, step, models.StepCompleted))
	}

	found, err := repo.GetByRecordingID(ctx, state.RecordingID)
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, found.RemuxStatus)
	assert.Equal(t, models.StepPending, found.ValidationStatus)
	assert.Equal(t, models.StepValidation, found.EarliestIncomplete())

	err = repo.SetStepStatus(ctx, state.RecordingID, "bogus_step", models.StepCompleted)
	require.Error(t, err)
}

func TestProcessingStateRepo_GetIncomplete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProcessingStateRepository(db)
	ctx := context.Background()

	done := newTestProcessingState()
	for _, step := range models.ProcessingSteps {
		require.NoError(t, done.SetStepStatus(step, models.StepCompleted))
	}
	require.NoError(t, repo.Create(ctx, done))

	partial := newTestProcessingState()
	require.NoError(t, partial.SetStepStatus(models.StepMetadata, models.StepCompleted))
	require.NoError(t, repo.Create(ctx, partial))

	incomplete, err := repo.GetIncomplete(ctx)
	require.NoError(t, err)
	require.Len(t, incomplete, 1)
	assert.Equal(t, partial.RecordingID, incomplete[0].RecordingID)
}

func TestProcessingStateRepo_DuplicateRecordingRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProcessingStateRepository(db)
	ctx := context.Background()

	state := newTestProcessingState()
	require.NoError(t, repo.Create(ctx, state))

	dup := newTestProcessingState()
	dup.RecordingID = state.RecordingID
	require.Error(t, repo.Create(ctx, dup))
}

func TestProcessingStateRepo_TaskIDsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProcessingStateRepository(db)
	ctx := context.Background()

	state := newTestProcessingState()
	require.NoError(t, state.SetTaskIDs(map[string]string{
		models.StepMetadata: "task-1",
		models.StepRemux:    "task-2",
	}))
	require.NoError(t, repo.Create(ctx, state))

	found, err := repo.GetByRecordingID(ctx, state.RecordingID)
	require.NoError(t, err)
	ids, err := found.TaskIDs()
	require.NoError(t, err)
	assert.Equal(t, "task-1", ids[models.StepMetadata])
	assert.Equal(t, "task-2", ids[models.StepRemux])
}
