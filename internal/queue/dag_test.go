package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDAG_PromotionChain(t *testing.T) {
	d := NewDAG(testLogger())

	a := stepTask(models.StepMetadata, "alice", 0)
	b := stepTask(models.StepRemux, "alice", 0, a.ID)
	c := stepTask(models.StepValidation, "alice", 0, b.ID)
	require.NoError(t, d.Add(a))
	require.NoError(t, d.Add(b))
	require.NoError(t, d.Add(c))

	ready := d.Ready()
	require.Len(t, ready, 1)
	assert.Equal(t, a.ID, ready[0].ID)

	d.MarkRunning(a.ID)
	d.MarkCompleted(a.ID)

	ready = d.Ready()
	require.Len(t, ready, 1)
	assert.Equal(t, b.ID, ready[0].ID)

	d.MarkCompleted(b.ID)
	ready = d.Ready()
	require.Len(t, ready, 1)
	assert.Equal(t, c.ID, ready[0].ID)
}

func TestDAG_UnknownDependencyRejected(t *testing.T) {
	d := NewDAG(testLogger())
	task := stepTask(models.StepRemux, "alice", 0, "nonexistent")
	err := d.Add(task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestDAG_ReadyOrdering(t *testing.T) {
	d := NewDAG(testLogger())

	low := stepTask(models.StepCleanup, "alice", 5)
	low.CreatedAt = time.Now().Add(-3 * time.Second)
	high := stepTask(models.StepRemux, "alice", 1)
	high.CreatedAt = time.Now().Add(-time.Second)
	older := stepTask(models.StepMetadata, "alice", 1)
	older.CreatedAt = time.Now().Add(-2 * time.Second)

	require.NoError(t, d.Add(low))
	require.NoError(t, d.Add(high))
	require.NoError(t, d.Add(older))

	ready := d.Ready()
	require.Len(t, ready, 3)
	// Priority asc first, created-at asc within the same priority.
	assert.Equal(t, older.ID, ready[0].ID)
	assert.Equal(t, high.ID, ready[1].ID)
	assert.Equal(t, low.ID, ready[2].ID)
}

func TestDAG_TakeReadyDispatchesOnce(t *testing.T) {
	d := NewDAG(testLogger())
	task := stepTask(models.StepRemux, "alice", 0)
	require.NoError(t, d.Add(task))

	taken := d.TakeReady()
	require.Len(t, taken, 1)
	assert.Empty(t, d.TakeReady())

	d.Undispatch(task.ID)
	assert.Len(t, d.TakeReady(), 1)
}

func TestDAG_FailureCascades(t *testing.T) {
	d := NewDAG(testLogger())

	a := stepTask(models.StepMetadata, "alice", 0)
	b := stepTask(models.StepRemux, "alice", 0, a.ID)
	c := stepTask(models.StepValidation, "alice", 0, b.ID)
	require.NoError(t, d.Add(a))
	require.NoError(t, d.Add(b))
	require.NoError(t, d.Add(c))

	terminated := d.MarkFailed(a.ID, "remux input missing")
	require.Len(t, terminated, 2)

	for _, dep := range terminated {
		assert.Equal(t, TaskFailed, dep.Status)
	}
	byID := map[string]Task{}
	for _, dep := range terminated {
		byID[dep.ID] = dep
	}
	assert.Equal(t, fmt.Sprintf("Dependencies failed: [%s]", a.ID), byID[b.ID].ErrorMessage)
	assert.Equal(t, fmt.Sprintf("Dependencies failed: [%s]", b.ID), byID[c.ID].ErrorMessage)
	assert.Empty(t, d.Ready())
}

func TestDAG_CancelCascades(t *testing.T) {
	d := NewDAG(testLogger())

	a := stepTask(models.StepMetadata, "alice", 0)
	b := stepTask(models.StepRemux, "alice", 0, a.ID)
	c := stepTask(models.StepValidation, "alice", 0, b.ID)
	require.NoError(t, d.Add(a))
	require.NoError(t, d.Add(b))
	require.NoError(t, d.Add(c))

	terminated := d.Cancel(a.ID)
	require.Len(t, terminated, 2)
	for _, dep := range terminated {
		assert.Equal(t, TaskCancelled, dep.Status, "cancellation propagates as cancelled")
		assert.Contains(t, dep.ErrorMessage, "Dependencies cancelled")
	}

	// Cancelling a finished task is a no-op.
	assert.Nil(t, d.Cancel(a.ID))
}

func TestDAG_TerminalStatusSticks(t *testing.T) {
	d := NewDAG(testLogger())
	task := stepTask(models.StepRemux, "alice", 0)
	require.NoError(t, d.Add(task))

	d.MarkRunning(task.ID)
	d.Cancel(task.ID)

	// A handler finishing after the cancel must not flip the status.
	d.MarkCompleted(task.ID)
	assert.Equal(t, TaskCancelled, d.tasks[task.ID].Status)

	assert.Nil(t, d.MarkFailed(task.ID, "late failure"))
	assert.Equal(t, TaskCancelled, d.tasks[task.ID].Status)
}

func TestDAG_RetryFailed(t *testing.T) {
	d := NewDAG(testLogger())
	task := stepTask(models.StepRemux, "alice", 0)
	require.NoError(t, d.Add(task))

	taken := d.TakeReady()
	require.Len(t, taken, 1)
	d.MarkRunning(task.ID)
	d.MarkFailed(task.ID, "transient")

	require.True(t, d.RetryFailed(task.ID))
	ready := d.TakeReady()
	require.Len(t, ready, 1)
	assert.Equal(t, task.ID, ready[0].ID)
	assert.Equal(t, 1, ready[0].RetryCount)

	assert.False(t, d.RetryFailed(task.ID), "only failed tasks can retry")
}

func TestDAG_EvictFinished(t *testing.T) {
	d := NewDAG(testLogger())
	task := stepTask(models.StepCleanup, "alice", 0)
	require.NoError(t, d.Add(task))

	d.Evict(task.ID)
	assert.Equal(t, 1, d.Size(), "non-terminal tasks stay")

	d.MarkCompleted(task.ID)
	d.Evict(task.ID)
	assert.Zero(t, d.Size())
}

func TestDAG_EvictUnwindsCompletedChain(t *testing.T) {
	d := NewDAG(testLogger())

	a := stepTask(models.StepMetadata, "alice", 0)
	b := stepTask(models.StepRemux, "alice", 0, a.ID)
	c := stepTask(models.StepCleanup, "alice", 0, b.ID)
	require.NoError(t, d.Add(a))
	require.NoError(t, d.Add(b))
	require.NoError(t, d.Add(c))

	d.MarkCompleted(a.ID)
	d.Evict(a.ID)
	assert.Equal(t, 3, d.Size(), "a stays while b still needs it")

	d.MarkCompleted(b.ID)
	d.Evict(b.ID)
	assert.Equal(t, 3, d.Size(), "b stays while c still needs it")

	d.MarkCompleted(c.ID)
	d.Evict(c.ID)
	assert.Zero(t, d.Size(), "finishing the tail unwinds the whole chain")
}
