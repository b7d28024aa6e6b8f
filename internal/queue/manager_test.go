package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStateRepo is an in-memory ProcessingStateRepository.
type fakeStateRepo struct {
	mu     sync.Mutex
	states map[models.ULID]*models.RecordingProcessingState
}

var _ repository.ProcessingStateRepository = (*fakeStateRepo)(nil)

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[models.ULID]*models.RecordingProcessingState)}
}

func (r *fakeStateRepo) Create(_ context.Context, state *models.RecordingProcessingState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.RecordingID] = state
	return nil
}

func (r *fakeStateRepo) GetByRecordingID(_ context.Context, recordingID models.ULID) (*models.RecordingProcessingState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[recordingID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeStateRepo) GetIncomplete(_ context.Context) ([]*models.RecordingProcessingState, error) {
	return nil, nil
}

func (r *fakeStateRepo) Update(_ context.Context, state *models.RecordingProcessingState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.RecordingID] = state
	return nil
}

func (r *fakeStateRepo) SetStepStatus(_ context.Context, recordingID models.ULID, step string, status models.StepStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[recordingID]
	if !ok {
		return errors.New("state not found")
	}
	return s.SetStepStatus(step, status)
}

func (r *fakeStateRepo) Delete(_ context.Context, recordingID models.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, recordingID)
	return nil
}

func testManager(t *testing.T, repo repository.ProcessingStateRepository) *Manager {
	t.Helper()
	m := NewManager(config.QueueConfig{
		WorkersPerStreamer:     2,
		MaxConcurrentStreamers: 15,
		OrphanCheckLimit:       3,
		MaxRetries:             0,
		CompletedRetention:     time.Hour,
		StatsInterval:          time.Second,
	}, repo, testLogger(), nil)
	m.Start(context.Background())
	t.Cleanup(m.Shutdown)
	return m
}

func ppRequest(streamer string) PostProcessingRequest {
	return PostProcessingRequest{
		RecordingID:  models.NewULID(),
		StreamID:     models.NewULID(),
		StreamerID:   models.NewULID(),
		StreamerName: streamer,
		TSPath:       "/tmp/rec.ts",
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 10*time.Second, 20*time.Millisecond)
}

func TestManager_PostProcessingChainRunsInOrder(t *testing.T) {
	repo := newFakeStateRepo()
	m := testManager(t, repo)

	var mu sync.Mutex
	var order []string
	record := func(ctx context.Context, task *Task, progress func(float64)) error {
		mu.Lock()
		order = append(order, task.Type)
		mu.Unlock()
		return nil
	}
	for _, step := range models.ProcessingSteps {
		m.RegisterHandler(step, record)
	}

	req := ppRequest("alice")
	taskIDs, err := m.EnqueueRecordingPostProcessing(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, taskIDs, len(models.ProcessingSteps), "no concat step for single-file captures")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == len(models.ProcessingSteps)
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, models.ProcessingSteps, order)
}

func TestManager_SegmentedChainIncludesConcatenation(t *testing.T) {
	repo := newFakeStateRepo()
	m := testManager(t, repo)

	var mu sync.Mutex
	var order []string
	record := func(ctx context.Context, task *Task, progress func(float64)) error {
		mu.Lock()
		order = append(order, task.Type)
		mu.Unlock()
		return nil
	}
	m.RegisterHandler(models.StepConcatenation, record)
	for _, step := range models.ProcessingSteps {
		m.RegisterHandler(step, record)
	}

	req := ppRequest("alice")
	req.SegmentsDir = "/tmp/rec_segments"
	taskIDs, err := m.EnqueueRecordingPostProcessing(context.Background(), req)
	require.NoError(t, err)
	require.Contains(t, taskIDs, models.StepConcatenation)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == len(models.ProcessingSteps)+1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, models.StepConcatenation, order[0])
}

func TestManager_TaskIDsPersisted(t *testing.T) {
	repo := newFakeStateRepo()
	m := testManager(t, repo)
	for _, step := range models.ProcessingSteps {
		m.RegisterHandler(step, func(ctx context.Context, task *Task, progress func(float64)) error { return nil })
	}

	req := ppRequest("alice")
	taskIDs, err := m.EnqueueRecordingPostProcessing(context.Background(), req)
	require.NoError(t, err)

	state, err := repo.GetByRecordingID(context.Background(), req.RecordingID)
	require.NoError(t, err)
	require.NotNil(t, state)
	persisted, err := state.TaskIDs()
	require.NoError(t, err)
	assert.Equal(t, taskIDs, persisted)
}

func TestManager_FailurePropagatesToDependents(t *testing.T) {
	repo := newFakeStateRepo()
	m := testManager(t, repo)

	m.RegisterHandler(models.StepMetadata, func(ctx context.Context, task *Task, progress func(float64)) error {
		return errors.New("sidecar write failed")
	})
	for _, step := range models.ProcessingSteps[1:] {
		m.RegisterHandler(step, func(ctx context.Context, task *Task, progress func(float64)) error {
			t.Errorf("step %s must not run after metadata failed", task.Type)
			return nil
		})
	}

	req := ppRequest("alice")
	taskIDs, err := m.EnqueueRecordingPostProcessing(context.Background(), req)
	require.NoError(t, err)

	waitFor(t, func() bool {
		task, ok := m.GetTask(taskIDs[models.StepCleanup])
		return ok && task.Status == TaskFailed
	})

	task, _ := m.GetTask(taskIDs[models.StepChapters])
	assert.Contains(t, task.ErrorMessage, "Dependencies failed: [")
	assert.Contains(t, task.ErrorMessage, taskIDs[models.StepMetadata])

	metaTask, _ := m.GetTask(taskIDs[models.StepMetadata])
	assert.Equal(t, "sidecar write failed", metaTask.ErrorMessage)
}

func TestManager_IdempotencyGateSkipsCompletedStep(t *testing.T) {
	repo := newFakeStateRepo()
	m := testManager(t, repo)

	req := ppRequest("alice")
	// The metadata step already ran in a previous life.
	state := &models.RecordingProcessingState{
		RecordingID:    req.RecordingID,
		StreamID:       req.StreamID,
		StreamerID:     req.StreamerID,
		MetadataStatus: models.StepCompleted,
	}
	require.NoError(t, repo.Create(context.Background(), state))

	var mu sync.Mutex
	ran := map[string]bool{}
	record := func(ctx context.Context, task *Task, progress func(float64)) error {
		mu.Lock()
		ran[task.Type] = true
		mu.Unlock()
		return nil
	}
	for _, step := range models.ProcessingSteps {
		m.RegisterHandler(step, record)
	}

	taskIDs, err := m.EnqueueRecordingPostProcessing(context.Background(), req)
	require.NoError(t, err)

	waitFor(t, func() bool {
		task, ok := m.GetTask(taskIDs[models.StepCleanup])
		return ok && task.Status == TaskCompleted
	})

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, ran[models.StepMetadata], "completed step must be skipped")
	assert.True(t, ran[models.StepChapters])
	assert.True(t, ran[models.StepCleanup])

	task, _ := m.GetTask(taskIDs[models.StepMetadata])
	assert.Equal(t, TaskCompleted, task.Status)
}

func TestManager_OrphanCheckRateLimit(t *testing.T) {
	repo := newFakeStateRepo()
	m := testManager(t, repo)

	release := make(chan struct{})
	m.RegisterHandler(TaskTypeOrphanCheck, func(ctx context.Context, task *Task, progress func(float64)) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := m.Enqueue(NewTask(OrphanCheckPayload{Root: "/recordings"}, 0))
		require.NoError(t, err)
		require.NotEqual(t, OrphanCheckLimitID, id)
		ids = append(ids, id)
	}

	id, err := m.Enqueue(NewTask(OrphanCheckPayload{Root: "/recordings"}, 0))
	require.NoError(t, err)
	assert.Equal(t, OrphanCheckLimitID, id, "fourth in-flight check refused")

	close(release)
	for _, taskID := range ids {
		taskID := taskID
		waitFor(t, func() bool {
			task, ok := m.GetTask(taskID)
			return ok && task.Status == TaskCompleted
		})
	}

	// Slots freed: a new check is accepted again.
	id, err = m.Enqueue(NewTask(OrphanCheckPayload{Root: "/recordings"}, 0))
	require.NoError(t, err)
	assert.NotEqual(t, OrphanCheckLimitID, id)
}

func TestManager_StreamerIsolation(t *testing.T) {
	repo := newFakeStateRepo()
	m := testManager(t, repo)

	blockAlice := make(chan struct{})
	var bobDone sync.WaitGroup
	bobDone.Add(1)

	m.RegisterHandler(models.StepRemux, func(ctx context.Context, task *Task, progress func(float64)) error {
		if task.StreamerName == "alice" {
			<-blockAlice
			return nil
		}
		bobDone.Done()
		return nil
	})

	// Saturate alice's two workers.
	for i := 0; i < 2; i++ {
		_, err := m.Enqueue(stepTask(models.StepRemux, "alice", 0))
		require.NoError(t, err)
	}
	_, err := m.Enqueue(stepTask(models.StepRemux, "bob", 0))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		bobDone.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("bob's task starved by alice's stuck workers")
	}
	close(blockAlice)
}

func TestManager_ExternalTaskLifecycle(t *testing.T) {
	repo := newFakeStateRepo()
	m := testManager(t, repo)

	task := NewTask(CapturePayload{StreamerName: "alice", ProcessID: "stream_x"}, 0)
	m.RegisterExternalTask(task)

	got, ok := m.GetTask(task.ID)
	require.True(t, ok)
	assert.Equal(t, TaskRunning, got.Status)
	assert.True(t, got.External)

	m.UpdateExternalProgress(task.ID, 42)
	m.CompleteExternalTask(task.ID, TaskCompleted, "")

	got, _ = m.GetTask(task.ID)
	assert.Equal(t, TaskCompleted, got.Status)
}

func TestManager_FinishedChainLeavesGraph(t *testing.T) {
	repo := newFakeStateRepo()
	m := testManager(t, repo)

	noop := func(ctx context.Context, task *Task, progress func(float64)) error { return nil }
	for _, step := range models.ProcessingSteps {
		m.RegisterHandler(step, noop)
	}

	for i := 0; i < 5; i++ {
		_, err := m.EnqueueRecordingPostProcessing(context.Background(), ppRequest("alice"))
		require.NoError(t, err)
	}

	// Every finished chain unwinds out of the dependency graph; a
	// long-running server must not accumulate terminal nodes.
	waitFor(t, func() bool {
		return m.dag.Size() == 0
	})
}

func TestManager_CancelPropagatesCancelled(t *testing.T) {
	repo := newFakeStateRepo()
	m := testManager(t, repo)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	m.RegisterHandler(models.StepMetadata, func(ctx context.Context, task *Task, progress func(float64)) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})
	for _, step := range models.ProcessingSteps[1:] {
		m.RegisterHandler(step, func(ctx context.Context, task *Task, progress func(float64)) error {
			t.Errorf("step %s must not run after the chain was cancelled", task.Type)
			return nil
		})
	}

	taskIDs, err := m.EnqueueRecordingPostProcessing(context.Background(), ppRequest("alice"))
	require.NoError(t, err)
	<-started

	require.True(t, m.CancelTask(taskIDs[models.StepMetadata]))

	for _, step := range models.ProcessingSteps[1:] {
		task, ok := m.GetTask(taskIDs[step])
		require.True(t, ok)
		assert.Equal(t, TaskCancelled, task.Status, "dependents of a cancelled task are cancelled, not failed")
		assert.Contains(t, task.ErrorMessage, "Dependencies cancelled: [")
	}

	// The handler finishing after the cancel must not flip the task back
	// to completed.
	close(release)
	waitFor(t, func() bool {
		task, ok := m.GetTask(taskIDs[models.StepMetadata])
		return ok && task.Status == TaskCancelled
	})
	time.Sleep(50 * time.Millisecond)
	task, _ := m.GetTask(taskIDs[models.StepMetadata])
	assert.Equal(t, TaskCancelled, task.Status)
}

func TestManager_StatsIncludesQueueSizes(t *testing.T) {
	repo := newFakeStateRepo()
	m := testManager(t, repo)

	block := make(chan struct{})
	defer close(block)
	m.RegisterHandler(models.StepRemux, func(ctx context.Context, task *Task, progress func(float64)) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})

	_, err := m.Enqueue(stepTask(models.StepRemux, "alice", 0))
	require.NoError(t, err)

	waitFor(t, func() bool {
		st := m.Stats()
		_, ok := st.QueueSizes["alice"]
		return ok
	})
}
