package queue

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return observability.NewLoggerWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, os.Stderr)
}

func stepTask(step, streamer string, priority int, deps ...string) *Task {
	return NewTask(StepPayload{
		Step:         step,
		RecordingID:  models.NewULID(),
		StreamID:     models.NewULID(),
		StreamerID:   models.NewULID(),
		StreamerName: streamer,
		TSPath:       "/tmp/x.ts",
	}, priority, deps...)
}

type recordedEvent struct {
	task Task
	kind EventKind
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) callback(task Task, kind EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{task, kind})
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func newTestTracker() *Tracker {
	return NewTracker(time.Hour, testLogger(), nil)
}

func TestTracker_StatusChangesAlwaysNotify(t *testing.T) {
	tr := newTestTracker()
	rec := &eventRecorder{}
	tr.RegisterCallback(rec.callback)

	task := stepTask(models.StepRemux, "alice", 0)
	tr.Add(task)
	require.True(t, tr.UpdateStatus(task.ID, TaskRunning, ""))
	require.True(t, tr.UpdateStatus(task.ID, TaskCompleted, ""))

	assert.Equal(t, 3, rec.count(EventStatus), "add + running + completed")

	got, ok := tr.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, TaskCompleted, got.Status)
	assert.Equal(t, 100.0, got.Progress, "completion snaps progress to 100")
	assert.NotNil(t, got.CompletedAt)
}

func TestTracker_ProgressThrottle(t *testing.T) {
	tr := newTestTracker()
	rec := &eventRecorder{}
	tr.RegisterCallback(rec.callback)

	task := stepTask(models.StepRemux, "alice", 0)
	tr.Add(task)
	tr.UpdateStatus(task.ID, TaskRunning, "")

	// 0..100 in 1pp steps: first update notifies, then every 5pp, plus 100.
	for p := 0; p <= 100; p++ {
		tr.UpdateProgress(task.ID, float64(p))
	}
	assert.LessOrEqual(t, rec.count(EventProgress), 21)
	assert.GreaterOrEqual(t, rec.count(EventProgress), 20)

	got, _ := tr.Get(task.ID)
	assert.Equal(t, 100.0, got.Progress)
}

func TestTracker_ProgressIgnoredAfterTerminal(t *testing.T) {
	tr := newTestTracker()
	task := stepTask(models.StepCleanup, "alice", 0)
	tr.Add(task)
	tr.UpdateStatus(task.ID, TaskFailed, "boom")

	tr.UpdateProgress(task.ID, 50)
	got, ok := tr.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, TaskFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
	assert.Zero(t, got.Progress)
}

func TestTracker_ExternalTasksTracked(t *testing.T) {
	tr := newTestTracker()
	task := NewTask(CapturePayload{StreamerName: "alice", ProcessID: "stream_x"}, 0)
	task.External = true
	tr.Add(task)

	assert.Len(t, tr.External(), 1)
	assert.Len(t, tr.Active(), 1)

	tr.UpdateStatus(task.ID, TaskCompleted, "")
	assert.Empty(t, tr.External())
	assert.Len(t, tr.Recent(), 1)
}

func TestTracker_Stats(t *testing.T) {
	tr := newTestTracker()
	a := stepTask(models.StepRemux, "alice", 0)
	b := stepTask(models.StepCleanup, "bob", 0)
	tr.Add(a)
	tr.Add(b)
	tr.UpdateStatus(a.ID, TaskRunning, "")
	tr.UpdateStatus(b.ID, TaskCompleted, "")

	st := tr.Stats()
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.ByStatus[string(TaskRunning)])
	assert.Equal(t, 1, st.ByStatus[string(TaskCompleted)])
}

func TestTracker_CleanupDropsExpired(t *testing.T) {
	tr := newTestTracker()
	task := stepTask(models.StepRemux, "alice", 0)
	tr.Add(task)
	tr.UpdateStatus(task.ID, TaskCompleted, "")

	// Not yet expired.
	tr.cleanup(time.Now().Add(-time.Minute))
	_, ok := tr.Get(task.ID)
	assert.True(t, ok)

	tr.cleanup(time.Now().Add(time.Minute))
	_, ok = tr.Get(task.ID)
	assert.False(t, ok)
}
