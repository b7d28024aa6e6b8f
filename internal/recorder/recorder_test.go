package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/observability"
	"github.com/streamvault/streamvault/internal/queue"
	"github.com/streamvault/streamvault/internal/repository"
	"github.com/streamvault/streamvault/internal/storage"
	"github.com/streamvault/streamvault/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeSupervisor struct {
	mu          sync.Mutex
	requests    []supervisor.CaptureRequest
	active      map[string]bool
	startErr    error
	terminated  []string
	durationSec *float64
}

var _ CaptureSupervisor = (*fakeSupervisor)(nil)

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{active: make(map[string]bool)}
}

func (f *fakeSupervisor) StartCapture(_ context.Context, req supervisor.CaptureRequest) (*supervisor.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.requests = append(f.requests, req)
	f.active[req.ProcessID] = true
	return &supervisor.Handle{ProcessID: req.ProcessID, PID: 4242, StartedAt: time.Now()}, nil
}

func (f *fakeSupervisor) Terminate(processID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active[processID] {
		return false
	}
	delete(f.active, processID)
	f.terminated = append(f.terminated, processID)
	return true
}

func (f *fakeSupervisor) IsActive(processID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[processID]
}

func (f *fakeSupervisor) Progress(string) (supervisor.CaptureProgress, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return supervisor.CaptureProgress{Status: supervisor.StatusRecording, DurationSeconds: f.durationSec}, true
}

func (f *fakeSupervisor) setDuration(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durationSec = &seconds
}

func (f *fakeSupervisor) GracefulShutdown(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.active {
		delete(f.active, id)
		f.terminated = append(f.terminated, id)
	}
}

func (f *fakeSupervisor) lastRequest(t *testing.T) supervisor.CaptureRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

type fakeQueue struct {
	mu        sync.Mutex
	external  []*queue.Task
	completed map[string]queue.TaskStatus
	progress  map[string]float64
	ppReqs    []queue.PostProcessingRequest
}

var _ TaskQueue = (*fakeQueue)(nil)

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		completed: make(map[string]queue.TaskStatus),
		progress:  make(map[string]float64),
	}
}

func (f *fakeQueue) EnqueueRecordingPostProcessing(_ context.Context, req queue.PostProcessingRequest) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ppReqs = append(f.ppReqs, req)
	return map[string]string{}, nil
}

func (f *fakeQueue) RegisterExternalTask(t *queue.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.external = append(f.external, t)
}

func (f *fakeQueue) UpdateExternalProgress(id string, progress float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress[id] = progress
}

func (f *fakeQueue) lastProgress(id string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress[id]
}

func (f *fakeQueue) CompleteExternalTask(id string, status queue.TaskStatus, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[id] = status
}

func (f *fakeQueue) postProcessingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ppReqs)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordedEvents) RecordingEvent(event string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordedEvents) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

type fixture struct {
	rec    *Recorder
	db     *gorm.DB
	vault  *storage.Vault
	sup    *fakeSupervisor
	tasks  *fakeQueue
	events *recordedEvents

	streamers repository.StreamerRepository
	streams   repository.StreamRepository
	recs      repository.RecordingRepository
	active    repository.ActiveRecordingRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Streamer{},
		&models.Stream{},
		&models.Recording{},
		&models.ActiveRecordingState{},
		&models.GlobalSettings{},
		&models.ProxySettings{},
		&models.StreamerRecordingSettings{},
	))

	vault, err := storage.NewVault(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		db:        db,
		vault:     vault,
		sup:       newFakeSupervisor(),
		tasks:     newFakeQueue(),
		events:    &recordedEvents{},
		streamers: repository.NewStreamerRepository(db),
		streams:   repository.NewStreamRepository(db),
		recs:      repository.NewRecordingRepository(db),
		active:    repository.NewActiveRecordingRepository(db),
	}
	log := observability.NewLoggerWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, os.Stderr)
	f.rec = New(
		config.RecorderConfig{
			MaxConcurrentRecordings: 2,
			MonitorInterval:         50 * time.Millisecond,
			HeartbeatInterval:       time.Hour,
			DefaultQuality:          "best",
			CodecPreference:         "h264",
		},
		vault,
		f.streamers,
		f.streams,
		f.recs,
		f.active,
		repository.NewSettingsRepository(db),
		f.sup,
		f.tasks,
		f.events,
		nil,
		log,
	)
	return f
}

func (f *fixture) liveStream(t *testing.T, username, title string) (*models.Streamer, *models.Stream) {
	t.Helper()
	ctx := context.Background()
	streamer := &models.Streamer{
		PlatformID:  "pid_" + username,
		Username:    username,
		DisplayName: strings.ToUpper(username[:1]) + username[1:],
	}
	require.NoError(t, f.streamers.Create(ctx, streamer))
	stream := &models.Stream{
		StreamerID: streamer.ID,
		Title:      title,
		StartedAt:  time.Date(2026, 8, 25, 19, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.streams.Create(ctx, stream))
	return streamer, stream
}

func TestStartRecording(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	streamer, stream := f.liveStream(t, "alice", "Speedrun Sunday")

	rec, err := f.rec.StartRecording(ctx, stream.ID, false)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.RecordingStatusRecording, rec.Status)

	req := f.sup.lastRequest(t)
	assert.Equal(t, "https://twitch.tv/alice", req.ChannelURL)
	assert.Equal(t, "best", req.Quality)
	assert.Equal(t, "h264", req.CodecPreference)
	assert.Equal(t, supervisor.ProcessIDForStream(stream.ID), req.ProcessID)

	rel, err := f.vault.Rel(req.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("Alice", "Season 2026-08", "Alice - S202608E01 - Speedrun Sunday.ts"), rel)

	got, err := f.streams.GetByID(ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EpisodeNumber)

	state, err := f.active.GetByStreamID(ctx, stream.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 4242, state.PID)
	assert.Equal(t, streamer.Name(), state.StreamerName)

	assert.True(t, f.events.has(EventRecordingStarted))
	f.tasks.mu.Lock()
	assert.Len(t, f.tasks.external, 1)
	f.tasks.mu.Unlock()
}

func TestStartRecording_EpisodeNumbersIncrementWithinMonth(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	streamer, first := f.liveStream(t, "alice", "One")

	_, err := f.rec.StartRecording(ctx, first.ID, false)
	require.NoError(t, err)
	require.NoError(t, f.rec.StopRecording(ctx, latestRecording(t, f, first.ID).ID, StopReasonManual))

	second := &models.Stream{
		StreamerID: streamer.ID,
		Title:      "Two",
		StartedAt:  time.Date(2026, 8, 26, 20, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.streams.Create(ctx, second))
	_, err = f.rec.StartRecording(ctx, second.ID, false)
	require.NoError(t, err)

	got, err := f.streams.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.EpisodeNumber)

	// A new month restarts the sequence.
	september := &models.Stream{
		StreamerID: streamer.ID,
		Title:      "Three",
		StartedAt:  time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.streams.Create(ctx, september))
	require.NoError(t, f.rec.StopRecording(ctx, latestRecording(t, f, second.ID).ID, StopReasonManual))
	_, err = f.rec.StartRecording(ctx, september.ID, false)
	require.NoError(t, err)

	got, err = f.streams.GetByID(ctx, september.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EpisodeNumber)
}

func TestPathPlanner_PersistsAssignedEpisode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	streamer, first := f.liveStream(t, "alice", "One")
	second := &models.Stream{
		StreamerID: streamer.ID,
		Title:      "Two",
		StartedAt:  time.Date(2026, 8, 26, 20, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.streams.Create(ctx, second))

	planner := NewPathPlanner(f.vault, f.streams)
	plan, err := planner.Plan(ctx, first, streamer)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.EpisodeNumber)

	// The assignment is durable before Plan returns, so the next plan in the
	// same month cannot draw the same number.
	got, err := f.streams.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EpisodeNumber)

	plan, err = planner.Plan(ctx, second, streamer)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.EpisodeNumber)
}

func TestPathPlanner_ConcurrentPlansDrawDistinctEpisodes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	streamer, _ := f.liveStream(t, "alice", "Zero")

	const n = 4
	streams := make([]*models.Stream, n)
	for i := range streams {
		streams[i] = &models.Stream{
			StreamerID: streamer.ID,
			Title:      fmt.Sprintf("Stream %d", i),
			StartedAt:  time.Date(2026, 8, 10+i, 19, 0, 0, 0, time.UTC),
		}
		require.NoError(t, f.streams.Create(ctx, streams[i]))
	}

	planner := NewPathPlanner(f.vault, f.streams)
	episodes := make(chan int, n)
	var wg sync.WaitGroup
	for _, s := range streams {
		wg.Add(1)
		go func(s *models.Stream) {
			defer wg.Done()
			plan, err := planner.Plan(ctx, s, streamer)
			assert.NoError(t, err)
			episodes <- plan.EpisodeNumber
		}(s)
	}
	wg.Wait()
	close(episodes)

	seen := map[int]bool{}
	for ep := range episodes {
		assert.False(t, seen[ep], "episode %d assigned twice", ep)
		seen[ep] = true
	}
	assert.Len(t, seen, n)
}

func latestRecording(t *testing.T, f *fixture, streamID models.ULID) *models.Recording {
	t.Helper()
	rec, err := f.recs.GetLatestByStream(context.Background(), streamID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func TestStartRecording_CapacityRefusedBeforeRowCreation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, s1 := f.liveStream(t, "alice", "One")
	_, s2 := f.liveStream(t, "bob", "Two")
	_, s3 := f.liveStream(t, "carol", "Three")

	_, err := f.rec.StartRecording(ctx, s1.ID, false)
	require.NoError(t, err)
	_, err = f.rec.StartRecording(ctx, s2.ID, false)
	require.NoError(t, err)

	_, err = f.rec.StartRecording(ctx, s3.ID, false)
	require.ErrorIs(t, err, models.ErrCapacity)

	recs, err := f.recs.GetByStream(ctx, s3.ID)
	require.NoError(t, err)
	assert.Empty(t, recs, "capacity refusal must not create a recording row")
}

func TestStartRecording_DuplicateRefused(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, stream := f.liveStream(t, "alice", "One")

	_, err := f.rec.StartRecording(ctx, stream.ID, false)
	require.NoError(t, err)
	_, err = f.rec.StartRecording(ctx, stream.ID, false)
	assert.ErrorIs(t, err, models.ErrAlreadyRecording)
}

func TestStartRecording_DisabledStreamerAndForceStart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	streamer, stream := f.liveStream(t, "alice", "One")

	settings := repository.NewSettingsRepository(f.db)
	require.NoError(t, settings.UpsertStreamerSettings(ctx, &models.StreamerRecordingSettings{
		StreamerID: streamer.ID,
		Enabled:    false,
		Quality:    "720p60",
	}))

	_, err := f.rec.StartRecording(ctx, stream.ID, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")

	rec, err := f.rec.ForceStart(ctx, streamer.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)

	req := f.sup.lastRequest(t)
	assert.Equal(t, "720p60", req.Quality, "per-streamer override applies")

	state, err := f.active.GetByStreamID(ctx, stream.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Forced)
}

func TestForceStart_CreatesStreamWhenNoneLive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	streamer := &models.Streamer{PlatformID: "p1", Username: "alice"}
	require.NoError(t, f.streamers.Create(ctx, streamer))

	rec, err := f.rec.ForceStart(ctx, streamer.ID)
	require.NoError(t, err)

	stream, err := f.streams.GetByID(ctx, rec.StreamID)
	require.NoError(t, err)
	require.NotNil(t, stream)
	assert.True(t, stream.IsLive())
	assert.Equal(t, streamer.ID, stream.StreamerID)
}

func TestStopRecording_ManualLeavesFileAndSkipsPostProcessing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, stream := f.liveStream(t, "alice", "One")

	rec, err := f.rec.StartRecording(ctx, stream.ID, false)
	require.NoError(t, err)
	writeOutput(t, f, rec.Path, 2048)

	require.NoError(t, f.rec.StopRecording(ctx, rec.ID, StopReasonManual))

	got, err := f.recs.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusStopped, got.Status)
	require.NotNil(t, got.FileSize)
	assert.Equal(t, int64(2048), *got.FileSize)

	state, err := f.active.GetByStreamID(ctx, stream.ID)
	require.NoError(t, err)
	assert.Nil(t, state, "active row cleared")

	assert.Zero(t, f.tasks.postProcessingCount())
	assert.True(t, f.events.has(EventRecordingStopped))

	// Stopping again is a no-op.
	require.NoError(t, f.rec.StopRecording(ctx, rec.ID, StopReasonManual))
}

func TestStopRecording_ExitCallbackCannotDoubleFinalize(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, stream := f.liveStream(t, "alice", "One")

	rec, err := f.rec.StartRecording(ctx, stream.ID, false)
	require.NoError(t, err)
	writeOutput(t, f, rec.Path, 2048)

	// Hold the finalize claim the way an in-flight manual stop does.
	require.True(t, f.rec.claimFinalize(rec.ID))

	// The child's exit callback backs off while the stop owns the recording:
	// no completed status, no post-processing hand-off.
	f.rec.OnCaptureExit(supervisor.ProcessIDForStream(stream.ID), nil)
	got, err := f.recs.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusRecording, got.Status)
	assert.Zero(t, f.tasks.postProcessingCount())

	// A second stop backs off the same way.
	require.NoError(t, f.rec.StopRecording(ctx, rec.ID, StopReasonManual))
	got, err = f.recs.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusRecording, got.Status)

	f.rec.releaseFinalize(rec.ID)

	require.NoError(t, f.rec.StopRecording(ctx, rec.ID, StopReasonManual))
	got, err = f.recs.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusStopped, got.Status)
	assert.Zero(t, f.tasks.postProcessingCount(), "a stopped recording never reaches post-processing")
}

func TestCaptureExit_AutomaticCompletionEnqueuesPostProcessing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	streamer, stream := f.liveStream(t, "alice", "One")

	rec, err := f.rec.StartRecording(ctx, stream.ID, false)
	require.NoError(t, err)
	writeOutput(t, f, rec.Path, 4096)

	f.rec.OnCaptureExit(supervisor.ProcessIDForStream(stream.ID), nil)

	got, err := f.recs.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusProcessing, got.Status)
	require.NotNil(t, got.FileSize)
	assert.Equal(t, int64(4096), *got.FileSize)

	sealed, err := f.streams.GetByID(ctx, stream.ID)
	require.NoError(t, err)
	assert.False(t, sealed.IsLive(), "automatic completion seals the stream")

	require.Equal(t, 1, f.tasks.postProcessingCount())
	f.tasks.mu.Lock()
	req := f.tasks.ppReqs[0]
	f.tasks.mu.Unlock()
	assert.Equal(t, rec.ID, req.RecordingID)
	assert.Equal(t, streamer.Name(), req.StreamerName)
	assert.Equal(t, rec.Path, req.TSPath)
	assert.Empty(t, req.SegmentsDir)

	assert.True(t, f.events.has(EventRecordingCompleted))
}

func TestCaptureExit_SegmentedOutput(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, stream := f.liveStream(t, "alice", "One")

	rec, err := f.rec.StartRecording(ctx, stream.ID, false)
	require.NoError(t, err)

	segDir := strings.TrimSuffix(rec.Path, ".ts") + "_segments"
	require.NoError(t, os.MkdirAll(segDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(segDir, "rec_part000.ts"), make([]byte, 1024), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(segDir, "rec_part001.ts"), make([]byte, 1024), 0o640))

	f.rec.OnCaptureExit(supervisor.ProcessIDForStream(stream.ID), nil)

	require.Equal(t, 1, f.tasks.postProcessingCount())
	f.tasks.mu.Lock()
	req := f.tasks.ppReqs[0]
	f.tasks.mu.Unlock()
	assert.Equal(t, segDir, req.SegmentsDir)

	got, _ := f.recs.GetByID(ctx, rec.ID)
	require.NotNil(t, got.FileSize)
	assert.Equal(t, int64(2048), *got.FileSize)
}

func TestCaptureExit_MissingOutputFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, stream := f.liveStream(t, "alice", "One")

	rec, err := f.rec.StartRecording(ctx, stream.ID, false)
	require.NoError(t, err)

	f.rec.OnCaptureExit(supervisor.ProcessIDForStream(stream.ID), nil)

	got, err := f.recs.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusFailed, got.Status)
	assert.Equal(t, "output_missing", got.FailureReason)
	assert.Zero(t, f.tasks.postProcessingCount())
	assert.True(t, f.events.has(EventRecordingFailed))
}

func TestCaptureProgressPercent(t *testing.T) {
	assert.Equal(t, 1.0, captureProgressPercent(0))
	assert.Equal(t, 1.0, captureProgressPercent(60))
	assert.InDelta(t, 25.0, captureProgressPercent(3600), 0.001)
	assert.Equal(t, 99.0, captureProgressPercent(24*3600), "a marathon stream still reads as running")
}

func TestMonitor_ReportsCaptureDurationAsProgress(t *testing.T) {
	f := setup(t)
	_, stream := f.liveStream(t, "alice", "One")
	f.sup.setDuration(3600)

	_, err := f.rec.StartRecording(context.Background(), stream.ID, false)
	require.NoError(t, err)

	f.tasks.mu.Lock()
	require.Len(t, f.tasks.external, 1)
	taskID := f.tasks.external[0].ID
	f.tasks.mu.Unlock()

	// The registration placeholder gives way to the duration ramp on the
	// first monitor tick.
	require.Eventually(t, func() bool {
		return f.tasks.lastProgress(taskID) == captureProgressPercent(3600)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Less(t, f.tasks.lastProgress(taskID), 100.0)
}

func TestGracefulShutdown(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, stream := f.liveStream(t, "alice", "One")

	_, err := f.rec.StartRecording(ctx, stream.ID, false)
	require.NoError(t, err)

	f.rec.GracefulShutdown(ctx)
	assert.NotEmpty(t, f.sup.terminated)

	_, other := f.liveStream(t, "bob", "Two")
	_, err = f.rec.StartRecording(ctx, other.ID, false)
	assert.ErrorIs(t, err, models.ErrShuttingDown)
}

func TestResolveStreamerName(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	streamer, _ := f.liveStream(t, "alice", "One")

	assert.Equal(t, "Alice", f.rec.ResolveStreamerName(ctx, streamer.ID, ""))

	// Unknown id falls back to the path tree.
	unknown := models.NewULID()
	path, err := f.vault.Resolve("Bob/Season 2026-08/ep.ts")
	require.NoError(t, err)
	assert.Equal(t, "Bob", f.rec.ResolveStreamerName(ctx, unknown, path))

	// No usable path either: synthetic name.
	name := f.rec.ResolveStreamerName(ctx, unknown, "/outside/root.ts")
	assert.Equal(t, "streamer_"+unknown.String(), name)
}

func TestPreferredVideoPath(t *testing.T) {
	f := setup(t)
	base, err := f.vault.Resolve("Alice/Season 2026-08/ep")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(base), 0o750))

	_, ok := f.rec.PreferredVideoPath(base + ".ts")
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(base+".ts", []byte("x"), 0o640))
	got, ok := f.rec.PreferredVideoPath(base + ".ts")
	require.True(t, ok)
	assert.Equal(t, base+".ts", got)

	require.NoError(t, os.WriteFile(base+".mp4", []byte("x"), 0o640))
	got, ok = f.rec.PreferredVideoPath(base + ".ts")
	require.True(t, ok)
	assert.Equal(t, base+".mp4", got, "mp4 wins over ts")
}

func writeOutput(t *testing.T, f *fixture, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o640))
}
