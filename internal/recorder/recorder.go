// Package recorder implements the per-stream recording lifecycle: start,
// monitor, heartbeat, stop, terminal transition and hand-off to the
// post-processing queue.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/observability"
	"github.com/streamvault/streamvault/internal/queue"
	"github.com/streamvault/streamvault/internal/repository"
	"github.com/streamvault/streamvault/internal/storage"
	"github.com/streamvault/streamvault/internal/supervisor"
)

// Stop reasons.
const (
	// StopReasonManual marks an operator-requested stop.
	StopReasonManual = "manual"
	// StopReasonAutomatic marks a stop caused by the stream ending.
	StopReasonAutomatic = "automatic"
)

// Recording event names broadcast to the fan-out.
const (
	EventRecordingStarted   = "recording.started"
	EventRecordingCompleted = "recording.completed"
	EventRecordingStopped   = "recording.stopped"
	EventRecordingFailed    = "recording.failed"
	EventRecordingProgress  = "recording.progress"
)

// EventSink receives recording lifecycle events. Implementations must not
// block.
type EventSink interface {
	RecordingEvent(event string, payload any)
}

// TaskQueue is the slice of the queue manager the recorder uses.
type TaskQueue interface {
	EnqueueRecordingPostProcessing(ctx context.Context, req queue.PostProcessingRequest) (map[string]string, error)
	RegisterExternalTask(t *queue.Task)
	UpdateExternalProgress(id string, progress float64)
	CompleteExternalTask(id string, status queue.TaskStatus, errMsg string)
}

// CaptureSupervisor is the slice of the process supervisor the recorder uses.
type CaptureSupervisor interface {
	StartCapture(ctx context.Context, req supervisor.CaptureRequest) (*supervisor.Handle, error)
	Terminate(processID string) bool
	IsActive(processID string) bool
	Progress(processID string) (supervisor.CaptureProgress, bool)
	GracefulShutdown(ctx context.Context)
}

// capturePlaceholderProgress is reported for captures while the child's
// output has not parsed yet; once the parser has a duration the external
// task gets the ramped percent from captureProgressPercent instead.
const capturePlaceholderProgress = 50.0

// captureNominalDuration is the stream length that maps to the top of the
// running-capture progress ramp.
const captureNominalDuration = 4 * time.Hour

// captureProgressPercent maps captured duration onto a percent that stays
// strictly below 100 while the child runs; only completion reports 100,
// which the reaper relies on to tell a parked capture from a live one.
func captureProgressPercent(durationSeconds float64) float64 {
	pct := durationSeconds / captureNominalDuration.Seconds() * 100
	if pct < 1 {
		pct = 1
	}
	if pct > 99 {
		pct = 99
	}
	return pct
}

// monitorState is the recorder's in-memory bookkeeping for one capture.
type monitorState struct {
	cancel        context.CancelFunc
	lastHeartbeat time.Time
}

// Recorder is the per-stream recording state machine.
type Recorder struct {
	cfg   config.RecorderConfig
	log   *slog.Logger
	vault *storage.Vault

	streamers repository.StreamerRepository
	streams   repository.StreamRepository
	recs      repository.RecordingRepository
	active    repository.ActiveRecordingRepository
	settings  repository.SettingsRepository

	sup     CaptureSupervisor
	tasks   TaskQueue
	planner *PathPlanner
	sink    EventSink
	metrics *observability.Metrics

	mu           sync.Mutex
	monitors     map[models.ULID]*monitorState
	taskIDs      map[models.ULID]string
	finalizing   map[models.ULID]struct{}
	shuttingDown bool
}

// New creates a Recorder. sink and metrics may be nil.
func New(
	cfg config.RecorderConfig,
	vault *storage.Vault,
	streamers repository.StreamerRepository,
	streams repository.StreamRepository,
	recs repository.RecordingRepository,
	active repository.ActiveRecordingRepository,
	settings repository.SettingsRepository,
	sup CaptureSupervisor,
	tasks TaskQueue,
	sink EventSink,
	metrics *observability.Metrics,
	log *slog.Logger,
) *Recorder {
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 10 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 60 * time.Second
	}
	if cfg.DefaultQuality == "" {
		cfg.DefaultQuality = "best"
	}
	return &Recorder{
		cfg:        cfg,
		log:        observability.WithComponent(log, "recorder"),
		vault:      vault,
		streamers:  streamers,
		streams:    streams,
		recs:       recs,
		active:     active,
		settings:   settings,
		sup:        sup,
		tasks:      tasks,
		planner:    NewPathPlanner(vault, streams),
		sink:       sink,
		metrics:    metrics,
		monitors:   make(map[models.ULID]*monitorState),
		taskIDs:    make(map[models.ULID]string),
		finalizing: make(map[models.ULID]struct{}),
	}
}

// OnCaptureExit is the supervisor exit callback. Wire it into the
// supervisor at construction time.
func (r *Recorder) OnCaptureExit(processID string, exitErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	state, err := r.active.GetByProcessID(ctx, processID)
	if err != nil || state == nil {
		// The stop path already cleaned up, or the row never existed.
		return
	}
	r.finishCapture(ctx, state, exitErr)
}

// StartRecording starts a capture for a live stream. The stream's own
// streamer id is authoritative; callers cannot override it. Capacity
// refusal happens before any Recording row is created.
func (r *Recorder) StartRecording(ctx context.Context, streamID models.ULID, forced bool) (*models.Recording, error) {
	r.mu.Lock()
	if r.shuttingDown {
		r.mu.Unlock()
		return nil, models.ErrShuttingDown
	}
	r.mu.Unlock()

	stream, err := r.streams.GetByID(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, fmt.Errorf("stream %s: %w", streamID, models.ErrNotFound)
	}
	if !stream.IsLive() {
		return nil, fmt.Errorf("stream %s already ended", streamID)
	}

	streamer, err := r.streamers.GetByID(ctx, stream.StreamerID)
	if err != nil {
		return nil, err
	}
	if streamer == nil {
		return nil, fmt.Errorf("streamer %s: %w", stream.StreamerID, models.ErrNotFound)
	}

	if existing, err := r.active.GetByStreamID(ctx, streamID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("stream %s: %w", streamID, models.ErrAlreadyRecording)
	}

	count, err := r.active.Count(ctx)
	if err != nil {
		return nil, err
	}
	if r.cfg.MaxConcurrentRecordings > 0 && count >= int64(r.cfg.MaxConcurrentRecordings) {
		return nil, fmt.Errorf("%d captures active: %w", count, models.ErrCapacity)
	}

	quality, codecs, err := r.captureSettings(ctx, streamer.ID, forced)
	if err != nil {
		return nil, err
	}

	plan, err := r.planner.Plan(ctx, stream, streamer)
	if err != nil {
		return nil, err
	}

	rec := &models.Recording{
		StreamID:  stream.ID,
		Path:      plan.AbsTSPath,
		Status:    models.RecordingStatusRecording,
		StartTime: models.Now(),
	}
	if err := r.recs.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating recording: %w", err)
	}

	proxyURL := ""
	if enabled, u, err := r.settings.GetProxy(ctx); err == nil && enabled {
		proxyURL = u
	}

	processID := supervisor.ProcessIDForStream(stream.ID)
	handle, err := r.sup.StartCapture(ctx, supervisor.CaptureRequest{
		StreamID:        stream.ID,
		ProcessID:       processID,
		StreamerName:    streamer.Name(),
		ChannelURL:      "https://twitch.tv/" + streamer.Username,
		OutputPath:      plan.AbsTSPath,
		Quality:         quality,
		CodecPreference: codecs,
		ProxyURL:        proxyURL,
	})
	if err != nil {
		rec.MarkFailed("capture_start", err.Error())
		if uerr := r.recs.Update(ctx, rec); uerr != nil {
			r.log.Error("marking recording failed", "recording_id", rec.ID, "error", uerr)
		}
		r.emit(EventRecordingFailed, rec)
		return nil, fmt.Errorf("starting capture: %w", err)
	}

	state := &models.ActiveRecordingState{
		StreamID:      stream.ID,
		RecordingID:   rec.ID,
		PID:           handle.PID,
		ProcessID:     processID,
		StreamerName:  streamer.Name(),
		StartedAt:     models.Now(),
		OutputPath:    plan.AbsTSPath,
		Forced:        forced,
		Quality:       quality,
		Status:        models.ActiveRecordingActive,
		LastHeartbeat: models.Now(),
	}
	if err := r.active.Create(ctx, state); err != nil {
		r.sup.Terminate(processID)
		rec.MarkFailed("registry_write", err.Error())
		if uerr := r.recs.Update(ctx, rec); uerr != nil {
			r.log.Error("marking recording failed", "recording_id", rec.ID, "error", uerr)
		}
		return nil, fmt.Errorf("registering active capture: %w", err)
	}

	task := queue.NewTask(queue.CapturePayload{
		RecordingID:  rec.ID,
		StreamID:     stream.ID,
		StreamerID:   streamer.ID,
		StreamerName: streamer.Name(),
		ProcessID:    processID,
		OutputPath:   plan.AbsTSPath,
	}, 0)
	r.tasks.RegisterExternalTask(task)
	r.tasks.UpdateExternalProgress(task.ID, capturePlaceholderProgress)

	r.startMonitor(stream.ID, state, task.ID)

	if r.metrics != nil {
		r.metrics.ActiveRecordings.Inc()
	}
	r.log.Info("recording started",
		"stream_id", stream.ID,
		"recording_id", rec.ID,
		"streamer", streamer.Name(),
		"episode", plan.EpisodeNumber,
		"path", plan.RelTSPath,
		"forced", forced)
	r.emit(EventRecordingStarted, rec)
	return rec, nil
}

// captureSettings resolves quality/codec preferences, applying per-streamer
// overrides. A disabled streamer refuses automatic starts; forced starts
// bypass the switch.
func (r *Recorder) captureSettings(ctx context.Context, streamerID models.ULID, forced bool) (quality, codecs string, err error) {
	quality = r.cfg.DefaultQuality
	codecs = r.cfg.CodecPreference

	s, err := r.settings.GetStreamerSettings(ctx, streamerID)
	if err != nil {
		return "", "", err
	}
	if s == nil {
		return quality, codecs, nil
	}
	if !s.Enabled && !forced {
		return "", "", fmt.Errorf("automatic recording disabled for streamer %s", streamerID)
	}
	if s.Quality != "" {
		quality = s.Quality
	}
	if s.CodecPreference != "" {
		codecs = s.CodecPreference
	}
	return quality, codecs, nil
}

// ForceStart starts a recording for a streamer regardless of the
// per-streamer enable switch, creating a stream row when the platform has
// not reported one.
func (r *Recorder) ForceStart(ctx context.Context, streamerID models.ULID) (*models.Recording, error) {
	streamer, err := r.streamers.GetByID(ctx, streamerID)
	if err != nil {
		return nil, err
	}
	if streamer == nil {
		return nil, fmt.Errorf("streamer %s: %w", streamerID, models.ErrNotFound)
	}

	stream, err := r.streams.GetLiveByStreamer(ctx, streamerID)
	if err != nil {
		return nil, err
	}
	if stream == nil {
		stream = &models.Stream{
			StreamerID:   streamer.ID,
			Title:        streamer.Name() + " live",
			CategoryName: streamer.CategoryName,
			StartedAt:    models.Now(),
		}
		if err := r.streams.Create(ctx, stream); err != nil {
			return nil, fmt.Errorf("creating stream for forced start: %w", err)
		}
	}
	return r.StartRecording(ctx, stream.ID, true)
}

// StopRecording terminates a capture. An automatic stop (stream ended)
// seals the stream and hands the recording to post-processing; a manual
// stop leaves the file as-is with status stopped.
func (r *Recorder) StopRecording(ctx context.Context, recordingID models.ULID, reason string) error {
	rec, err := r.recs.GetByID(ctx, recordingID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("recording %s: %w", recordingID, models.ErrNotFound)
	}
	if rec.Status.IsTerminal() {
		return nil
	}

	// The claim must be held before the capture is terminated: the child's
	// exit callback fires concurrently and must not finalize this recording
	// as a natural completion.
	if !r.claimFinalize(rec.ID) {
		return nil
	}
	defer r.releaseFinalize(rec.ID)

	// Re-read under the claim; the exit path may have finalized between the
	// first read and the claim.
	rec, err = r.recs.GetByID(ctx, recordingID)
	if err != nil {
		return err
	}
	if rec == nil || rec.Status.IsTerminal() {
		return nil
	}

	state, err := r.active.GetByStreamID(ctx, rec.StreamID)
	if err != nil {
		return err
	}
	if state == nil {
		// Capture already gone; just close the books.
		return r.finalize(ctx, rec, nil, reason, "")
	}

	r.stopMonitor(rec.StreamID)
	r.sup.Terminate(state.ProcessID)
	return r.finalize(ctx, rec, state, reason, "")
}

// finishCapture handles a capture child that exited on its own.
func (r *Recorder) finishCapture(ctx context.Context, state *models.ActiveRecordingState, exitErr error) {
	r.stopMonitor(state.StreamID)

	// A concurrent manual stop holds the claim and owns the terminal
	// transition; this exit is then part of that stop.
	if !r.claimFinalize(state.RecordingID) {
		return
	}
	defer r.releaseFinalize(state.RecordingID)

	rec, err := r.recs.GetByID(ctx, state.RecordingID)
	if err != nil || rec == nil {
		r.log.Error("capture exited for unknown recording",
			"recording_id", state.RecordingID, "error", err)
		return
	}
	if rec.Status.IsTerminal() {
		return
	}

	errMsg := ""
	if exitErr != nil {
		errMsg = exitErr.Error()
	}
	if err := r.finalize(ctx, rec, state, StopReasonAutomatic, errMsg); err != nil {
		r.log.Error("finalizing recording", "recording_id", rec.ID, "error", err)
	}
}

// finalize closes out a recording: verifies output, seals the stream on
// automatic stops, clears the active row, updates the external task and
// triggers post-processing when appropriate.
func (r *Recorder) finalize(ctx context.Context, rec *models.Recording, state *models.ActiveRecordingState, reason, captureErr string) error {
	now := models.Now()
	tsPath, segmentsDir, size := r.verifyOutput(rec.Path)

	taskID := r.takeTaskID(rec.StreamID)

	switch {
	case tsPath == "" && segmentsDir == "":
		msg := "capture produced no output"
		if captureErr != "" {
			msg = captureErr
		}
		rec.MarkFailed("output_missing", msg)
	case reason == StopReasonManual:
		rec.Status = models.RecordingStatusStopped
		rec.EndTime = &now
		rec.FileSize = &size
	default:
		rec.Status = models.RecordingStatusCompleted
		rec.EndTime = &now
		rec.FileSize = &size
	}
	dur := now.Sub(rec.StartTime).Seconds()
	rec.DurationSeconds = &dur

	if err := r.recs.Update(ctx, rec); err != nil {
		return fmt.Errorf("updating recording: %w", err)
	}

	if reason == StopReasonAutomatic {
		if err := r.streams.Seal(ctx, rec.StreamID, now); err != nil {
			r.log.Error("sealing stream", "stream_id", rec.StreamID, "error", err)
		}
	}

	if state != nil {
		if err := r.active.DeleteByStreamID(ctx, rec.StreamID); err != nil {
			r.log.Error("clearing active registry", "stream_id", rec.StreamID, "error", err)
		}
		if r.metrics != nil {
			r.metrics.ActiveRecordings.Dec()
		}
	}

	switch rec.Status {
	case models.RecordingStatusFailed:
		if taskID != "" {
			r.tasks.CompleteExternalTask(taskID, queue.TaskFailed, rec.ErrorMessage)
		}
		r.emit(EventRecordingFailed, rec)
		return nil
	case models.RecordingStatusStopped:
		if taskID != "" {
			r.tasks.CompleteExternalTask(taskID, queue.TaskCompleted, "")
		}
		r.emit(EventRecordingStopped, rec)
		return nil
	}

	if taskID != "" {
		r.tasks.CompleteExternalTask(taskID, queue.TaskCompleted, "")
	}
	r.emit(EventRecordingCompleted, rec)

	r.mu.Lock()
	skipQueue := r.shuttingDown
	r.mu.Unlock()
	if skipQueue {
		// Startup recovery resumes post-processing from the durable state.
		r.log.Info("shutdown in progress, deferring post-processing", "recording_id", rec.ID)
		return nil
	}
	return r.enqueuePostProcessing(ctx, rec, state, tsPath, segmentsDir)
}

// enqueuePostProcessing hands a completed recording to the queue.
func (r *Recorder) enqueuePostProcessing(ctx context.Context, rec *models.Recording, state *models.ActiveRecordingState, tsPath, segmentsDir string) error {
	stream, err := r.streams.GetByID(ctx, rec.StreamID)
	if err != nil || stream == nil {
		return fmt.Errorf("loading stream %s for post-processing: %w", rec.StreamID, err)
	}

	streamerName := ""
	if state != nil {
		streamerName = state.StreamerName
	}
	if streamerName == "" {
		streamerName = r.ResolveStreamerName(ctx, stream.StreamerID, rec.Path)
	}

	if err := r.recs.UpdateStatus(ctx, rec.ID, models.RecordingStatusProcessing); err != nil {
		r.log.Error("marking recording processing", "recording_id", rec.ID, "error", err)
	}

	_, err = r.tasks.EnqueueRecordingPostProcessing(ctx, queue.PostProcessingRequest{
		RecordingID:  rec.ID,
		StreamID:     stream.ID,
		StreamerID:   stream.StreamerID,
		StreamerName: streamerName,
		TSPath:       tsPath,
		SegmentsDir:  segmentsDir,
	})
	if err != nil {
		return fmt.Errorf("enqueueing post-processing: %w", err)
	}
	return nil
}

// verifyOutput checks what the capture left on disk: the TS itself, or a
// directory of segments next to it. Returns empty strings when nothing
// usable exists.
func (r *Recorder) verifyOutput(tsPath string) (ts, segmentsDir string, size int64) {
	rel, err := r.vault.Rel(tsPath)
	if err != nil {
		return "", "", 0
	}
	if ok, _ := r.vault.Exists(rel); ok {
		if n, err := r.vault.Size(rel); err == nil && n > 0 {
			return tsPath, "", n
		}
	}

	segRel := strings.TrimSuffix(rel, filepath.Ext(rel)) + "_segments"
	if entries, err := r.vault.List(segRel); err == nil && len(entries) > 0 {
		var total int64
		for _, e := range entries {
			if info, err := e.Info(); err == nil {
				total += info.Size()
			}
		}
		abs, err := r.vault.Resolve(segRel)
		if err == nil && total > 0 {
			return "", abs, total
		}
	}
	return "", "", 0
}

// ResolveStreamerName resolves the streamer name for a recording: DB first,
// then the path tree under the recordings root, then a synthetic fallback.
func (r *Recorder) ResolveStreamerName(ctx context.Context, streamerID models.ULID, path string) string {
	if streamer, err := r.streamers.GetByID(ctx, streamerID); err == nil && streamer != nil {
		return streamer.Name()
	}
	// Recordings live at <streamer>/Season YYYY-MM/<file>.
	if rel, err := r.vault.Rel(path); err == nil {
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) >= 3 {
			return parts[0]
		}
	}
	return "streamer_" + streamerID.String()
}

// PreferredVideoPath picks the playable file for a recording base path:
// the MP4 when present, else the TS.
func (r *Recorder) PreferredVideoPath(basePath string) (string, bool) {
	base := strings.TrimSuffix(basePath, filepath.Ext(basePath))
	for _, ext := range []string{".mp4", ".ts"} {
		rel, err := r.vault.Rel(base + ext)
		if err != nil {
			continue
		}
		if ok, _ := r.vault.Exists(rel); ok {
			return base + ext, true
		}
	}
	return "", false
}

// startMonitor spawns the per-capture watchdog.
func (r *Recorder) startMonitor(streamID models.ULID, state *models.ActiveRecordingState, taskID string) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.monitors[streamID] = &monitorState{
		cancel:        cancel,
		lastHeartbeat: time.Now(),
	}
	r.taskIDs[streamID] = taskID
	r.mu.Unlock()

	go r.monitor(ctx, streamID, state.ID, state.ProcessID, taskID)
}

// stopMonitor cancels the watchdog for a stream, if any.
func (r *Recorder) stopMonitor(streamID models.ULID) {
	r.mu.Lock()
	m, ok := r.monitors[streamID]
	if ok {
		delete(r.monitors, streamID)
	}
	r.mu.Unlock()
	if ok {
		m.cancel()
	}
}

// takeTaskID removes and returns the external task id for a stream.
func (r *Recorder) takeTaskID(streamID models.ULID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.taskIDs[streamID]
	delete(r.taskIDs, streamID)
	return id
}

// claimFinalize takes the exclusive right to finalize a recording. The stop
// path and the capture exit path race for it; the loser backs off and lets
// the winner's terminal status stand.
func (r *Recorder) claimFinalize(recordingID models.ULID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.finalizing[recordingID]; busy {
		return false
	}
	r.finalizing[recordingID] = struct{}{}
	return true
}

func (r *Recorder) releaseFinalize(recordingID models.ULID) {
	r.mu.Lock()
	delete(r.finalizing, recordingID)
	r.mu.Unlock()
}

// monitor polls the capture: liveness, progress events, durable heartbeats
// at most once per heartbeat interval. A dead child triggers completion.
func (r *Recorder) monitor(ctx context.Context, streamID, stateID models.ULID, processID, taskID string) {
	ticker := time.NewTicker(r.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !r.sup.IsActive(processID) {
			// Exit callback normally races ahead of us; this is the
			// belt-and-braces path for a missed callback.
			opCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			state, err := r.active.GetByProcessID(opCtx, processID)
			if err == nil && state != nil {
				r.finishCapture(opCtx, state, nil)
			}
			cancel()
			return
		}

		if p, ok := r.sup.Progress(processID); ok && p.DurationSeconds != nil {
			r.emit(EventRecordingProgress, map[string]any{
				"stream_id":        streamID,
				"process_id":       processID,
				"duration_seconds": *p.DurationSeconds,
				"bytes_written":    p.BytesWritten,
			})
			r.tasks.UpdateExternalProgress(taskID, captureProgressPercent(*p.DurationSeconds))
		}

		r.mu.Lock()
		m, ok := r.monitors[streamID]
		needHeartbeat := ok && time.Since(m.lastHeartbeat) >= r.cfg.HeartbeatInterval
		if needHeartbeat {
			m.lastHeartbeat = time.Now()
		}
		r.mu.Unlock()

		if needHeartbeat {
			opCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := r.active.Heartbeat(opCtx, stateID, time.Now().UTC()); err != nil {
				r.log.Warn("heartbeat write failed", "stream_id", streamID, "error", err)
			}
			cancel()
		}
	}
}

// GracefulShutdown refuses new recordings and terminates active captures.
// Post-processing for them is deferred to startup recovery.
func (r *Recorder) GracefulShutdown(ctx context.Context) {
	r.mu.Lock()
	r.shuttingDown = true
	monitors := make([]models.ULID, 0, len(r.monitors))
	for id := range r.monitors {
		monitors = append(monitors, id)
	}
	r.mu.Unlock()

	for _, id := range monitors {
		r.stopMonitor(id)
	}
	r.sup.GracefulShutdown(ctx)
	r.log.Info("recorder shut down", "captures_terminated", len(monitors))
}

func (r *Recorder) emit(event string, payload any) {
	if r.sink != nil {
		r.sink.RecordingEvent(event, payload)
	}
}
