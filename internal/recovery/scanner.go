// Package recovery reconciles durable state with reality after crashes and
// restarts: a one-shot startup scan that resumes interrupted recordings and
// claims orphaned capture output, and a periodic reaper that clears tasks
// the normal completion paths missed.
package recovery

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/observability"
	"github.com/streamvault/streamvault/internal/queue"
	"github.com/streamvault/streamvault/internal/repository"
	"github.com/streamvault/streamvault/internal/storage"
)

// TaskQueue is the slice of the queue manager the scanner needs.
type TaskQueue interface {
	EnqueueRecordingPostProcessing(ctx context.Context, req queue.PostProcessingRequest) (map[string]string, error)
}

// ScanReport summarizes one startup scan.
type ScanReport struct {
	// CapturesReconciled counts ActiveRecordingState rows resolved.
	CapturesReconciled int
	// Resumed counts recordings whose post-processing was re-enqueued.
	Resumed int
	// Unclaimed counts on-disk TS files no recording row accounts for.
	Unclaimed int
}

// Scanner performs the one-shot startup reconciliation. It never runs
// continuously; drift after startup is the reaper's job.
type Scanner struct {
	vault *storage.Vault
	queue TaskQueue
	log   *slog.Logger

	recs      repository.RecordingRepository
	streams   repository.StreamRepository
	streamers repository.StreamerRepository
	states    repository.ProcessingStateRepository
	active    repository.ActiveRecordingRepository

	// pidAlive is swappable for tests.
	pidAlive func(pid int) bool
}

// NewScanner creates a Scanner.
func NewScanner(
	vault *storage.Vault,
	q TaskQueue,
	recs repository.RecordingRepository,
	streams repository.StreamRepository,
	streamers repository.StreamerRepository,
	states repository.ProcessingStateRepository,
	active repository.ActiveRecordingRepository,
	log *slog.Logger,
) *Scanner {
	return &Scanner{
		vault:     vault,
		queue:     q,
		recs:      recs,
		streams:   streams,
		streamers: streamers,
		states:    states,
		active:    active,
		log:       observability.WithComponent(log, "recovery"),
		pidAlive: func(pid int) bool {
			ok, err := process.PidExists(int32(pid))
			return err == nil && ok
		},
	}
}

// ScanOnStartup reconciles capture registry rows left by a previous process,
// re-enqueues post-processing for every recording with incomplete durable
// state, and sweeps the vault for capture output nothing claims.
func (s *Scanner) ScanOnStartup(ctx context.Context) (ScanReport, error) {
	var report ScanReport
	// Recording ids already re-enqueued this scan.
	seen := make(map[models.ULID]bool)

	n, err := s.reconcileCaptures(ctx, seen)
	if err != nil {
		return report, err
	}
	report.CapturesReconciled = n

	resumed, err := s.resumeIncomplete(ctx, seen)
	if err != nil {
		return report, err
	}

	fsResumed, unclaimed, err := s.sweepVault(ctx, seen)
	if err != nil {
		return report, err
	}
	report.Resumed = resumed + fsResumed
	report.Unclaimed = unclaimed

	s.log.Info("startup scan finished",
		"captures_reconciled", report.CapturesReconciled,
		"resumed", report.Resumed,
		"unclaimed", report.Unclaimed)
	return report, nil
}

// reconcileCaptures resolves ActiveRecordingState rows that survived a
// restart. A row whose process is still alive is left for the reaper; a dead
// one is finalized from its on-disk output.
func (s *Scanner) reconcileCaptures(ctx context.Context, seen map[models.ULID]bool) (int, error) {
	rows, err := s.active.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	for _, row := range rows {
		if s.pidAlive(row.PID) {
			s.log.Warn("capture process survived restart, leaving for reaper",
				"process_id", row.ProcessID, "pid", row.PID)
			continue
		}

		rec, err := s.recs.GetByID(ctx, row.RecordingID)
		if err != nil {
			return n, err
		}
		if rec == nil {
			s.log.Warn("capture registry row without recording, dropping",
				"stream_id", row.StreamID)
			if err := s.active.Delete(ctx, row.ID); err != nil {
				return n, err
			}
			continue
		}

		if stream, err := s.streams.GetByID(ctx, rec.StreamID); err == nil && stream != nil && stream.IsLive() {
			if err := s.streams.Seal(ctx, stream.ID, models.Now()); err != nil {
				s.log.Error("sealing interrupted stream", "stream_id", stream.ID, "error", err)
			}
		}

		if outputUsable(row.OutputPath) {
			if err := s.recs.UpdateStatus(ctx, rec.ID, models.RecordingStatusProcessing); err != nil {
				return n, err
			}
			if err := s.enqueueResume(ctx, rec, seen); err != nil {
				return n, err
			}
		} else {
			rec.MarkFailed("output_missing", "capture interrupted and no output found")
			if err := s.recs.Update(ctx, rec); err != nil {
				return n, err
			}
		}

		if err := s.active.Delete(ctx, row.ID); err != nil {
			return n, err
		}
		n++
		s.log.Info("reconciled interrupted capture",
			"recording_id", rec.ID, "streamer", row.StreamerName)
	}
	return n, nil
}

// resumeIncomplete re-enqueues every recording with incomplete durable step
// state. The idempotency gate skips steps already completed, so the whole
// chain is enqueued and execution resumes at the earliest open step.
func (s *Scanner) resumeIncomplete(ctx context.Context, seen map[models.ULID]bool) (int, error) {
	states, err := s.states.GetIncomplete(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	for _, state := range states {
		if seen[state.RecordingID] {
			continue
		}
		rec, err := s.recs.GetByID(ctx, state.RecordingID)
		if err != nil {
			return n, err
		}
		if rec == nil {
			s.log.Warn("processing state without recording, dropping",
				"recording_id", state.RecordingID)
			if err := s.states.Delete(ctx, state.RecordingID); err != nil {
				return n, err
			}
			continue
		}
		if rec.Status == models.RecordingStatusRecording || rec.Status == models.RecordingStatusStopped {
			continue
		}

		s.log.Info("resuming interrupted post-processing",
			"recording_id", rec.ID, "next_step", state.EarliestIncomplete())
		if err := s.enqueueResume(ctx, rec, seen); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// sweepVault walks the recordings root for TS files and segment dirs,
// re-enqueuing any claimed by a non-terminal recording and reporting the
// rest. Output an active capture is still writing is never touched here;
// captures were reconciled first.
func (s *Scanner) sweepVault(ctx context.Context, seen map[models.ULID]bool) (resumed, unclaimed int, err error) {
	walkErr := filepath.WalkDir(s.vault.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		var tsPath string
		switch {
		case d.IsDir() && strings.HasSuffix(d.Name(), "_segments"):
			tsPath = strings.TrimSuffix(path, "_segments") + ".ts"
		case !d.IsDir() && filepath.Ext(d.Name()) == ".ts" && !strings.Contains(d.Name(), "_part"):
			tsPath = path
		default:
			return nil
		}

		// A finished MP4 next to the TS means cleanup simply never ran;
		// the resumed chain handles that too.
		rec, rerr := s.recs.GetByPath(ctx, tsPath)
		if rerr != nil {
			return rerr
		}
		if rec == nil {
			mp4 := strings.TrimSuffix(tsPath, ".ts") + ".mp4"
			if rec, rerr = s.recs.GetByPath(ctx, mp4); rerr != nil {
				return rerr
			}
		}
		if rec == nil {
			s.log.Warn("capture output claimed by no recording", "path", tsPath)
			unclaimed++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		// A recording still in "recording" state here belongs to a live
		// capture the reconcile pass chose to leave alone.
		if seen[rec.ID] || rec.Status == models.RecordingStatusRecording ||
			rec.Status == models.RecordingStatusStopped || rec.Status == models.RecordingStatusFailed {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		state, serr := s.states.GetByRecordingID(ctx, rec.ID)
		if serr != nil {
			return serr
		}
		if rec.Status == models.RecordingStatusCompleted && state != nil && state.AllCompleted() {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		s.log.Info("claiming orphaned capture output", "path", tsPath, "recording_id", rec.ID)
		if err := s.enqueueResume(ctx, rec, seen); err != nil {
			return err
		}
		resumed++
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	return resumed, unclaimed, walkErr
}

// EnqueueForRecording re-enqueues the post-processing chain for one
// recording on demand, from the same request-building logic the startup
// scan uses. Completed steps are skipped by the durable gate.
func (s *Scanner) EnqueueForRecording(ctx context.Context, recordingID models.ULID) (map[string]string, error) {
	rec, err := s.recs.GetByID(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, models.ErrNotFound
	}
	req, err := s.buildRequest(ctx, rec)
	if err != nil {
		return nil, err
	}
	return s.queue.EnqueueRecordingPostProcessing(ctx, req)
}

// OrphanCheckHandler returns the queue handler for on-demand orphan
// recovery checks: a vault sweep claiming capture output whose recording
// has incomplete processing state.
func (s *Scanner) OrphanCheckHandler() queue.HandlerFunc {
	return func(ctx context.Context, task *queue.Task, progress func(float64)) error {
		seen := make(map[models.ULID]bool)
		resumed, unclaimed, err := s.sweepVault(ctx, seen)
		if err != nil {
			return err
		}
		progress(100)
		s.log.Info("orphan check finished", "resumed", resumed, "unclaimed", unclaimed)
		return nil
	}
}

// BuildRequest rebuilds the post-processing request for a recording, for
// callers enqueuing individual steps rather than the whole chain.
func (s *Scanner) BuildRequest(ctx context.Context, recordingID models.ULID) (queue.PostProcessingRequest, error) {
	rec, err := s.recs.GetByID(ctx, recordingID)
	if err != nil {
		return queue.PostProcessingRequest{}, err
	}
	if rec == nil {
		return queue.PostProcessingRequest{}, models.ErrNotFound
	}
	return s.buildRequest(ctx, rec)
}

// enqueueResume rebuilds the post-processing request for a recording and
// hands it to the queue manager.
func (s *Scanner) enqueueResume(ctx context.Context, rec *models.Recording, seen map[models.ULID]bool) error {
	if seen[rec.ID] {
		return nil
	}
	seen[rec.ID] = true

	req, err := s.buildRequest(ctx, rec)
	if err != nil {
		return err
	}
	_, err = s.queue.EnqueueRecordingPostProcessing(ctx, req)
	return err
}

func (s *Scanner) buildRequest(ctx context.Context, rec *models.Recording) (queue.PostProcessingRequest, error) {
	tsPath := rec.Path
	if ext := filepath.Ext(tsPath); ext != ".ts" {
		tsPath = strings.TrimSuffix(tsPath, ext) + ".ts"
	}

	req := queue.PostProcessingRequest{
		RecordingID: rec.ID,
		StreamID:    rec.StreamID,
		TSPath:      tsPath,
	}
	segDir := strings.TrimSuffix(tsPath, ".ts") + "_segments"
	if info, err := os.Stat(segDir); err == nil && info.IsDir() {
		req.SegmentsDir = segDir
	}

	stream, err := s.streams.GetByID(ctx, rec.StreamID)
	if err != nil {
		return queue.PostProcessingRequest{}, err
	}
	if stream != nil {
		req.StreamerID = stream.StreamerID
		if streamer, err := s.streamers.GetByID(ctx, stream.StreamerID); err == nil && streamer != nil {
			req.StreamerName = streamer.Name()
		}
	}
	if req.StreamerName == "" {
		req.StreamerName = streamerNameFromPath(s.vault.Root(), tsPath)
	}
	return req, nil
}

// streamerNameFromPath derives the streamer name from the first path
// component under the recordings root.
func streamerNameFromPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// outputUsable reports whether a capture left either a non-empty TS or a
// segment directory with data behind.
func outputUsable(tsPath string) bool {
	if info, err := os.Stat(tsPath); err == nil && info.Size() > 0 {
		return true
	}
	segDir := strings.TrimSuffix(tsPath, filepath.Ext(tsPath)) + "_segments"
	entries, err := os.ReadDir(segDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if info, err := e.Info(); err == nil && info.Size() > 0 {
			return true
		}
	}
	return false
}
