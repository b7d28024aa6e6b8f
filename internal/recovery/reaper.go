package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/observability"
	"github.com/streamvault/streamvault/internal/queue"
	"github.com/streamvault/streamvault/internal/repository"
)

// TaskSource is the slice of the queue manager the reaper needs.
type TaskSource interface {
	Tracker() *queue.Tracker
	CompleteExternalTask(id string, status queue.TaskStatus, errMsg string)
	CancelTask(id string) bool
}

// Reaper periodically clears tasks whose normal completion path was missed:
// captures stuck at 100%, captures whose process died without an exit event,
// and orphan checks that outlived their budget. It only ever touches
// external and maintenance tasks; pool-owned step tasks retry on their own.
type Reaper struct {
	cfg    config.RecoveryConfig
	queue  TaskSource
	active repository.ActiveRecordingRepository
	log    *slog.Logger

	// pidAlive is swappable for tests.
	pidAlive func(pid int) bool
}

// NewReaper creates a Reaper, applying defaults for unset config.
func NewReaper(cfg config.RecoveryConfig, q TaskSource, active repository.ActiveRecordingRepository, log *slog.Logger) *Reaper {
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = 30 * time.Second
	}
	if cfg.StuckTaskAge <= 0 {
		cfg.StuckTaskAge = 10 * time.Minute
	}
	if cfg.HeartbeatSilence <= 0 {
		cfg.HeartbeatSilence = 5 * time.Minute
	}
	if cfg.CaptureCompleteAge <= 0 {
		cfg.CaptureCompleteAge = 5 * time.Minute
	}
	if cfg.OrphanCheckMaxAge <= 0 {
		cfg.OrphanCheckMaxAge = 2 * time.Minute
	}
	return &Reaper{
		cfg:    cfg,
		queue:  q,
		active: active,
		log:    observability.WithComponent(log, "reaper"),
		pidAlive: func(pid int) bool {
			ok, err := process.PidExists(int32(pid))
			return err == nil && ok
		},
	}
}

// Run sweeps on the configured interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one reap pass. Exported so startup code and tests can force a
// pass outside the ticker.
func (r *Reaper) Sweep(ctx context.Context) {
	now := time.Now()
	for _, t := range r.queue.Tracker().Active() {
		switch {
		case r.isFinishedCapture(t, now):
			r.log.Warn("capture sat at 100%, completion event missed", "task_id", t.ID)
			r.queue.CompleteExternalTask(t.ID, queue.TaskCompleted, "")

		case r.isRunawayOrphanCheck(t, now):
			r.log.Warn("orphan check exceeded its budget, cancelling", "task_id", t.ID)
			r.queue.CancelTask(t.ID)

		case r.isStuckCapture(ctx, t, now):
			// Dead process means the output is suspect; a live one with a
			// silent heartbeat just lost its monitor.
			if r.captureProcessAlive(ctx, t) {
				r.queue.CompleteExternalTask(t.ID, queue.TaskCompleted, "")
			} else {
				r.queue.CompleteExternalTask(t.ID, queue.TaskFailed, "capture process died without an exit event")
			}
		}
	}
}

func taskAge(t queue.Task, now time.Time) time.Duration {
	if t.StartedAt != nil {
		return now.Sub(*t.StartedAt)
	}
	return now.Sub(t.CreatedAt)
}

func (r *Reaper) isFinishedCapture(t queue.Task, now time.Time) bool {
	return t.External &&
		t.Type == queue.TaskTypeCapture &&
		t.Status == queue.TaskRunning &&
		t.Progress >= 100 &&
		taskAge(t, now) > r.cfg.CaptureCompleteAge
}

func (r *Reaper) isRunawayOrphanCheck(t queue.Task, now time.Time) bool {
	return t.Type == queue.TaskTypeOrphanCheck &&
		!t.Status.IsTerminal() &&
		now.Sub(t.CreatedAt) > r.cfg.OrphanCheckMaxAge
}

// isStuckCapture reports whether an external capture task has been running
// too long with a silent heartbeat.
func (r *Reaper) isStuckCapture(ctx context.Context, t queue.Task, now time.Time) bool {
	if !t.External || t.Type != queue.TaskTypeCapture {
		return false
	}
	if t.Status != queue.TaskRunning && t.Status != queue.TaskPending {
		return false
	}
	if taskAge(t, now) <= r.cfg.StuckTaskAge {
		return false
	}

	payload, ok := t.Payload.(queue.CapturePayload)
	if !ok {
		return true
	}
	row, err := r.active.GetByStreamID(ctx, payload.StreamID)
	if err != nil || row == nil {
		// No registry row left: nothing heartbeats this task anymore.
		return true
	}
	return row.HeartbeatStale(r.cfg.HeartbeatSilence)
}

// captureProcessAlive checks the capture child through its registry row.
func (r *Reaper) captureProcessAlive(ctx context.Context, t queue.Task) bool {
	payload, ok := t.Payload.(queue.CapturePayload)
	if !ok {
		return false
	}
	row, err := r.active.GetByStreamID(ctx, payload.StreamID)
	if err != nil || row == nil {
		return false
	}
	return r.pidAlive(row.PID)
}
