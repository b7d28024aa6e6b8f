package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/streamvault/streamvault/internal/observability"
)

// EventKind distinguishes tracker notifications.
type EventKind string

const (
	// EventStatus is emitted on every status change.
	EventStatus EventKind = "status"
	// EventProgress is emitted on throttled progress updates.
	EventProgress EventKind = "progress"
)

// progressNotifyDelta is the minimum progress movement, in percentage
// points, between two progress notifications for the same task.
const progressNotifyDelta = 5.0

// Callback receives tracker notifications. Callbacks run on the caller's
// goroutine and must not block.
type Callback func(task Task, kind EventKind)

// Stats is a point-in-time census of tracked tasks.
type Stats struct {
	Active     int            `json:"active"`
	External   int            `json:"external"`
	Completed  int            `json:"completed"`
	ByStatus   map[string]int `json:"by_status"`
	QueueSizes map[string]int `json:"queue_sizes,omitempty"`
}

// Tracker keeps the in-memory state of all known tasks: active ones, external
// ones (captures, owned outside the worker pool) and recently finished ones.
// Finished tasks stay visible for a retention window so the API and UI can
// still show them, then a cleanup loop drops them.
type Tracker struct {
	retention time.Duration
	log       *slog.Logger
	metrics   *observability.Metrics

	mu           sync.Mutex
	active       map[string]*Task
	external     map[string]*Task
	completed    map[string]*Task
	lastNotified map[string]float64
	callbacks    []Callback
}

// NewTracker creates a Tracker. retention <= 0 falls back to 24h.
func NewTracker(retention time.Duration, log *slog.Logger, metrics *observability.Metrics) *Tracker {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Tracker{
		retention:    retention,
		log:          observability.WithComponent(log, "tracker"),
		metrics:      metrics,
		active:       make(map[string]*Task),
		external:     make(map[string]*Task),
		completed:    make(map[string]*Task),
		lastNotified: make(map[string]float64),
	}
}

// RegisterCallback adds a notification listener.
func (tr *Tracker) RegisterCallback(cb Callback) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.callbacks = append(tr.callbacks, cb)
}

// Add registers a task with the tracker and notifies listeners.
func (tr *Tracker) Add(t *Task) {
	tr.mu.Lock()
	if t.External {
		tr.external[t.ID] = t
	} else {
		tr.active[t.ID] = t
	}
	snap := t.Clone()
	cbs := tr.callbacks
	tr.mu.Unlock()

	tr.notify(cbs, snap, EventStatus)
}

// Get returns a copy of a tracked task, searching active, external and
// completed sets in that order.
func (tr *Tracker) Get(id string) (Task, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if t, ok := tr.lookup(id); ok {
		return t.Clone(), true
	}
	return Task{}, false
}

func (tr *Tracker) lookup(id string) (*Task, bool) {
	if t, ok := tr.active[id]; ok {
		return t, true
	}
	if t, ok := tr.external[id]; ok {
		return t, true
	}
	if t, ok := tr.completed[id]; ok {
		return t, true
	}
	return nil, false
}

// UpdateStatus transitions a task and always notifies. Terminal statuses
// move the task to the completed set and are sticky: a handler that
// finishes after its task was cancelled cannot overwrite the cancel. A
// successful completion snaps progress to 100.
func (tr *Tracker) UpdateStatus(id string, status TaskStatus, errMsg string) bool {
	tr.mu.Lock()
	t, ok := tr.lookup(id)
	if !ok || t.Status.IsTerminal() {
		tr.mu.Unlock()
		return false
	}

	t.Status = status
	if errMsg != "" {
		t.ErrorMessage = errMsg
	}
	now := time.Now().UTC()
	switch {
	case status == TaskRunning && t.StartedAt == nil:
		t.StartedAt = &now
	case status.IsTerminal():
		t.CompletedAt = &now
		if status == TaskCompleted {
			t.Progress = 100
		}
		delete(tr.active, id)
		delete(tr.external, id)
		delete(tr.lastNotified, id)
		tr.completed[id] = t
	}

	snap := t.Clone()
	cbs := tr.callbacks
	tr.mu.Unlock()

	tr.notify(cbs, snap, EventStatus)
	return true
}

// UpdateProgress records task progress. A notification goes out only when
// the task moved at least progressNotifyDelta points since the last one, or
// reached 100. Progress on terminal tasks is ignored.
func (tr *Tracker) UpdateProgress(id string, progress float64) bool {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	tr.mu.Lock()
	t, ok := tr.lookup(id)
	if !ok || t.Status.IsTerminal() {
		tr.mu.Unlock()
		return ok
	}

	t.Progress = progress
	last, seen := tr.lastNotified[id]
	shouldNotify := progress >= 100 || !seen || progress-last >= progressNotifyDelta
	if !shouldNotify {
		tr.mu.Unlock()
		return true
	}
	tr.lastNotified[id] = progress

	snap := t.Clone()
	cbs := tr.callbacks
	tr.mu.Unlock()

	tr.notify(cbs, snap, EventProgress)
	return true
}

// Remove drops a task from all sets without notifying. The reaper uses it
// after it has emitted its own terminal status.
func (tr *Tracker) Remove(id string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.active, id)
	delete(tr.external, id)
	delete(tr.completed, id)
	delete(tr.lastNotified, id)
}

// Active returns copies of all non-terminal tasks, external ones included.
func (tr *Tracker) Active() []Task {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]Task, 0, len(tr.active)+len(tr.external))
	for _, t := range tr.active {
		out = append(out, t.Clone())
	}
	for _, t := range tr.external {
		out = append(out, t.Clone())
	}
	return out
}

// External returns copies of the external tasks only.
func (tr *Tracker) External() []Task {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]Task, 0, len(tr.external))
	for _, t := range tr.external {
		out = append(out, t.Clone())
	}
	return out
}

// Recent returns copies of the retained finished tasks.
func (tr *Tracker) Recent() []Task {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]Task, 0, len(tr.completed))
	for _, t := range tr.completed {
		out = append(out, t.Clone())
	}
	return out
}

// Stats returns a census of the tracked tasks and refreshes the task gauges.
func (tr *Tracker) Stats() Stats {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	st := Stats{
		Active:    len(tr.active),
		External:  len(tr.external),
		Completed: len(tr.completed),
		ByStatus:  make(map[string]int),
	}
	for _, set := range []map[string]*Task{tr.active, tr.external, tr.completed} {
		for _, t := range set {
			st.ByStatus[string(t.Status)]++
		}
	}

	if tr.metrics != nil {
		for status, n := range st.ByStatus {
			tr.metrics.TasksByStatus.WithLabelValues(status).Set(float64(n))
		}
	}
	return st
}

// StartCleanup runs the retention sweep until ctx is done.
func (tr *Tracker) StartCleanup(ctx context.Context) {
	interval := tr.retention / 10
	if interval > time.Hour {
		interval = time.Hour
	}
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tr.cleanup(time.Now().Add(-tr.retention))
		}
	}
}

func (tr *Tracker) cleanup(cutoff time.Time) {
	tr.mu.Lock()
	var removed int
	for id, t := range tr.completed {
		if t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(tr.completed, id)
			removed++
		}
	}
	tr.mu.Unlock()

	if removed > 0 {
		tr.log.Debug("expired finished tasks removed", "count", removed)
	}
}

func (tr *Tracker) notify(cbs []Callback, task Task, kind EventKind) {
	for _, cb := range cbs {
		cb(task, kind)
	}
}
