package queue

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/streamvault/streamvault/internal/observability"
)

// DAG tracks dependencies between tasks and promotes them to ready as their
// prerequisites complete. Failures and cancellations cascade to dependents.
type DAG struct {
	log *slog.Logger

	mu    sync.Mutex
	tasks map[string]*Task
	// dependents maps a task id to the ids waiting on it.
	dependents map[string][]string
	// dispatched ids were handed out by TakeReady and must not be handed
	// out again.
	dispatched map[string]bool
}

// NewDAG creates an empty DAG.
func NewDAG(log *slog.Logger) *DAG {
	return &DAG{
		log:        observability.WithComponent(log, "dag"),
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
		dispatched: make(map[string]bool),
	}
}

// Add registers a task. Dependencies on unknown tasks are rejected so a
// mistyped id cannot park a task forever.
func (d *DAG) Add(t *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tasks[t.ID]; exists {
		return fmt.Errorf("task %s already in graph", t.ID)
	}
	for _, dep := range t.Dependencies {
		if _, ok := d.tasks[dep]; !ok {
			return fmt.Errorf("task %s depends on unknown task %s", t.ID, dep)
		}
	}

	d.tasks[t.ID] = t
	for _, dep := range t.Dependencies {
		d.dependents[dep] = append(d.dependents[dep], t.ID)
	}
	d.promote(t)
	return nil
}

// promote flips a pending task to ready when every dependency completed.
// Caller holds the lock.
func (d *DAG) promote(t *Task) {
	if t.Status != TaskPending {
		return
	}
	for _, dep := range t.Dependencies {
		dt, ok := d.tasks[dep]
		if !ok {
			// Evicted dependencies finished with every dependent terminal;
			// only a retried task can still reference one.
			continue
		}
		if dt.Status != TaskCompleted {
			return
		}
	}
	t.Status = TaskReady
}

// Ready returns copies of the ready, undispatched tasks ordered by
// (priority asc, created_at asc).
func (d *DAG) Ready() []Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readyLocked(false)
}

// TakeReady returns the ready tasks in the same order as Ready and marks
// them dispatched, so a task is handed to the queues exactly once.
func (d *DAG) TakeReady() []Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readyLocked(true)
}

func (d *DAG) readyLocked(take bool) []Task {
	var out []Task
	for id, t := range d.tasks {
		if t.Status == TaskReady && !d.dispatched[id] {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if take {
		for _, t := range out {
			d.dispatched[t.ID] = true
		}
	}
	return out
}

// Undispatch returns a taken task to the ready pool, for example when the
// streamer cap refused to open a new queue for it.
func (d *DAG) Undispatch(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.dispatched, id)
}

// MarkRunning records that a worker picked up the task.
func (d *DAG) MarkRunning(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tasks[id]; ok && !t.Status.IsTerminal() {
		t.Status = TaskRunning
	}
}

// MarkCompleted finishes a task and promotes dependents whose prerequisites
// are now all met. Terminal tasks keep their status: a handler finishing
// after a cancel must not resurrect the task.
func (d *DAG) MarkCompleted(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tasks[id]
	if !ok || t.Status.IsTerminal() {
		return
	}
	t.Status = TaskCompleted

	for _, depID := range d.dependents[id] {
		if dt, ok := d.tasks[depID]; ok {
			d.promote(dt)
		}
	}
}

// MarkFailed fails a task and cascades: every transitive dependent fails
// with an error naming the dependency ids that broke it. Already-terminal
// tasks are left untouched.
func (d *DAG) MarkFailed(id string, errMsg string) []Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tasks[id]
	if !ok || t.Status.IsTerminal() {
		return nil
	}
	t.Status = TaskFailed
	t.ErrorMessage = errMsg
	return d.cascadeLocked(id, TaskFailed)
}

// Cancel cancels a task that has not finished and cascades cancellation to
// its dependents the same way a failure would.
func (d *DAG) Cancel(id string) []Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tasks[id]
	if !ok || t.Status.IsTerminal() {
		return nil
	}
	t.Status = TaskCancelled
	return d.cascadeLocked(id, TaskCancelled)
}

// cascadeLocked walks dependents breadth-first, terminating each
// non-terminal one with the root's terminal status (a cancelled root
// cancels its dependents, a failed root fails them) and a message listing
// the broken dependencies. Returns copies of the tasks it terminated so
// callers can notify the tracker.
func (d *DAG) cascadeLocked(rootID string, rootStatus TaskStatus) []Task {
	verb := "failed"
	if rootStatus == TaskCancelled {
		verb = "cancelled"
	}

	var terminated []Task
	queue := append([]string(nil), d.dependents[rootID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		t, ok := d.tasks[id]
		if !ok || t.Status.IsTerminal() {
			continue
		}

		var brokenDeps []string
		for _, dep := range t.Dependencies {
			if dt, ok := d.tasks[dep]; ok && (dt.Status == TaskFailed || dt.Status == TaskCancelled) {
				brokenDeps = append(brokenDeps, dep)
			}
		}
		t.Status = rootStatus
		t.ErrorMessage = fmt.Sprintf("Dependencies %s: [%s]", verb, strings.Join(brokenDeps, ", "))
		terminated = append(terminated, t.Clone())
		queue = append(queue, d.dependents[id]...)
	}

	if len(terminated) > 0 {
		d.log.Warn("dependency cascade terminated tasks",
			"root", rootID, "root_status", string(rootStatus), "count", len(terminated))
	}
	return terminated
}

// RetryFailed resets a failed task to pending (or ready, when dependencies
// are already met) and clears its dispatch mark.
func (d *DAG) RetryFailed(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tasks[id]
	if !ok || t.Status != TaskFailed {
		return false
	}
	t.Status = TaskPending
	t.ErrorMessage = ""
	t.RetryCount++
	delete(d.dispatched, id)
	d.promote(t)
	return true
}

// Evict drops a finished task from the graph once nothing can still read
// it: the task must be terminal and every dependent terminal too. Eviction
// walks back through the task's dependencies so a finished chain unwinds
// node by node as its tail terminates, keeping the graph bounded on a
// long-running server.
func (d *DAG) Evict(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictLocked(id)
}

func (d *DAG) evictLocked(id string) {
	t, ok := d.tasks[id]
	if !ok || !t.Status.IsTerminal() {
		return
	}
	for _, depID := range d.dependents[id] {
		if dt, ok := d.tasks[depID]; ok && !dt.Status.IsTerminal() {
			return
		}
	}
	delete(d.tasks, id)
	delete(d.dispatched, id)
	delete(d.dependents, id)
	for _, dep := range t.Dependencies {
		d.evictLocked(dep)
	}
}

// Size returns the number of tasks in the graph.
func (d *DAG) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}
