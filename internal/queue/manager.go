package queue

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/observability"
	"github.com/streamvault/streamvault/internal/repository"
)

// dispatchInterval is how often ready tasks are routed to streamer queues.
const dispatchInterval = 100 * time.Millisecond

// pollTimeout bounds how long an idle worker sleeps before re-checking.
const pollTimeout = time.Second

// StatsBroadcast receives the periodic queue census.
type StatsBroadcast func(stats Stats)

// PostProcessingRequest describes a recording ready for the pipeline.
type PostProcessingRequest struct {
	RecordingID  models.ULID
	StreamID     models.ULID
	StreamerID   models.ULID
	StreamerName string
	TSPath       string
	// SegmentsDir enables the concatenation step.
	SegmentsDir string
	Priority    int
}

// Manager composes the tracker, pool and DAG, and adds per-streamer
// isolation: one priority queue per streamer name, each with its own small
// worker set, so one streamer's post-processing cannot starve the others.
type Manager struct {
	cfg     config.QueueConfig
	log     *slog.Logger
	metrics *observability.Metrics

	tracker *Tracker
	pool    *Pool
	dag     *DAG

	stateRepo repository.ProcessingStateRepository

	mu           sync.Mutex
	queues       map[string]*streamerQueue
	orphanChecks int
	onStats      StatsBroadcast

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Manager. Zero-valued config fields fall back to the
// documented defaults.
func NewManager(cfg config.QueueConfig, stateRepo repository.ProcessingStateRepository, log *slog.Logger, metrics *observability.Metrics) *Manager {
	if cfg.WorkersPerStreamer <= 0 {
		cfg.WorkersPerStreamer = 4
	}
	if cfg.MaxConcurrentStreamers <= 0 {
		cfg.MaxConcurrentStreamers = 15
	}
	if cfg.OrphanCheckLimit <= 0 {
		cfg.OrphanCheckLimit = 3
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 10 * time.Second
	}

	mlog := observability.WithComponent(log, "queue")
	tracker := NewTracker(cfg.CompletedRetention, log, metrics)
	return &Manager{
		cfg:       cfg,
		log:       mlog,
		metrics:   metrics,
		tracker:   tracker,
		pool:      NewPool(tracker, cfg.MaxRetries, log),
		dag:       NewDAG(log),
		stateRepo: stateRepo,
		queues:    make(map[string]*streamerQueue),
	}
}

// Tracker exposes the task tracker for read access and callbacks.
func (m *Manager) Tracker() *Tracker { return m.tracker }

// RegisterHandler installs a task-type handler.
func (m *Manager) RegisterHandler(taskType string, h HandlerFunc) {
	m.pool.Register(taskType, h)
}

// SetStatsBroadcast installs the stats listener. Call before Start.
func (m *Manager) SetStatsBroadcast(fn StatsBroadcast) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStats = fn
}

// Start launches the dispatcher, the stats loop and the tracker cleanup.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(3)
	go func() {
		defer m.wg.Done()
		m.dispatchLoop()
	}()
	go func() {
		defer m.wg.Done()
		m.statsLoop()
	}()
	go func() {
		defer m.wg.Done()
		m.tracker.StartCleanup(m.ctx)
	}()

	m.log.Info("queue manager started",
		"workers_per_streamer", m.cfg.WorkersPerStreamer,
		"max_streamers", m.cfg.MaxConcurrentStreamers)
}

// Shutdown stops dispatching and waits for the loops. Running handlers see
// their context cancelled.
func (m *Manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.log.Info("queue manager stopped")
}

// Enqueue adds a dependency-free task and returns its id. Orphan-check
// tasks are rate limited: when the in-flight cap is hit the sentinel id is
// returned and nothing is enqueued.
func (m *Manager) Enqueue(t *Task) (string, error) {
	if t.Type == TaskTypeOrphanCheck {
		m.mu.Lock()
		if m.orphanChecks >= m.cfg.OrphanCheckLimit {
			m.mu.Unlock()
			m.log.Debug("orphan check refused by in-flight cap")
			return OrphanCheckLimitID, nil
		}
		m.orphanChecks++
		m.mu.Unlock()
	}

	m.tracker.Add(t)
	if err := m.dag.Add(t); err != nil {
		m.tracker.UpdateStatus(t.ID, TaskFailed, err.Error())
		return "", err
	}
	m.dispatch()
	return t.ID, nil
}

// EnqueueRecordingPostProcessing builds the post-processing chain for a
// recording, registers it with the DAG and tracker, and persists the step
// -> task id map so a restart can re-attach. The chain is
//
//	[concat]? -> metadata -> chapters -> remux -> validation -> thumbnail -> cleanup
//
// with each step depending on its predecessor.
func (m *Manager) EnqueueRecordingPostProcessing(ctx context.Context, req PostProcessingRequest) (map[string]string, error) {
	steps := make([]string, 0, len(models.ProcessingSteps)+1)
	if req.SegmentsDir != "" {
		steps = append(steps, models.StepConcatenation)
	}
	steps = append(steps, models.ProcessingSteps...)

	taskIDs := make(map[string]string, len(steps))
	var tasks []*Task
	var prev string
	for _, step := range steps {
		payload := StepPayload{
			Step:         step,
			RecordingID:  req.RecordingID,
			StreamID:     req.StreamID,
			StreamerID:   req.StreamerID,
			StreamerName: req.StreamerName,
			TSPath:       req.TSPath,
			SegmentsDir:  req.SegmentsDir,
		}
		var deps []string
		if prev != "" {
			deps = append(deps, prev)
		}
		t := NewTask(payload, req.Priority, deps...)
		tasks = append(tasks, t)
		taskIDs[step] = t.ID
		prev = t.ID
	}

	if err := m.persistTaskIDs(ctx, req, taskIDs); err != nil {
		return nil, err
	}

	for _, t := range tasks {
		m.tracker.Add(t)
		if err := m.dag.Add(t); err != nil {
			// Adding in chain order cannot produce forward refs; treat this
			// as a programming error.
			return nil, fmt.Errorf("building post-processing chain: %w", err)
		}
	}
	m.dispatch()

	m.log.Info("post-processing enqueued",
		"recording_id", req.RecordingID,
		"streamer", req.StreamerName,
		"steps", len(tasks),
		"segmented", req.SegmentsDir != "")
	return taskIDs, nil
}

// persistTaskIDs stores the step -> task id map on the recording's durable
// processing state, creating the row when missing.
func (m *Manager) persistTaskIDs(ctx context.Context, req PostProcessingRequest, taskIDs map[string]string) error {
	state, err := m.stateRepo.GetByRecordingID(ctx, req.RecordingID)
	if err != nil {
		return fmt.Errorf("loading processing state: %w", err)
	}
	if state == nil {
		state = &models.RecordingProcessingState{
			RecordingID: req.RecordingID,
			StreamID:    req.StreamID,
			StreamerID:  req.StreamerID,
		}
		if err := state.SetTaskIDs(taskIDs); err != nil {
			return err
		}
		if err := m.stateRepo.Create(ctx, state); err != nil {
			return fmt.Errorf("creating processing state: %w", err)
		}
		return nil
	}

	if err := state.SetTaskIDs(taskIDs); err != nil {
		return err
	}
	if err := m.stateRepo.Update(ctx, state); err != nil {
		return fmt.Errorf("updating processing state: %w", err)
	}
	return nil
}

// RegisterExternalTask makes a task owned outside the pool (a capture)
// visible to the tracker and the fan-out.
func (m *Manager) RegisterExternalTask(t *Task) {
	t.External = true
	m.tracker.Add(t)
	m.tracker.UpdateStatus(t.ID, TaskRunning, "")
}

// UpdateExternalProgress reports progress for an external task.
func (m *Manager) UpdateExternalProgress(id string, progress float64) {
	m.tracker.UpdateProgress(id, progress)
}

// CompleteExternalTask finishes an external task.
func (m *Manager) CompleteExternalTask(id string, status TaskStatus, errMsg string) {
	m.tracker.UpdateStatus(id, status, errMsg)
}

// CancelTask cancels a task and everything depending on it.
func (m *Manager) CancelTask(id string) bool {
	terminated := m.dag.Cancel(id)
	ok := m.tracker.UpdateStatus(id, TaskCancelled, "")
	for _, dep := range terminated {
		m.tracker.UpdateStatus(dep.ID, dep.Status, dep.ErrorMessage)
	}
	for _, dep := range terminated {
		m.dag.Evict(dep.ID)
	}
	m.dag.Evict(id)
	m.finishBookkeeping(id)
	return ok
}

// GetTask returns a copy of a tracked task.
func (m *Manager) GetTask(id string) (Task, bool) {
	return m.tracker.Get(id)
}

// Stats returns the current census including per-streamer queue depths.
func (m *Manager) Stats() Stats {
	st := m.tracker.Stats()
	st.QueueSizes = make(map[string]int)

	m.mu.Lock()
	for name, q := range m.queues {
		st.QueueSizes[name] = q.len()
	}
	m.mu.Unlock()

	if m.metrics != nil {
		for name, n := range st.QueueSizes {
			m.metrics.QueueDepth.WithLabelValues(name).Set(float64(n))
		}
	}
	return st
}

// dispatchLoop promotes ready tasks into streamer queues.
func (m *Manager) dispatchLoop() {
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.dispatch()
		}
	}
}

// dispatch routes every ready task to its streamer queue. Tasks refused by
// the streamer cap return to the ready pool for the next tick.
func (m *Manager) dispatch() {
	for _, t := range m.dag.TakeReady() {
		if !m.route(t) {
			m.dag.Undispatch(t.ID)
		}
	}
}

// route pushes a task onto its streamer queue, creating the queue and its
// workers on first use. Returns false when the global streamer cap refuses
// a new queue.
func (m *Manager) route(t Task) bool {
	key := t.StreamerName
	if key == "" {
		key = "_system"
	}

	m.mu.Lock()
	q, ok := m.queues[key]
	if !ok {
		if len(m.queues) >= m.cfg.MaxConcurrentStreamers {
			m.mu.Unlock()
			m.log.Warn("streamer cap reached, task parked", "streamer", key, "task_id", t.ID)
			return false
		}
		q = newStreamerQueue(key)
		m.queues[key] = q
		for i := 0; i < m.cfg.WorkersPerStreamer; i++ {
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				m.worker(q)
			}()
		}
		m.log.Debug("streamer queue created", "streamer", key, "workers", m.cfg.WorkersPerStreamer)
	}
	m.mu.Unlock()

	q.push(t)
	return true
}

// worker drains one streamer queue until shutdown.
func (m *Manager) worker(q *streamerQueue) {
	for {
		t, ok := q.pop(m.ctx)
		if !ok {
			return
		}
		m.runTask(t)
	}
}

// runTask executes one task end to end: idempotency gate, DAG transitions,
// pool execution and completion bookkeeping.
func (m *Manager) runTask(t Task) {
	if skip, err := m.stepAlreadyCompleted(&t); err != nil {
		m.log.Warn("idempotency gate read failed, running step anyway",
			"task_id", t.ID, "error", err)
	} else if skip {
		m.log.Info("step already completed, skipping", "task_id", t.ID, "task_type", t.Type)
		m.dag.MarkCompleted(t.ID)
		m.tracker.UpdateStatus(t.ID, TaskCompleted, "")
		m.dag.Evict(t.ID)
		m.finishBookkeeping(t.ID)
		m.dispatch()
		return
	}

	m.dag.MarkRunning(t.ID)
	m.pool.Execute(m.ctx, &t, func(task *Task, err error) {
		if err == nil {
			m.dag.MarkCompleted(task.ID)
			if m.metrics != nil {
				m.metrics.StepsCompleted.WithLabelValues(task.Type).Inc()
			}
		} else {
			terminated := m.dag.MarkFailed(task.ID, err.Error())
			for _, dep := range terminated {
				m.tracker.UpdateStatus(dep.ID, dep.Status, dep.ErrorMessage)
			}
			for _, dep := range terminated {
				m.dag.Evict(dep.ID)
			}
			if m.metrics != nil {
				m.metrics.StepsFailed.WithLabelValues(task.Type).Inc()
			}
		}
		m.dag.Evict(task.ID)
		m.finishBookkeeping(task.ID)
		m.dispatch()
	})
}

// stepAlreadyCompleted re-reads the durable step status for step tasks and
// reports whether the step can be skipped.
func (m *Manager) stepAlreadyCompleted(t *Task) (bool, error) {
	sp, ok := t.Payload.(StepPayload)
	if !ok || m.stateRepo == nil {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()
	state, err := m.stateRepo.GetByRecordingID(ctx, sp.RecordingID)
	if err != nil {
		return false, err
	}
	if state == nil {
		return false, nil
	}
	if sp.Step == models.StepConcatenation {
		// Concatenation has no durable column; its output (the canonical
		// TS) is checked by the handler itself.
		return false, nil
	}
	status, err := state.StepStatusFor(sp.Step)
	if err != nil {
		return false, err
	}
	return status == models.StepCompleted, nil
}

// finishBookkeeping releases rate-limit slots held by a finished task.
func (m *Manager) finishBookkeeping(id string) {
	t, ok := m.tracker.Get(id)
	if !ok || t.Type != TaskTypeOrphanCheck {
		return
	}
	m.mu.Lock()
	if m.orphanChecks > 0 {
		m.orphanChecks--
	}
	m.mu.Unlock()
}

// statsLoop periodically publishes the queue census.
func (m *Manager) statsLoop() {
	ticker := time.NewTicker(m.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			st := m.Stats()
			m.mu.Lock()
			fn := m.onStats
			m.mu.Unlock()
			if fn != nil {
				fn(st)
			}
		}
	}
}

// streamerQueue is one streamer's priority queue. Lower priority drains
// first; ties break on created-at.
type streamerQueue struct {
	name string

	mu     sync.Mutex
	tasks  taskHeap
	notify chan struct{}
}

func newStreamerQueue(name string) *streamerQueue {
	return &streamerQueue{name: name, notify: make(chan struct{}, 1)}
}

func (q *streamerQueue) push(t Task) {
	q.mu.Lock()
	heap.Push(&q.tasks, t)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks until a task is available or ctx is done, waking at least once
// per poll timeout.
func (q *streamerQueue) pop(ctx context.Context) (Task, bool) {
	timer := time.NewTimer(pollTimeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.tasks.Len() > 0 {
			t := heap.Pop(&q.tasks).(Task)
			q.mu.Unlock()
			return t, true
		}
		q.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(pollTimeout)

		select {
		case <-ctx.Done():
			return Task{}, false
		case <-q.notify:
		case <-timer.C:
		}
	}
}

func (q *streamerQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

// taskHeap orders tasks by (priority asc, created_at asc).
type taskHeap []Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].CreatedAt.Before(h[j].CreatedAt)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}
