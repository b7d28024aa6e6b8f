package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/streamvault/streamvault/internal/observability"
)

// HandlerFunc executes one task. progress reports 0-100 and may be called
// freely; throttling happens in the tracker.
type HandlerFunc func(ctx context.Context, task *Task, progress func(float64)) error

// CompletionFunc is invoked exactly once per execution, success or not.
type CompletionFunc func(task *Task, err error)

// maxRetryDelay caps the exponential backoff between handler attempts.
const maxRetryDelay = 60 * time.Second

// Pool holds the task-type handler registry and runs tasks with retry.
// Scheduling (which task runs when, and on which streamer's workers) is the
// manager's job; the pool only executes.
type Pool struct {
	log        *slog.Logger
	tracker    *Tracker
	maxRetries int

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewPool creates a Pool. maxRetries < 0 falls back to 3.
func NewPool(tracker *Tracker, maxRetries int, log *slog.Logger) *Pool {
	if maxRetries < 0 {
		maxRetries = 3
	}
	return &Pool{
		log:        observability.WithComponent(log, "pool"),
		tracker:    tracker,
		maxRetries: maxRetries,
		handlers:   make(map[string]HandlerFunc),
	}
}

// Register installs the handler for a task type, replacing any previous one.
func (p *Pool) Register(taskType string, h HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[taskType] = h
}

// Handles reports whether a handler is registered for the task type.
func (p *Pool) Handles(taskType string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.handlers[taskType]
	return ok
}

// Execute runs a task to a terminal state: handler errors retry with
// exponential backoff (1s, 2s, 4s, ... capped at 60s) until maxRetries is
// exhausted. The tracker is updated throughout and onComplete fires exactly
// once, whatever the outcome.
func (p *Pool) Execute(ctx context.Context, task *Task, onComplete CompletionFunc) {
	var finalErr error
	defer func() {
		if onComplete != nil {
			onComplete(task, finalErr)
		}
	}()

	p.mu.RLock()
	handler, ok := p.handlers[task.Type]
	p.mu.RUnlock()
	if !ok {
		finalErr = fmt.Errorf("no handler registered for task type %q", task.Type)
		p.tracker.UpdateStatus(task.ID, TaskFailed, finalErr.Error())
		return
	}

	p.tracker.UpdateStatus(task.ID, TaskRunning, "")
	progress := func(pct float64) {
		p.tracker.UpdateProgress(task.ID, pct)
	}

	for attempt := 0; ; attempt++ {
		err := p.runHandler(ctx, handler, task, progress)
		if err == nil {
			p.tracker.UpdateStatus(task.ID, TaskCompleted, "")
			return
		}
		if ctx.Err() != nil {
			finalErr = ctx.Err()
			p.tracker.UpdateStatus(task.ID, TaskCancelled, finalErr.Error())
			return
		}

		task.RetryCount = attempt + 1
		if attempt >= p.maxRetries {
			finalErr = err
			p.tracker.UpdateStatus(task.ID, TaskFailed, err.Error())
			return
		}

		delay := retryDelay(attempt)
		p.log.Warn("task attempt failed, retrying",
			"task_id", task.ID,
			"task_type", task.Type,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			finalErr = ctx.Err()
			p.tracker.UpdateStatus(task.ID, TaskCancelled, finalErr.Error())
			return
		case <-time.After(delay):
		}
	}
}

// runHandler shields the pool from handler panics; a panicking step fails
// its task instead of killing the worker.
func (p *Pool) runHandler(ctx context.Context, h HandlerFunc, task *Task, progress func(float64)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panicked: %v", r)
		}
	}()
	return h(ctx, task, progress)
}

// retryDelay returns min(2^attempt, 60) seconds.
func retryDelay(attempt int) time.Duration {
	secs := math.Pow(2, float64(attempt))
	if secs > maxRetryDelay.Seconds() {
		return maxRetryDelay
	}
	return time.Duration(secs * float64(time.Second))
}
