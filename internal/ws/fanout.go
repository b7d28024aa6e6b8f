package ws

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/streamvault/streamvault/internal/observability"
	"github.com/streamvault/streamvault/internal/queue"
)

// Fanout translates tracker callbacks, queue stats and recording events
// into hub broadcasts, and pushes periodic full-queue snapshots so late
// joiners converge without a request/response handshake.
type Fanout struct {
	hub      *Hub
	tracker  *queue.Tracker
	interval time.Duration
	log      *slog.Logger

	mu           sync.Mutex
	lastSnapshot [sha256.Size]byte
}

// NewFanout creates a Fanout over the hub. interval drives the snapshot
// loop; zero means the 10s default.
func NewFanout(hub *Hub, tracker *queue.Tracker, interval time.Duration, log *slog.Logger) *Fanout {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Fanout{
		hub:      hub,
		tracker:  tracker,
		interval: interval,
		log:      observability.WithComponent(log, "ws"),
	}
}

// TaskEvent is the tracker callback: status changes and throttled progress
// updates become per-task delta messages.
func (f *Fanout) TaskEvent(task queue.Task, kind queue.EventKind) {
	switch kind {
	case queue.EventStatus:
		f.hub.Broadcast(MsgTaskStatus, task)
	case queue.EventProgress:
		f.hub.Broadcast(MsgTaskProgress, progressDelta{TaskID: task.ID, Progress: task.Progress})
	}
}

// progressDelta is the slim task_progress_update payload.
type progressDelta struct {
	TaskID   string  `json:"task_id"`
	Progress float64 `json:"progress"`
}

// QueueStats is the queue manager's stats broadcast hook.
func (f *Fanout) QueueStats(stats queue.Stats) {
	f.hub.Broadcast(MsgQueueStats, stats)
}

// RecordingEvent forwards recorder lifecycle events; the event name is the
// message type.
func (f *Fanout) RecordingEvent(event string, payload any) {
	f.hub.Broadcast(event, payload)
}

// snapshotData is the background_queue_update payload.
type snapshotData struct {
	Stats  queue.Stats  `json:"stats"`
	Active []queue.Task `json:"active_tasks"`
	Recent []queue.Task `json:"recent_tasks"`
}

// RunSnapshots broadcasts full queue snapshots on the interval until ctx is
// done. Identical consecutive snapshots are suppressed by content hash.
func (f *Fanout) RunSnapshots(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.BroadcastSnapshot()
		}
	}
}

// BroadcastSnapshot sends one snapshot unless it is identical to the last.
func (f *Fanout) BroadcastSnapshot() {
	data := snapshotData{
		Stats:  f.tracker.Stats(),
		Active: sortTasks(f.tracker.Active()),
		Recent: sortTasks(f.tracker.Recent()),
	}
	body, err := json.Marshal(data)
	if err != nil {
		f.log.Error("snapshot marshal failed", "error", err)
		return
	}

	sum := sha256.Sum256(body)
	f.mu.Lock()
	if sum == f.lastSnapshot {
		f.mu.Unlock()
		return
	}
	f.lastSnapshot = sum
	f.mu.Unlock()

	f.hub.Broadcast(MsgBackgroundQueue, data)
}

// sortTasks orders by creation time then id so snapshot hashing is stable
// across map iteration order.
func sortTasks(tasks []queue.Task) []queue.Task {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks
}
