package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/queue"
)

// TaskHandler exposes the background task queue.
type TaskHandler struct {
	manager  *queue.Manager
	enqueuer PostProcessingEnqueuer
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(manager *queue.Manager) *TaskHandler {
	return &TaskHandler{manager: manager}
}

// TaskStatsOutput wraps queue stats.
type TaskStatsOutput struct {
	Body queue.Stats
}

// TaskListOutput wraps a task list.
type TaskListOutput struct {
	Body struct {
		Tasks []queue.Task `json:"tasks"`
	}
}

// TaskInput addresses one task.
type TaskInput struct {
	ID string `path:"id" doc:"Task id"`
}

// TaskOutput wraps one task.
type TaskOutput struct {
	Body queue.Task
}

// EnqueuePostProcessingInput requests a post-processing chain.
type EnqueuePostProcessingInput struct {
	Body struct {
		RecordingID string `json:"recording_id" required:"true"`
	}
}

// EnqueueOutput reports the created task ids.
type EnqueueOutput struct {
	Body struct {
		TaskIDs map[string]string `json:"task_ids"`
	}
}

// OrphanCheckInput requests an orphan recovery check.
type OrphanCheckInput struct {
	Body struct {
		Root string `json:"root,omitempty"`
	}
}

// OrphanCheckOutput reports the enqueued check.
type OrphanCheckOutput struct {
	Body struct {
		TaskID string `json:"task_id"`
		// Limited is true when the in-flight cap refused the enqueue.
		Limited bool `json:"limited"`
	}
}

// PostProcessingEnqueuer builds and enqueues post-processing work for a
// recording; the composition root injects the recovery scanner here.
type PostProcessingEnqueuer interface {
	EnqueueForRecording(ctx context.Context, recordingID models.ULID) (map[string]string, error)
	BuildRequest(ctx context.Context, recordingID models.ULID) (queue.PostProcessingRequest, error)
}

// rerunnableSteps are the steps safe to enqueue in isolation: sidecar
// generators with no step depending on their output files.
var rerunnableSteps = map[string]bool{
	models.StepMetadata:  true,
	models.StepChapters:  true,
	models.StepThumbnail: true,
}

// WithEnqueuer sets the post-processing enqueuer.
func (h *TaskHandler) WithEnqueuer(e PostProcessingEnqueuer) *TaskHandler {
	h.enqueuer = e
	return h
}

// Register registers the task routes.
func (h *TaskHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getTaskStats",
		Method:      "GET",
		Path:        "/api/tasks/stats",
		Summary:     "Queue statistics",
		Tags:        []string{"Tasks"},
	}, h.GetStats)

	huma.Register(api, huma.Operation{
		OperationID: "listActiveTasks",
		Method:      "GET",
		Path:        "/api/tasks/active",
		Summary:     "List active tasks",
		Tags:        []string{"Tasks"},
	}, h.ListActive)

	huma.Register(api, huma.Operation{
		OperationID: "listRecentTasks",
		Method:      "GET",
		Path:        "/api/tasks/recent",
		Summary:     "List recently finished tasks",
		Tags:        []string{"Tasks"},
	}, h.ListRecent)

	huma.Register(api, huma.Operation{
		OperationID: "getTask",
		Method:      "GET",
		Path:        "/api/tasks/{id}",
		Summary:     "Get a task",
		Tags:        []string{"Tasks"},
	}, h.GetTask)

	huma.Register(api, huma.Operation{
		OperationID: "cancelTask",
		Method:      "DELETE",
		Path:        "/api/tasks/{id}",
		Summary:     "Cancel a task and its dependents",
		Tags:        []string{"Tasks"},
	}, h.CancelTask)

	huma.Register(api, huma.Operation{
		OperationID: "enqueuePostProcessing",
		Method:      "POST",
		Path:        "/api/tasks/post-processing",
		Summary:     "Enqueue the post-processing chain for a recording",
		Tags:        []string{"Tasks"},
	}, h.EnqueuePostProcessing)

	huma.Register(api, huma.Operation{
		OperationID: "enqueueStep",
		Method:      "POST",
		Path:        "/api/tasks/steps",
		Summary:     "Enqueue a single sidecar regeneration step",
		Tags:        []string{"Tasks"},
	}, h.EnqueueStep)

	huma.Register(api, huma.Operation{
		OperationID: "enqueueOrphanCheck",
		Method:      "POST",
		Path:        "/api/tasks/orphan-check",
		Summary:     "Enqueue an orphan recovery check",
		Tags:        []string{"Tasks"},
	}, h.EnqueueOrphanCheck)
}

// GetStats returns queue statistics.
func (h *TaskHandler) GetStats(ctx context.Context, _ *struct{}) (*TaskStatsOutput, error) {
	return &TaskStatsOutput{Body: h.manager.Stats()}, nil
}

// ListActive returns non-terminal tasks, external ones included.
func (h *TaskHandler) ListActive(ctx context.Context, _ *struct{}) (*TaskListOutput, error) {
	out := &TaskListOutput{}
	out.Body.Tasks = h.manager.Tracker().Active()
	return out, nil
}

// ListRecent returns retained finished tasks.
func (h *TaskHandler) ListRecent(ctx context.Context, _ *struct{}) (*TaskListOutput, error) {
	out := &TaskListOutput{}
	out.Body.Tasks = h.manager.Tracker().Recent()
	return out, nil
}

// GetTask returns one task by id.
func (h *TaskHandler) GetTask(ctx context.Context, input *TaskInput) (*TaskOutput, error) {
	task, ok := h.manager.GetTask(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("task not found")
	}
	return &TaskOutput{Body: task}, nil
}

// CancelTask cancels a task; the DAG cascades to dependents.
func (h *TaskHandler) CancelTask(ctx context.Context, input *TaskInput) (*TaskOutput, error) {
	if !h.manager.CancelTask(input.ID) {
		return nil, huma.Error404NotFound("task not found or already terminal")
	}
	task, _ := h.manager.GetTask(input.ID)
	return &TaskOutput{Body: task}, nil
}

// EnqueuePostProcessing enqueues the full chain for a recording.
func (h *TaskHandler) EnqueuePostProcessing(ctx context.Context, input *EnqueuePostProcessingInput) (*EnqueueOutput, error) {
	if h.enqueuer == nil {
		return nil, huma.Error501NotImplemented("post-processing enqueue not wired")
	}
	recordingID, err := models.ParseULID(input.Body.RecordingID)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid recording id")
	}
	taskIDs, err := h.enqueuer.EnqueueForRecording(ctx, recordingID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, huma.Error404NotFound("recording not found")
		}
		return nil, huma.Error500InternalServerError("enqueueing post-processing", err)
	}
	out := &EnqueueOutput{}
	out.Body.TaskIDs = taskIDs
	return out, nil
}

// EnqueueStepInput requests a single post-processing step.
type EnqueueStepInput struct {
	Body struct {
		RecordingID string `json:"recording_id" required:"true"`
		Step        string `json:"step" required:"true" enum:"metadata_generation,chapters,thumbnail_generation"`
	}
}

// EnqueueStepOutput reports the created task.
type EnqueueStepOutput struct {
	Body struct {
		TaskID string `json:"task_id"`
	}
}

// EnqueueStep enqueues one sidecar step for a recording. Steps already
// completed are skipped by the durable gate; failed or never-run sidecar
// steps execute. Steps that transform the video are only reachable through
// the full chain.
func (h *TaskHandler) EnqueueStep(ctx context.Context, input *EnqueueStepInput) (*EnqueueStepOutput, error) {
	if h.enqueuer == nil {
		return nil, huma.Error501NotImplemented("post-processing enqueue not wired")
	}
	if !rerunnableSteps[input.Body.Step] {
		return nil, huma.Error422UnprocessableEntity("step cannot run in isolation")
	}
	recordingID, err := models.ParseULID(input.Body.RecordingID)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid recording id")
	}
	req, err := h.enqueuer.BuildRequest(ctx, recordingID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, huma.Error404NotFound("recording not found")
		}
		return nil, huma.Error500InternalServerError("building step request", err)
	}

	payload := queue.StepPayload{
		Step:         input.Body.Step,
		RecordingID:  req.RecordingID,
		StreamID:     req.StreamID,
		StreamerID:   req.StreamerID,
		StreamerName: req.StreamerName,
		TSPath:       req.TSPath,
		SegmentsDir:  req.SegmentsDir,
	}
	id, err := h.manager.Enqueue(queue.NewTask(payload, 0))
	if err != nil {
		return nil, huma.Error500InternalServerError("enqueueing step", err)
	}
	out := &EnqueueStepOutput{}
	out.Body.TaskID = id
	return out, nil
}

// EnqueueOrphanCheck enqueues an orphan recovery check, subject to the
// in-flight cap.
func (h *TaskHandler) EnqueueOrphanCheck(ctx context.Context, input *OrphanCheckInput) (*OrphanCheckOutput, error) {
	task := queue.NewTask(queue.OrphanCheckPayload{Root: input.Body.Root}, 0)
	id, err := h.manager.Enqueue(task)
	if err != nil {
		return nil, huma.Error500InternalServerError("enqueueing orphan check", err)
	}
	out := &OrphanCheckOutput{}
	out.Body.TaskID = id
	out.Body.Limited = id == queue.OrphanCheckLimitID
	return out, nil
}
