package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/repository"
)

// RecordingController is the slice of the recorder the handler drives.
// *recorder.Recorder implements it.
type RecordingController interface {
	StartRecording(ctx context.Context, streamID models.ULID, forced bool) (*models.Recording, error)
	ForceStart(ctx context.Context, streamerID models.ULID) (*models.Recording, error)
	StopRecording(ctx context.Context, recordingID models.ULID, reason string) error
}

// RecordingHandler exposes recording lifecycle control.
type RecordingHandler struct {
	recorder RecordingController
	active   repository.ActiveRecordingRepository
	recs     repository.RecordingRepository
}

// NewRecordingHandler creates a recording handler.
func NewRecordingHandler(rec RecordingController, active repository.ActiveRecordingRepository, recs repository.RecordingRepository) *RecordingHandler {
	return &RecordingHandler{recorder: rec, active: active, recs: recs}
}

// StartRecordingInput starts a recording for a live stream.
type StartRecordingInput struct {
	Body struct {
		StreamID string `json:"stream_id" required:"true"`
		// Forced bypasses the streamer's recording-enabled flag.
		Forced bool `json:"forced,omitempty"`
	}
}

// ForceStartInput starts a recording for a streamer without a live event.
type ForceStartInput struct {
	Body struct {
		StreamerID string `json:"streamer_id" required:"true"`
	}
}

// RecordingOutput wraps one recording.
type RecordingOutput struct {
	Body models.Recording
}

// StopRecordingInput stops an active recording.
type StopRecordingInput struct {
	ID   string `path:"id" doc:"Recording id"`
	Body struct {
		Reason string `json:"reason,omitempty"`
	}
}

// StopRecordingOutput acknowledges a stop request.
type StopRecordingOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// ActiveRecordingsOutput lists captures in flight.
type ActiveRecordingsOutput struct {
	Body struct {
		Recordings []*models.ActiveRecordingState `json:"recordings"`
	}
}

// RecordingInput addresses one recording.
type RecordingInput struct {
	ID string `path:"id" doc:"Recording id"`
}

// Register registers the recording routes.
func (h *RecordingHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listActiveRecordings",
		Method:      "GET",
		Path:        "/api/recordings/active",
		Summary:     "List captures in flight",
		Tags:        []string{"Recordings"},
	}, h.ListActive)

	huma.Register(api, huma.Operation{
		OperationID: "getRecording",
		Method:      "GET",
		Path:        "/api/recordings/{id}",
		Summary:     "Get a recording",
		Tags:        []string{"Recordings"},
	}, h.GetRecording)

	huma.Register(api, huma.Operation{
		OperationID: "startRecording",
		Method:      "POST",
		Path:        "/api/recordings/start",
		Summary:     "Start recording a live stream",
		Tags:        []string{"Recordings"},
	}, h.StartRecording)

	huma.Register(api, huma.Operation{
		OperationID: "forceStartRecording",
		Method:      "POST",
		Path:        "/api/recordings/force-start",
		Summary:     "Force-start a recording for a streamer",
		Tags:        []string{"Recordings"},
	}, h.ForceStart)

	huma.Register(api, huma.Operation{
		OperationID: "stopRecording",
		Method:      "POST",
		Path:        "/api/recordings/{id}/stop",
		Summary:     "Stop an active recording",
		Tags:        []string{"Recordings"},
	}, h.StopRecording)
}

// ListActive returns the capture registry rows.
func (h *RecordingHandler) ListActive(ctx context.Context, _ *struct{}) (*ActiveRecordingsOutput, error) {
	rows, err := h.active.GetAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing active recordings", err)
	}
	out := &ActiveRecordingsOutput{}
	out.Body.Recordings = rows
	return out, nil
}

// GetRecording returns one recording row.
func (h *RecordingHandler) GetRecording(ctx context.Context, input *RecordingInput) (*RecordingOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid recording id")
	}
	rec, err := h.recs.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading recording", err)
	}
	if rec == nil {
		return nil, huma.Error404NotFound("recording not found")
	}
	return &RecordingOutput{Body: *rec}, nil
}

// StartRecording starts a capture for a live stream.
func (h *RecordingHandler) StartRecording(ctx context.Context, input *StartRecordingInput) (*RecordingOutput, error) {
	streamID, err := models.ParseULID(input.Body.StreamID)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid stream id")
	}
	rec, err := h.recorder.StartRecording(ctx, streamID, input.Body.Forced)
	if err != nil {
		return nil, mapRecorderError(err, "starting recording")
	}
	return &RecordingOutput{Body: *rec}, nil
}

// ForceStart starts a capture for a streamer regardless of live state.
func (h *RecordingHandler) ForceStart(ctx context.Context, input *ForceStartInput) (*RecordingOutput, error) {
	streamerID, err := models.ParseULID(input.Body.StreamerID)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid streamer id")
	}
	rec, err := h.recorder.ForceStart(ctx, streamerID)
	if err != nil {
		return nil, mapRecorderError(err, "force-starting recording")
	}
	return &RecordingOutput{Body: *rec}, nil
}

// StopRecording asks the supervisor to stop a capture. Post-processing is
// enqueued by the normal exit path.
func (h *RecordingHandler) StopRecording(ctx context.Context, input *StopRecordingInput) (*StopRecordingOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid recording id")
	}
	reason := input.Body.Reason
	if reason == "" {
		reason = "manual stop"
	}
	if err := h.recorder.StopRecording(ctx, id, reason); err != nil {
		return nil, mapRecorderError(err, "stopping recording")
	}
	out := &StopRecordingOutput{}
	out.Body.Status = "stopping"
	return out, nil
}

// mapRecorderError translates recorder sentinels into HTTP errors.
func mapRecorderError(err error, msg string) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return huma.Error404NotFound("not found")
	case errors.Is(err, models.ErrAlreadyRecording):
		return huma.Error409Conflict("recording already active for stream")
	case errors.Is(err, models.ErrCapacity):
		return huma.Error429TooManyRequests("concurrent recording limit reached")
	case errors.Is(err, models.ErrShuttingDown):
		return huma.Error503ServiceUnavailable("service is shutting down")
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}
