package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/streamvault/streamvault/internal/maintenance"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/repository"
)

// VideoPathResolver picks the playable file for a recording base path.
// *recorder.Recorder implements it.
type VideoPathResolver interface {
	PreferredVideoPath(basePath string) (string, bool)
}

// VideoHandler exposes finished recordings as playable videos with their
// media-server sidecars, plus share-token access.
type VideoHandler struct {
	paths     VideoPathResolver
	janitor   *maintenance.Janitor
	streams   repository.StreamRepository
	streamers repository.StreamerRepository
	meta      repository.StreamMetadataRepository
}

// NewVideoHandler creates a video handler.
func NewVideoHandler(
	paths VideoPathResolver,
	janitor *maintenance.Janitor,
	streams repository.StreamRepository,
	streamers repository.StreamerRepository,
	meta repository.StreamMetadataRepository,
) *VideoHandler {
	return &VideoHandler{
		paths:     paths,
		janitor:   janitor,
		streams:   streams,
		streamers: streamers,
		meta:      meta,
	}
}

// Video is one playable recording with its sidecar paths.
type Video struct {
	StreamID       string     `json:"stream_id"`
	Streamer       string     `json:"streamer"`
	Title          string     `json:"title"`
	Season         string     `json:"season"`
	Episode        int        `json:"episode"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Path           string     `json:"path"`
	ChaptersVTT    string     `json:"chapters_vtt,omitempty"`
	ChaptersFFMeta string     `json:"chapters_ffmeta,omitempty"`
	NFO            string     `json:"nfo,omitempty"`
	Thumbnail      string     `json:"thumbnail,omitempty"`
}

// ListVideosInput paginates the video list.
type ListVideosInput struct {
	Offset int `query:"offset" minimum:"0" doc:"Pagination offset"`
	Limit  int `query:"limit" minimum:"1" maximum:"200" doc:"Page size"`
}

// ListVideosOutput wraps the video list.
type ListVideosOutput struct {
	Body struct {
		Videos []Video `json:"videos"`
		Total  int64   `json:"total"`
	}
}

// VideoInput addresses one video by stream id.
type VideoInput struct {
	ID string `path:"id" doc:"Stream id"`
}

// VideoOutput wraps one video.
type VideoOutput struct {
	Body Video
}

// ShareInput mints a share token for a video.
type ShareInput struct {
	ID   string `path:"id" doc:"Stream id"`
	Body struct {
		// TTLHours defaults to 72 when omitted.
		TTLHours int `json:"ttl_hours,omitempty" minimum:"1" maximum:"720"`
	}
}

// ShareOutput returns the minted token.
type ShareOutput struct {
	Body struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
}

// SharedVideoInput resolves a share token.
type SharedVideoInput struct {
	Token string `path:"token" doc:"Share token"`
}

// Register registers the video routes.
func (h *VideoHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listVideos",
		Method:      "GET",
		Path:        "/api/videos",
		Summary:     "List finished recordings",
		Tags:        []string{"Videos"},
	}, h.ListVideos)

	huma.Register(api, huma.Operation{
		OperationID: "getVideo",
		Method:      "GET",
		Path:        "/api/videos/{id}",
		Summary:     "Get one video",
		Tags:        []string{"Videos"},
	}, h.GetVideo)

	huma.Register(api, huma.Operation{
		OperationID: "createShareToken",
		Method:      "POST",
		Path:        "/api/videos/{id}/share",
		Summary:     "Mint a share token for a video",
		Tags:        []string{"Videos"},
	}, h.CreateShare)

	huma.Register(api, huma.Operation{
		OperationID: "getSharedVideo",
		Method:      "GET",
		Path:        "/api/shared/{token}",
		Summary:     "Resolve a share token to its video",
		Tags:        []string{"Videos"},
	}, h.GetShared)
}

// ListVideos lists streams with a finalized recording, newest first.
func (h *VideoHandler) ListVideos(ctx context.Context, input *ListVideosInput) (*ListVideosOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = 50
	}
	streams, total, err := h.streams.GetRecorded(ctx, input.Offset, limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing videos", err)
	}

	out := &ListVideosOutput{}
	out.Body.Total = total
	out.Body.Videos = make([]Video, 0, len(streams))
	for _, stream := range streams {
		video, err := h.buildVideo(ctx, stream)
		if err != nil {
			return nil, huma.Error500InternalServerError("listing videos", err)
		}
		out.Body.Videos = append(out.Body.Videos, video)
	}
	return out, nil
}

// GetVideo returns one video by stream id.
func (h *VideoHandler) GetVideo(ctx context.Context, input *VideoInput) (*VideoOutput, error) {
	stream, err := h.loadRecordedStream(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	video, err := h.buildVideo(ctx, stream)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading video", err)
	}
	return &VideoOutput{Body: video}, nil
}

// CreateShare mints a share token for a video.
func (h *VideoHandler) CreateShare(ctx context.Context, input *ShareInput) (*ShareOutput, error) {
	stream, err := h.loadRecordedStream(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(input.Body.TTLHours) * time.Hour
	if ttl == 0 {
		ttl = 72 * time.Hour
	}
	token, err := h.janitor.CreateShareToken(ctx, stream.ID, ttl)
	if err != nil {
		return nil, huma.Error500InternalServerError("creating share token", err)
	}

	out := &ShareOutput{}
	out.Body.Token = token.Token
	out.Body.ExpiresAt = token.ExpiresAt
	return out, nil
}

// GetShared resolves a share token to its video. Expired and unknown tokens
// are indistinguishable to the caller.
func (h *VideoHandler) GetShared(ctx context.Context, input *SharedVideoInput) (*VideoOutput, error) {
	streamID, err := h.janitor.ValidateShareToken(ctx, input.Token)
	if err != nil {
		if errors.Is(err, models.ErrInvalidToken) {
			return nil, huma.Error404NotFound("invalid or expired share token")
		}
		return nil, huma.Error500InternalServerError("validating share token", err)
	}

	stream, err := h.streams.GetByID(ctx, streamID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading video", err)
	}
	if stream == nil {
		return nil, huma.Error404NotFound("video not found")
	}
	video, err := h.buildVideo(ctx, stream)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading video", err)
	}
	return &VideoOutput{Body: video}, nil
}

func (h *VideoHandler) loadRecordedStream(ctx context.Context, id string) (*models.Stream, error) {
	streamID, err := models.ParseULID(id)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid stream id")
	}
	stream, err := h.streams.GetByID(ctx, streamID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading stream", err)
	}
	if stream == nil || stream.RecordingPath == "" {
		return nil, huma.Error404NotFound("video not found")
	}
	return stream, nil
}

func (h *VideoHandler) buildVideo(ctx context.Context, stream *models.Stream) (Video, error) {
	video := Video{
		StreamID:  stream.ID.String(),
		Title:     stream.Title,
		Season:    stream.SeasonKey(),
		Episode:   stream.EpisodeNumber,
		StartedAt: stream.StartedAt,
		EndedAt:   stream.EndedAt,
		Path:      stream.RecordingPath,
	}

	// The TS may still be the playable file when the remux has not run yet.
	if path, ok := h.paths.PreferredVideoPath(stream.RecordingPath); ok {
		video.Path = path
	}

	if streamer, err := h.streamers.GetByID(ctx, stream.StreamerID); err == nil && streamer != nil {
		video.Streamer = streamer.Name()
	}

	meta, err := h.meta.GetByStreamID(ctx, stream.ID)
	if err != nil {
		return video, err
	}
	if meta != nil {
		video.ChaptersVTT = meta.VTTChaptersPath
		video.ChaptersFFMeta = meta.FFmpegChaptersPath
		video.NFO = meta.NFOPath
		video.Thumbnail = meta.ThumbnailPath
	}
	return video, nil
}
