// Package postprocess implements the queue handlers that turn a finished
// capture into a media-server asset: segment concatenation, TS to MP4
// remux, validation, sidecar generation, thumbnail extraction and cleanup.
package postprocess

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/ffmpeg"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/observability"
	"github.com/streamvault/streamvault/internal/queue"
	"github.com/streamvault/streamvault/internal/repository"
	"github.com/streamvault/streamvault/internal/storage"
)

// HandlerRegistry is where the pipeline installs its step handlers.
type HandlerRegistry interface {
	RegisterHandler(taskType string, h queue.HandlerFunc)
}

// stepFunc is the body of one post-processing step.
type stepFunc func(ctx context.Context, sp queue.StepPayload, progress func(float64)) error

// Pipeline owns the post-processing step handlers and their shared
// dependencies.
type Pipeline struct {
	cfg   config.PostProcessConfig
	ffcfg config.FFmpegConfig
	log   *slog.Logger

	vault    *storage.Vault
	detector *ffmpeg.BinaryDetector

	states    repository.ProcessingStateRepository
	recs      repository.RecordingRepository
	streams   repository.StreamRepository
	streamers repository.StreamerRepository
	chapters  repository.ChapterRepository
	meta      repository.StreamMetadataRepository
}

// New creates a Pipeline.
func New(
	cfg config.PostProcessConfig,
	ffcfg config.FFmpegConfig,
	vault *storage.Vault,
	states repository.ProcessingStateRepository,
	recs repository.RecordingRepository,
	streams repository.StreamRepository,
	streamers repository.StreamerRepository,
	chapters repository.ChapterRepository,
	meta repository.StreamMetadataRepository,
	log *slog.Logger,
) *Pipeline {
	if cfg.ConcatTimeout <= 0 {
		cfg.ConcatTimeout = 10 * time.Minute
	}
	if cfg.RemuxTimeout <= 0 {
		cfg.RemuxTimeout = 10 * time.Minute
	}
	if cfg.MinOutputSize <= 0 {
		cfg.MinOutputSize = 1024
	}
	if cfg.ThumbnailMaxWidth <= 0 {
		cfg.ThumbnailMaxWidth = 640
	}
	return &Pipeline{
		cfg:       cfg,
		ffcfg:     ffcfg,
		log:       observability.WithComponent(log, "postprocess"),
		vault:     vault,
		detector:  ffmpeg.NewBinaryDetector(),
		states:    states,
		recs:      recs,
		streams:   streams,
		streamers: streamers,
		chapters:  chapters,
		meta:      meta,
	}
}

// Register installs all step handlers.
func (p *Pipeline) Register(reg HandlerRegistry) {
	reg.RegisterHandler(models.StepConcatenation, p.wrap(models.StepConcatenation, p.concatenate))
	reg.RegisterHandler(models.StepMetadata, p.wrap(models.StepMetadata, p.generateNFO))
	reg.RegisterHandler(models.StepChapters, p.wrap(models.StepChapters, p.generateChapters))
	reg.RegisterHandler(models.StepRemux, p.wrap(models.StepRemux, p.remux))
	reg.RegisterHandler(models.StepValidation, p.wrap(models.StepValidation, p.validate))
	reg.RegisterHandler(models.StepThumbnail, p.wrap(models.StepThumbnail, p.thumbnail))
	reg.RegisterHandler(models.StepCleanup, p.wrap(models.StepCleanup, p.cleanup))
}

// wrap applies the durable idempotency protocol around a step body: read
// the step status and skip when completed, mark running, run, then mark
// completed or failed. Concatenation has no status column; its body checks
// its own output instead.
func (p *Pipeline) wrap(step string, fn stepFunc) queue.HandlerFunc {
	return func(ctx context.Context, task *queue.Task, progress func(float64)) error {
		sp, ok := task.Payload.(queue.StepPayload)
		if !ok {
			return fmt.Errorf("step %s: unexpected payload %T", step, task.Payload)
		}

		tracked := step != models.StepConcatenation
		if tracked {
			state, err := p.ensureState(ctx, sp)
			if err != nil {
				return err
			}
			status, err := state.StepStatusFor(step)
			if err != nil {
				return err
			}
			if status == models.StepCompleted {
				p.log.Info("step already completed, skipping",
					"step", step, "recording_id", sp.RecordingID)
				progress(100)
				return nil
			}
			if err := p.states.SetStepStatus(ctx, sp.RecordingID, step, models.StepRunning); err != nil {
				return fmt.Errorf("marking step running: %w", err)
			}
		}

		start := time.Now()
		if err := fn(ctx, sp, progress); err != nil {
			if tracked {
				p.recordFailure(ctx, sp.RecordingID, step, err)
			}
			return fmt.Errorf("%s: %w", step, err)
		}

		if tracked {
			if err := p.states.SetStepStatus(ctx, sp.RecordingID, step, models.StepCompleted); err != nil {
				return fmt.Errorf("marking step completed: %w", err)
			}
		}
		progress(100)
		p.log.Info("step completed",
			"step", step,
			"recording_id", sp.RecordingID,
			"duration", time.Since(start).Round(time.Millisecond))
		return nil
	}
}

// ensureState loads the recording's durable state, creating it when the
// enqueue path has not.
func (p *Pipeline) ensureState(ctx context.Context, sp queue.StepPayload) (*models.RecordingProcessingState, error) {
	state, err := p.states.GetByRecordingID(ctx, sp.RecordingID)
	if err != nil {
		return nil, fmt.Errorf("loading processing state: %w", err)
	}
	if state != nil {
		return state, nil
	}
	state = &models.RecordingProcessingState{
		RecordingID: sp.RecordingID,
		StreamID:    sp.StreamID,
		StreamerID:  sp.StreamerID,
	}
	if err := p.states.Create(ctx, state); err != nil {
		return nil, fmt.Errorf("creating processing state: %w", err)
	}
	return state, nil
}

// recordFailure marks the step failed and stores the error for operators.
func (p *Pipeline) recordFailure(ctx context.Context, recordingID models.ULID, step string, stepErr error) {
	if err := p.states.SetStepStatus(ctx, recordingID, step, models.StepFailed); err != nil {
		p.log.Error("marking step failed", "step", step, "recording_id", recordingID, "error", err)
	}
	state, err := p.states.GetByRecordingID(ctx, recordingID)
	if err != nil || state == nil {
		return
	}
	state.LastError = fmt.Sprintf("%s: %s", step, stepErr.Error())
	if err := p.states.Update(ctx, state); err != nil {
		p.log.Error("storing last error", "recording_id", recordingID, "error", err)
	}
}

// binaries resolves the ffmpeg/ffprobe paths, honoring explicit config.
func (p *Pipeline) binaries(ctx context.Context) (ffmpegPath, ffprobePath string, err error) {
	if p.ffcfg.BinaryPath != "" && p.ffcfg.ProbePath != "" {
		return p.ffcfg.BinaryPath, p.ffcfg.ProbePath, nil
	}
	info, err := p.detector.Detect(ctx)
	if err != nil {
		return "", "", err
	}
	ffmpegPath, ffprobePath = info.FFmpegPath, info.FFprobePath
	if p.ffcfg.BinaryPath != "" {
		ffmpegPath = p.ffcfg.BinaryPath
	}
	if p.ffcfg.ProbePath != "" {
		ffprobePath = p.ffcfg.ProbePath
	}
	return ffmpegPath, ffprobePath, nil
}

// mp4Path derives the MP4 target from the canonical TS path.
func mp4Path(tsPath string) string {
	return strings.TrimSuffix(tsPath, filepath.Ext(tsPath)) + ".mp4"
}

// sidecarPath derives a sidecar path next to the MP4.
func sidecarPath(tsPath, ext string) string {
	return strings.TrimSuffix(tsPath, filepath.Ext(tsPath)) + ext
}
