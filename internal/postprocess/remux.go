package postprocess

import (
	"context"
	"fmt"
	"os"

	"github.com/streamvault/streamvault/internal/ffmpeg"
	"github.com/streamvault/streamvault/internal/queue"
)

// remux stream-copies the TS into an MP4 container: no transcoding, ADTS
// AAC converted for MP4, moov atom up front.
func (p *Pipeline) remux(ctx context.Context, sp queue.StepPayload, progress func(float64)) error {
	target := mp4Path(sp.TSPath)

	if _, err := os.Stat(sp.TSPath); err != nil {
		// Input gone but output present: a previous run already remuxed.
		if info, serr := os.Stat(target); serr == nil && info.Size() >= p.cfg.MinOutputSize.Bytes() {
			return nil
		}
		return fmt.Errorf("remux input missing: %w", err)
	}
	progress(5)

	ffmpegPath, _, err := p.binaries(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.RemuxTimeout)
	defer cancel()

	cmd := ffmpeg.NewCommandBuilder(ffmpegPath).
		HideBanner().
		Overwrite().
		Input(sp.TSPath).
		CopyCodecs().
		AACBitstreamFilter().
		FastStart().
		Output(target)
	p.log.Debug("running remux", "command", cmd.String())
	if err := cmd.Run(runCtx); err != nil {
		os.Remove(target)
		return fmt.Errorf("remuxing to mp4: %w", err)
	}
	progress(90)

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("remux output missing: %w", err)
	}
	if info.Size() < p.cfg.MinOutputSize.Bytes() {
		return fmt.Errorf("remux output too small: %d bytes", info.Size())
	}
	return nil
}

// validate confirms the MP4 is a playable container and records the final
// path, duration and size on the recording and its stream.
func (p *Pipeline) validate(ctx context.Context, sp queue.StepPayload, progress func(float64)) error {
	target := mp4Path(sp.TSPath)

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("mp4 missing: %w", err)
	}
	if info.Size() < p.cfg.MinOutputSize.Bytes() {
		return fmt.Errorf("mp4 too small: %d bytes", info.Size())
	}
	progress(20)

	_, ffprobePath, err := p.binaries(ctx)
	if err != nil {
		return err
	}
	result, err := ffmpeg.NewProber(ffprobePath).ValidateMP4(ctx, target)
	if err != nil {
		return fmt.Errorf("validating mp4: %w", err)
	}
	progress(70)

	rec, err := p.recs.GetByID(ctx, sp.RecordingID)
	if err != nil {
		return err
	}
	if rec != nil {
		rec.Path = target
		dur := result.DurationSeconds()
		size := info.Size()
		rec.DurationSeconds = &dur
		rec.FileSize = &size
		if err := p.recs.Update(ctx, rec); err != nil {
			return fmt.Errorf("recording final path: %w", err)
		}
	}

	stream, err := p.streams.GetByID(ctx, sp.StreamID)
	if err != nil {
		return err
	}
	if stream != nil {
		stream.RecordingPath = target
		if err := p.streams.Update(ctx, stream); err != nil {
			return fmt.Errorf("recording stream path: %w", err)
		}
	}
	return nil
}
