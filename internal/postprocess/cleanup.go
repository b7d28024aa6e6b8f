package postprocess

import (
	"context"
	"fmt"
	"os"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/queue"
)

// cleanup removes the capture inputs once the MP4 is validated: the TS and
// the segments directory. The MP4 and its sidecars are never touched. As
// the final step it also closes the recording out.
func (p *Pipeline) cleanup(ctx context.Context, sp queue.StepPayload, progress func(float64)) error {
	target := mp4Path(sp.TSPath)
	if info, err := os.Stat(target); err != nil || info.Size() == 0 {
		return fmt.Errorf("refusing cleanup, mp4 missing: %s", target)
	}

	if err := os.Remove(sp.TSPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing ts: %w", err)
	}
	progress(40)

	if sp.SegmentsDir != "" {
		if err := os.RemoveAll(sp.SegmentsDir); err != nil {
			return fmt.Errorf("removing segments dir: %w", err)
		}
		if err := p.persistSidecar(ctx, sp.StreamID, func(meta *models.StreamMetadata) {
			meta.SegmentsRemoved = true
		}); err != nil {
			return err
		}
	}
	progress(80)

	if err := p.recs.UpdateStatus(ctx, sp.RecordingID, models.RecordingStatusCompleted); err != nil {
		return fmt.Errorf("closing recording: %w", err)
	}
	return nil
}
