package postprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/streamvault/streamvault/internal/ffmpeg"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/queue"
)

// segmentPattern matches capture segment files and captures their index.
var segmentPattern = regexp.MustCompile(`_part(\d+)\.ts$`)

// concatListName is the transient ffconcat list written into the segment dir.
const concatListName = "concat.ffconcat"

// concatenate joins *_partNNN.ts segments into the canonical TS. A single
// segment is renamed instead of demuxed; an already-present canonical TS
// makes the whole step a no-op so restarts cannot double-concatenate.
func (p *Pipeline) concatenate(ctx context.Context, sp queue.StepPayload, progress func(float64)) error {
	segDir := sp.SegmentsDir
	if segDir == "" {
		return nil
	}

	if _, err := os.Stat(segDir); os.IsNotExist(err) {
		// Directory gone: a previous run finished and cleaned up.
		if info, err := os.Stat(sp.TSPath); err == nil && info.Size() > 0 {
			return nil
		}
		return fmt.Errorf("segments dir %s missing and no concatenated output", segDir)
	}

	segments, err := listSegments(segDir)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		if info, err := os.Stat(sp.TSPath); err == nil && info.Size() > 0 {
			return p.dropSegmentsDir(ctx, sp, segDir)
		}
		return fmt.Errorf("no segments in %s", segDir)
	}
	progress(10)

	abs := make([]string, len(segments))
	for i, name := range segments {
		abs[i] = filepath.Join(segDir, name)
	}
	if err := ffmpeg.PreflightSegments(ctx, abs); err != nil {
		return fmt.Errorf("segment preflight: %w", err)
	}
	progress(25)

	if len(segments) == 1 {
		if err := os.Rename(abs[0], sp.TSPath); err != nil {
			return fmt.Errorf("moving single segment: %w", err)
		}
	} else {
		if err := p.runConcat(ctx, segDir, segments, sp.TSPath); err != nil {
			return err
		}
	}
	progress(85)

	return p.dropSegmentsDir(ctx, sp, segDir)
}

// runConcat writes the ffconcat list into the segment dir (the demuxer
// resolves bare names relative to the list) and invokes ffmpeg.
func (p *Pipeline) runConcat(ctx context.Context, segDir string, segments []string, tsPath string) error {
	listPath := filepath.Join(segDir, concatListName)
	if err := os.WriteFile(listPath, []byte(ffmpeg.BuildConcatList(segments)), 0o640); err != nil {
		return fmt.Errorf("writing concat list: %w", err)
	}
	defer os.Remove(listPath)

	ffmpegPath, _, err := p.binaries(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.ConcatTimeout)
	defer cancel()

	cmd := ffmpeg.NewCommandBuilder(ffmpegPath).
		HideBanner().
		Overwrite().
		ConcatInput(listPath).
		CopyCodecs().
		Output(tsPath)
	p.log.Debug("running concat", "command", cmd.String())
	if err := cmd.Run(runCtx); err != nil {
		return fmt.Errorf("concatenating %d segments: %w", len(segments), err)
	}

	info, err := os.Stat(tsPath)
	if err != nil {
		return fmt.Errorf("concat output missing: %w", err)
	}
	if info.Size() < p.cfg.MinOutputSize.Bytes() {
		return fmt.Errorf("concat output too small: %d bytes", info.Size())
	}
	return nil
}

// dropSegmentsDir removes the segment files and directory and records the
// removal on StreamMetadata.
func (p *Pipeline) dropSegmentsDir(ctx context.Context, sp queue.StepPayload, segDir string) error {
	if err := os.RemoveAll(segDir); err != nil {
		return fmt.Errorf("removing segments dir: %w", err)
	}

	meta, err := p.meta.GetByStreamID(ctx, sp.StreamID)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = &models.StreamMetadata{StreamID: sp.StreamID}
	}
	meta.SegmentsDir = segDir
	meta.SegmentsRemoved = true
	return p.meta.Upsert(ctx, meta)
}

// listSegments returns the segment file names in part-number order.
func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}

	type seg struct {
		name string
		num  int
	}
	var segs []seg
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := segmentPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		segs = append(segs, seg{e.Name(), n})
	}
	// Numeric order, not lexicographic: part10 follows part9.
	sort.Slice(segs, func(i, j int) bool { return segs[i].num < segs[j].num })

	names := make([]string, len(segs))
	for i, s := range segs {
		names[i] = s.name
	}
	return names, nil
}
