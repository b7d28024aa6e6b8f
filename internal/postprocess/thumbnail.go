package postprocess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"github.com/streamvault/streamvault/internal/ffmpeg"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/queue"
)

const (
	// thumbnailMaxOffset caps how deep into the video the frame is taken.
	thumbnailMaxOffset = 60.0
	// uniformRetryOffset is added when the first frame looks uniform
	// (pre-roll card, black frame).
	uniformRetryOffset = 30.0
	// luminanceVarianceFloor is the minimum variance a usable frame shows.
	luminanceVarianceFloor = 25.0
)

// thumbnail produces `<base>-thumb.jpg` next to the MP4. An existing poster
// asset wins; otherwise a frame is extracted at 10% of the duration (at
// most 60s in), retried 30s later when the frame is uniform, and downscaled
// to the configured width.
func (p *Pipeline) thumbnail(ctx context.Context, sp queue.StepPayload, progress func(float64)) error {
	target := mp4Path(sp.TSPath)
	thumbPath := strings.TrimSuffix(target, filepath.Ext(target)) + "-thumb.jpg"

	if info, err := os.Stat(thumbPath); err == nil && info.Size() > 0 {
		p.log.Debug("poster asset present, keeping it", "path", thumbPath)
		return p.persistSidecar(ctx, sp.StreamID, func(meta *models.StreamMetadata) {
			meta.ThumbnailPath = thumbPath
		})
	}

	ffmpegPath, ffprobePath, err := p.binaries(ctx)
	if err != nil {
		return err
	}
	probe, err := ffmpeg.NewProber(ffprobePath).Probe(ctx, target)
	if err != nil {
		return fmt.Errorf("probing for thumbnail: %w", err)
	}
	duration := probe.DurationSeconds()
	if duration <= 0 {
		return fmt.Errorf("no duration for thumbnail extraction")
	}
	progress(20)

	offset := duration * 0.10
	if offset > thumbnailMaxOffset {
		offset = thumbnailMaxOffset
	}

	frame, err := p.extractFrame(ctx, ffmpegPath, target, offset)
	if err != nil {
		return err
	}
	progress(55)

	if uniform, err := frameIsUniform(frame); err == nil && uniform {
		retry := offset + uniformRetryOffset
		if retry < duration {
			p.log.Debug("uniform frame, retrying later in the video", "offset", retry)
			if f2, err := p.extractFrame(ctx, ffmpegPath, target, retry); err == nil {
				if u2, err := frameIsUniform(f2); err == nil && !u2 {
					frame = f2
				}
			}
		}
	}
	progress(75)

	scaled, err := downscaleJPEG(frame, p.cfg.ThumbnailMaxWidth)
	if err != nil {
		return fmt.Errorf("downscaling thumbnail: %w", err)
	}
	if err := p.writeSidecar(thumbPath, scaled); err != nil {
		return err
	}

	return p.persistSidecar(ctx, sp.StreamID, func(meta *models.StreamMetadata) {
		meta.ThumbnailPath = thumbPath
	})
}

// extractFrame grabs one JPEG frame at the given offset.
func (p *Pipeline) extractFrame(ctx context.Context, ffmpegPath, videoPath string, offset float64) ([]byte, error) {
	tmp, err := os.CreateTemp("", "streamvault-thumb-*.jpg")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	cmd := ffmpeg.NewCommandBuilder(ffmpegPath).
		HideBanner().
		Overwrite().
		SeekInput(offset).
		Input(videoPath).
		Frames(1).
		Quality(2).
		Output(tmpPath)
	if err := cmd.Run(ctx); err != nil {
		return nil, fmt.Errorf("extracting frame at %.1fs: %w", offset, err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("extracted frame is empty")
	}
	return data, nil
}

// frameIsUniform reports whether a JPEG frame has near-zero luminance
// variance (black card, single-color pre-roll).
func frameIsUniform(data []byte) (bool, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	return luminanceVariance(img) < luminanceVarianceFloor, nil
}

// luminanceVariance samples the image on a grid and returns the variance of
// the Rec. 601 luma.
func luminanceVariance(img image.Image) float64 {
	bounds := img.Bounds()
	stepX := bounds.Dx() / 32
	stepY := bounds.Dy() / 32
	if stepX < 1 {
		stepX = 1
	}
	if stepY < 1 {
		stepY = 1
	}

	var sum, sumSq float64
	var n int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			sum += luma
			sumSq += luma * luma
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// downscaleJPEG bounds the image width, preserving aspect ratio. Images
// already narrow enough pass through re-encoded.
func downscaleJPEG(data []byte, maxWidth int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxWidth {
		height := bounds.Dy() * maxWidth / bounds.Dx()
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
