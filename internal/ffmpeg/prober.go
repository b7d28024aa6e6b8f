package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Prober wraps ffprobe for media inspection.
type Prober struct {
	ffprobePath string
}

// NewProber creates a Prober using the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

// ProbeResult is the parsed ffprobe output.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat is the container-level information.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream is one elementary stream.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

// DurationSeconds returns the container duration, or 0 when unknown.
func (r *ProbeResult) DurationSeconds() float64 {
	d, err := strconv.ParseFloat(r.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return d
}

// SizeBytes returns the container size, or 0 when unknown.
func (r *ProbeResult) SizeBytes() int64 {
	n, err := strconv.ParseInt(r.Format.Size, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// HasVideo reports whether any video stream is present.
func (r *ProbeResult) HasVideo() bool {
	for _, s := range r.Streams {
		if s.CodecType == "video" {
			return true
		}
	}
	return false
}

// HasAudio reports whether any audio stream is present.
func (r *ProbeResult) HasAudio() bool {
	for _, s := range r.Streams {
		if s.CodecType == "audio" {
			return true
		}
	}
	return false
}

// VideoDimensions returns the first video stream's width and height.
func (r *ProbeResult) VideoDimensions() (int, int) {
	for _, s := range r.Streams {
		if s.CodecType == "video" {
			return s.Width, s.Height
		}
	}
	return 0, 0
}

// Probe inspects a media file.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing probe output: %w", err)
	}
	return &result, nil
}

// ValidateMP4 probes the file and checks it is a playable MP4: the container
// must demux as MP4, report a positive duration and carry a video stream.
func (p *Prober) ValidateMP4(ctx context.Context, path string) (*ProbeResult, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	if !strings.Contains(result.Format.FormatName, "mp4") {
		return nil, fmt.Errorf("not an MP4 container: %s", result.Format.FormatName)
	}
	if result.DurationSeconds() <= 0 {
		return nil, fmt.Errorf("container reports no duration")
	}
	if !result.HasVideo() {
		return nil, fmt.Errorf("no video stream present")
	}
	return result, nil
}
