package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// stderrTailLimit bounds how much stderr is kept for error reporting.
const stderrTailLimit = 8 * 1024

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	input      string
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// InputArgs adds arguments that precede -i.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// ConcatInput sets a ffconcat list file as the input. The -safe 0 flag lets
// the list reference absolute paths.
func (b *CommandBuilder) ConcatInput(listPath string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-f", "concat", "-safe", "0")
	b.input = listPath
	return b
}

// SeekInput seeks the input before decoding.
func (b *CommandBuilder) SeekInput(seconds float64) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-ss", fmt.Sprintf("%.3f", seconds))
	return b
}

// CopyCodecs passes streams through without re-encoding.
func (b *CommandBuilder) CopyCodecs() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c", "copy")
	return b
}

// AACBitstreamFilter converts ADTS AAC to the MP4 ASC form. Required when
// remuxing TS audio into an MP4 container.
func (b *CommandBuilder) AACBitstreamFilter() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-bsf:a", "aac_adtstoasc")
	return b
}

// FastStart moves the moov atom to the front so playback can begin before
// the file is fully downloaded.
func (b *CommandBuilder) FastStart() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-movflags", "+faststart")
	return b
}

// Frames limits the number of output video frames.
func (b *CommandBuilder) Frames(n int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-frames:v", fmt.Sprintf("%d", n))
	return b
}

// VideoFilter appends a -vf filter chain.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-vf", filter)
	return b
}

// Quality sets the output quality scale (JPEG thumbnails use 2).
func (b *CommandBuilder) Quality(q int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-q:v", fmt.Sprintf("%d", q))
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Args assembles the final argument list.
func (b *CommandBuilder) Args() []string {
	args := []string{"-loglevel", b.logLevel}
	args = append(args, b.globalArgs...)
	if b.overwrite {
		args = append(args, "-y")
	} else {
		args = append(args, "-n")
	}
	args = append(args, b.inputArgs...)
	if b.input != "" {
		args = append(args, "-i", b.input)
	}
	args = append(args, b.outputArgs...)
	if b.output != "" {
		args = append(args, b.output)
	}
	return args
}

// String renders the command for logging.
func (b *CommandBuilder) String() string {
	return b.binary + " " + strings.Join(b.Args(), " ")
}

// Run executes the command, honoring ctx for cancellation and timeout. On
// failure the error carries the tail of stderr.
func (b *CommandBuilder) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, b.binary, b.Args()...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, stderrTail(stderr.String()))
	}
	return nil
}

// stderrTail returns the last stderrTailLimit bytes of s, trimmed.
func stderrTail(s string) string {
	if len(s) > stderrTailLimit {
		s = s[len(s)-stderrTailLimit:]
	}
	return strings.TrimSpace(s)
}
