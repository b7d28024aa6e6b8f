package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilder_RemuxArgs(t *testing.T) {
	b := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		Overwrite().
		Input("/rec/ep.ts").
		CopyCodecs().
		AACBitstreamFilter().
		FastStart().
		Output("/rec/ep.mp4")

	args := b.Args()
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i /rec/ep.ts")
	assert.Contains(t, joined, "-c copy")
	assert.Contains(t, joined, "-bsf:a aac_adtstoasc")
	assert.Contains(t, joined, "-movflags +faststart")
	assert.Contains(t, joined, "-y")
	assert.Equal(t, "/rec/ep.mp4", args[len(args)-1])

	// Input flags must precede -i; output flags must follow it.
	iIdx := indexOf(args, "-i")
	cIdx := indexOf(args, "-c")
	require.GreaterOrEqual(t, iIdx, 0)
	assert.Greater(t, cIdx, iIdx)
}

func TestCommandBuilder_ConcatArgs(t *testing.T) {
	b := NewCommandBuilder("ffmpeg").
		ConcatInput("/rec/ep_segments/concat.txt").
		CopyCodecs().
		Output("/rec/ep.ts")

	args := b.Args()
	fIdx := indexOf(args, "-f")
	iIdx := indexOf(args, "-i")
	require.GreaterOrEqual(t, fIdx, 0)
	assert.Equal(t, "concat", args[fIdx+1])
	assert.Contains(t, args, "-safe")
	assert.Greater(t, iIdx, fIdx)
}

func TestCommandBuilder_ThumbnailArgs(t *testing.T) {
	b := NewCommandBuilder("ffmpeg").
		SeekInput(60).
		Input("/rec/ep.mp4").
		Frames(1).
		Quality(2).
		Output("/rec/ep-thumb.jpg")

	args := b.Args()
	ssIdx := indexOf(args, "-ss")
	iIdx := indexOf(args, "-i")
	require.GreaterOrEqual(t, ssIdx, 0)
	assert.Equal(t, "60.000", args[ssIdx+1])
	// Seek before the input for fast keyframe seeking.
	assert.Greater(t, iIdx, ssIdx)
	assert.Contains(t, args, "-frames:v")
}

func TestCommandBuilder_DefaultNoOverwrite(t *testing.T) {
	args := NewCommandBuilder("ffmpeg").Input("a.ts").Output("a.mp4").Args()
	assert.Contains(t, args, "-n")
	assert.NotContains(t, args, "-y")
}

func TestBuildConcatList(t *testing.T) {
	list := BuildConcatList([]string{
		"/rec/ep_segments/part000.ts",
		"/rec/ep_segments/part001.ts",
	})
	lines := strings.Split(strings.TrimSpace(list), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ffconcat version 1.0", lines[0])
	assert.Equal(t, "file '/rec/ep_segments/part000.ts'", lines[1])
	assert.Equal(t, "file '/rec/ep_segments/part001.ts'", lines[2])
}

func TestBuildConcatListEscapesQuotes(t *testing.T) {
	list := BuildConcatList([]string{"/rec/it's here/part000.ts"})
	assert.Contains(t, list, `file '/rec/it'\''s here/part000.ts'`)
}

func TestProbeResultAccessors(t *testing.T) {
	r := &ProbeResult{
		Format: ProbeFormat{
			FormatName: "mov,mp4,m4a,3gp,3g2,mj2",
			Duration:   "3723.500000",
			Size:       "1073741824",
		},
		Streams: []ProbeStream{
			{Index: 0, CodecName: "h264", CodecType: "video", Width: 1920, Height: 1080},
			{Index: 1, CodecName: "aac", CodecType: "audio"},
		},
	}

	assert.InDelta(t, 3723.5, r.DurationSeconds(), 0.001)
	assert.Equal(t, int64(1073741824), r.SizeBytes())
	assert.True(t, r.HasVideo())
	assert.True(t, r.HasAudio())
	w, h := r.VideoDimensions()
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	empty := &ProbeResult{}
	assert.Zero(t, empty.DurationSeconds())
	assert.False(t, empty.HasVideo())
}

func TestPreflightSegmentRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	empty := filepath.Join(dir, "empty.ts")
	require.NoError(t, os.WriteFile(empty, nil, 0o640))
	err := PreflightSegment(ctx, empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")

	garbage := filepath.Join(dir, "garbage.ts")
	require.NoError(t, os.WriteFile(garbage, []byte("this is not mpeg-ts"), 0o640))
	err = PreflightSegment(ctx, garbage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync byte")

	_, err = os.Stat(filepath.Join(dir, "missing.ts"))
	require.Error(t, err)
	err = PreflightSegment(ctx, filepath.Join(dir, "missing.ts"))
	require.Error(t, err)
}

func TestPreflightSegmentNoPAT(t *testing.T) {
	dir := t.TempDir()

	// Sync bytes in the right places but null-PID packets only: no PAT.
	pkt := make([]byte, 188)
	pkt[0] = 0x47
	pkt[1] = 0x1f
	pkt[2] = 0xff
	pkt[3] = 0x10
	var data []byte
	for i := 0; i < 50; i++ {
		data = append(data, pkt...)
	}
	path := filepath.Join(dir, "nopat.ts")
	require.NoError(t, os.WriteFile(path, data, 0o640))

	err := PreflightSegment(context.Background(), path)
	require.Error(t, err)
}

func TestBinaryInfoSupportsMinVersion(t *testing.T) {
	info := &BinaryInfo{MajorVersion: 6, MinorVersion: 1}
	assert.True(t, info.SupportsMinVersion(6, 0))
	assert.True(t, info.SupportsMinVersion(6, 1))
	assert.True(t, info.SupportsMinVersion(5, 9))
	assert.False(t, info.SupportsMinVersion(6, 2))
	assert.False(t, info.SupportsMinVersion(7, 0))
}

func indexOf(args []string, want string) int {
	for i, a := range args {
		if a == want {
			return i
		}
	}
	return -1
}
