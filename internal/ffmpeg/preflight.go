package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/asticode/go-astits"
)

const (
	tsPacketSize = 188
	// tsSyncByte is the MPEG-TS sync byte (astits keeps its own copy
	// unexported).
	tsSyncByte = 0x47
	// preflightReadLimit bounds how much of a segment is demuxed. The PAT
	// repeats at least every 100ms in a valid capture, so a few megabytes is
	// plenty.
	preflightReadLimit = 4 << 20
	// preflightMaxPackets caps demuxing for streams that never carry a PAT.
	preflightMaxPackets = 5000
)

// PreflightSegment verifies a captured TS segment is sane before it is fed
// to the concat demuxer: the file must be non-empty, start on a sync byte
// and contain a Program Association Table. Corrupt segments fail here with a
// useful error instead of producing a silently broken MP4.
func PreflightSegment(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening segment: %w", err)
	}
	defer f.Close()

	header := make([]byte, 1)
	n, err := f.Read(header)
	if err == io.EOF || n == 0 {
		return fmt.Errorf("segment %s is empty", path)
	}
	if err != nil {
		return fmt.Errorf("reading segment: %w", err)
	}
	if header[0] != tsSyncByte {
		return fmt.Errorf("segment %s does not start with a TS sync byte (got 0x%02x)", path, header[0])
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding segment: %w", err)
	}

	dmx := astits.NewDemuxer(ctx, io.LimitReader(f, preflightReadLimit))
	packets := 0
	for packets < preflightMaxPackets {
		data, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				break
			}
			return fmt.Errorf("demuxing segment %s: %w", path, err)
		}
		packets++
		if data.PAT != nil {
			return nil
		}
	}
	return fmt.Errorf("segment %s carries no program association table", path)
}

// PreflightSegments runs PreflightSegment over every path, stopping at the
// first failure.
func PreflightSegments(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := PreflightSegment(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
