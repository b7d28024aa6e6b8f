package supervisor

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// downloadRegex matches the capture tool's progress line, e.g.
//
//	[download] Written 24.50 MB (1m25s @ 295.0 KB/s)
var downloadRegex = regexp.MustCompile(`\[download\]\s+Written\s+([\d.]+)\s+([KMGT]?i?B)\s+\((\S+?)\s*(?:@|\))`)

// progressSnapshot is what the parser has extracted so far.
type progressSnapshot struct {
	DurationSeconds *float64
	BytesWritten    int64
	UpdatedAt       time.Time
}

// progressParser consumes the capture tool's output line by line and keeps
// the latest progress. Lines it cannot parse are ignored; if nothing ever
// parses, DurationSeconds stays nil and callers degrade to heartbeat-only
// reporting.
type progressParser struct {
	mu   sync.Mutex
	snap progressSnapshot
	buf  bytes.Buffer
}

func newProgressParser() *progressParser {
	return &progressParser{snap: progressSnapshot{UpdatedAt: time.Now()}}
}

// Write implements io.Writer; it never fails so logging tees keep working.
func (p *progressParser) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)
	for {
		line, err := p.buf.ReadString('\n')
		if err != nil {
			// Progress lines end with \r; keep the partial tail otherwise.
			if i := strings.LastIndexByte(line, '\r'); i >= 0 {
				p.parseLine(line[:i])
				p.buf.Reset()
				p.buf.WriteString(line[i+1:])
			} else {
				p.buf.Reset()
				p.buf.WriteString(line)
			}
			break
		}
		p.parseLine(strings.TrimRight(line, "\r\n"))
	}
	return len(data), nil
}

func (p *progressParser) parseLine(line string) {
	m := downloadRegex.FindStringSubmatch(line)
	if m == nil {
		return
	}

	if n, ok := parseSize(m[1], m[2]); ok {
		p.snap.BytesWritten = n
	}
	if d, err := time.ParseDuration(normalizeElapsed(m[3])); err == nil {
		secs := d.Seconds()
		p.snap.DurationSeconds = &secs
	}
	p.snap.UpdatedAt = time.Now()
}

// Snapshot returns the latest parsed progress.
func (p *progressParser) Snapshot() progressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// parseSize converts "24.50" + "MB" to bytes.
func parseSize(value, unit string) (int64, bool) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	mult := float64(1)
	switch strings.ToUpper(strings.TrimSuffix(strings.ToUpper(unit), "IB")) {
	case "B":
		mult = 1
	case "K", "KB":
		mult = 1 << 10
	case "M", "MB":
		mult = 1 << 20
	case "G", "GB":
		mult = 1 << 30
	case "T", "TB":
		mult = 1 << 40
	default:
		return 0, false
	}
	return int64(f * mult), true
}

// normalizeElapsed maps the tool's elapsed form onto time.ParseDuration
// syntax ("1m25s" parses as-is, "25s" too; "1h02m03s" needs no change).
func normalizeElapsed(s string) string {
	return strings.TrimSpace(s)
}
