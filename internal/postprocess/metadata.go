package postprocess

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/queue"
)

const (
	// synthesizedChapterInterval spaces fallback chapters when no real
	// category/title change events were captured.
	synthesizedChapterInterval = 10 * time.Minute
	// maxSynthesizedChapters caps the fallback cue count.
	maxSynthesizedChapters = 20
)

// chapterCue is one chapter in sidecar-neutral form.
type chapterCue struct {
	Title string
	Start time.Duration
	End   time.Duration
}

// episodeNFO is the media-server episode sidecar document.
type episodeNFO struct {
	XMLName   xml.Name `xml:"episodedetails"`
	Title     string   `xml:"title"`
	ShowTitle string   `xml:"showtitle"`
	Season    int      `xml:"season"`
	Episode   int      `xml:"episode"`
	Plot      string   `xml:"plot,omitempty"`
	Aired     string   `xml:"aired"`
	Studio    string   `xml:"studio,omitempty"`
}

// generateNFO writes the episode NFO sidecar next to the MP4 target and
// records its path.
func (p *Pipeline) generateNFO(ctx context.Context, sp queue.StepPayload, progress func(float64)) error {
	stream, streamer, err := p.loadEpisodeContext(ctx, sp)
	if err != nil {
		return err
	}
	progress(30)

	season, _ := strconv.Atoi(stream.SeasonKey())
	doc := episodeNFO{
		Title:     stream.Title,
		ShowTitle: streamer.Name(),
		Season:    season,
		Episode:   stream.EpisodeNumber,
		Plot:      nfoPlot(stream),
		Aired:     stream.StartedAt.UTC().Format("2006-01-02"),
		Studio:    "Twitch",
	}
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding nfo: %w", err)
	}
	body = append([]byte(xml.Header), body...)

	nfoPath := sidecarPath(sp.TSPath, ".nfo")
	if err := p.writeSidecar(nfoPath, body); err != nil {
		return err
	}
	progress(80)

	return p.persistSidecar(ctx, sp.StreamID, func(meta *models.StreamMetadata) {
		meta.NFOPath = nfoPath
	})
}

func nfoPlot(stream *models.Stream) string {
	var parts []string
	if stream.CategoryName != "" {
		parts = append(parts, "Category: "+stream.CategoryName)
	}
	parts = append(parts, "Recorded live on "+stream.StartedAt.UTC().Format("2006-01-02 15:04 MST"))
	return strings.Join(parts, ". ")
}

// generateChapters writes the WebVTT and FFmpeg chapter sidecars. Real
// category/title change events drive the cues; without any, chapters are
// synthesized at ten-minute intervals.
func (p *Pipeline) generateChapters(ctx context.Context, sp queue.StepPayload, progress func(float64)) error {
	stream, _, err := p.loadEpisodeContext(ctx, sp)
	if err != nil {
		return err
	}

	duration, err := p.recordingDuration(ctx, sp, stream)
	if err != nil {
		return err
	}
	progress(20)

	rows, err := p.chapters.GetByStream(ctx, sp.StreamID)
	if err != nil {
		return err
	}
	cues := buildCues(stream, rows, duration)
	progress(50)

	vttPath := sidecarPath(sp.TSPath, ".vtt")
	if err := p.writeSidecar(vttPath, []byte(renderVTT(cues))); err != nil {
		return err
	}
	ffmetaPath := sidecarPath(sp.TSPath, ".chapters.ffmeta")
	if err := p.writeSidecar(ffmetaPath, []byte(renderFFMeta(cues))); err != nil {
		return err
	}
	progress(90)

	return p.persistSidecar(ctx, sp.StreamID, func(meta *models.StreamMetadata) {
		meta.VTTChaptersPath = vttPath
		meta.FFmpegChaptersPath = ffmetaPath
	})
}

// recordingDuration resolves the chapter timeline length: the recording's
// measured duration, falling back to the stream's wall-clock span.
func (p *Pipeline) recordingDuration(ctx context.Context, sp queue.StepPayload, stream *models.Stream) (time.Duration, error) {
	rec, err := p.recs.GetByID(ctx, sp.RecordingID)
	if err != nil {
		return 0, err
	}
	if rec != nil && rec.DurationSeconds != nil && *rec.DurationSeconds > 0 {
		return time.Duration(*rec.DurationSeconds * float64(time.Second)), nil
	}
	if stream.EndedAt != nil {
		return stream.EndedAt.Sub(stream.StartedAt), nil
	}
	return 0, fmt.Errorf("recording %s has no usable duration", sp.RecordingID)
}

// buildCues converts chapter rows into cues, or synthesizes interval cues
// when no events exist.
func buildCues(stream *models.Stream, rows []*models.Chapter, duration time.Duration) []chapterCue {
	if len(rows) == 0 {
		return synthesizeCues(stream.Title, duration)
	}

	cues := make([]chapterCue, 0, len(rows)+1)
	// An implicit opening chapter covers playback before the first event.
	if rows[0].StartOffsetSeconds > 0 {
		title := stream.Title
		if title == "" {
			title = "Start"
		}
		cues = append(cues, chapterCue{Title: title})
	}
	for _, row := range rows {
		title := row.Title
		if title == "" {
			title = row.CategoryName
		}
		cues = append(cues, chapterCue{
			Title: title,
			Start: time.Duration(row.StartOffsetSeconds * float64(time.Second)),
		})
	}
	for i := range cues {
		if i+1 < len(cues) {
			cues[i].End = cues[i+1].Start
		} else {
			cues[i].End = duration
		}
	}
	return clampCues(cues, duration)
}

// synthesizeCues produces interval cues, capped. The opening cue is titled
// with the bare stream title; subsequent cues add part numbering.
func synthesizeCues(title string, duration time.Duration) []chapterCue {
	if duration <= 0 {
		return nil
	}
	// Ceiling division: a cue never starts at or past the end of the
	// recording.
	n := int((duration + synthesizedChapterInterval - 1) / synthesizedChapterInterval)
	if n > maxSynthesizedChapters {
		n = maxSynthesizedChapters
	}

	label := title
	if label == "" {
		label = "Part"
	}
	cues := make([]chapterCue, 0, n)
	for i := 0; i < n; i++ {
		// The opening cue carries the bare title; later cues get part
		// numbering.
		cueTitle := label
		if i > 0 {
			cueTitle = fmt.Sprintf("%s (%d/%d)", label, i+1, n)
		}
		start := time.Duration(i) * synthesizedChapterInterval
		end := start + synthesizedChapterInterval
		if i == n-1 || end > duration {
			end = duration
		}
		cues = append(cues, chapterCue{
			Title: cueTitle,
			Start: start,
			End:   end,
		})
	}
	return clampCues(cues, duration)
}

// clampCues drops cues past the end of the recording and bounds end times.
func clampCues(cues []chapterCue, duration time.Duration) []chapterCue {
	if duration <= 0 {
		return cues
	}
	out := cues[:0]
	for _, c := range cues {
		if c.Start >= duration {
			continue
		}
		if c.End > duration || c.End == 0 {
			c.End = duration
		}
		out = append(out, c)
	}
	return out
}

// renderVTT renders WebVTT chapter cues.
func renderVTT(cues []chapterCue) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for i, c := range cues {
		fmt.Fprintf(&b, "\n%d\n%s --> %s\n%s\n", i+1, vttTimestamp(c.Start), vttTimestamp(c.End), c.Title)
	}
	return b.String()
}

// vttTimestamp formats a duration as HH:MM:SS.mmm.
func vttTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// renderFFMeta renders the ;FFMETADATA1 chapter sidecar with a millisecond
// timebase.
func renderFFMeta(cues []chapterCue) string {
	var b strings.Builder
	b.WriteString(";FFMETADATA1\n")
	for _, c := range cues {
		b.WriteString("\n[CHAPTER]\nTIMEBASE=1/1000\n")
		fmt.Fprintf(&b, "START=%d\n", c.Start.Milliseconds())
		fmt.Fprintf(&b, "END=%d\n", c.End.Milliseconds())
		fmt.Fprintf(&b, "title=%s\n", escapeFFMeta(c.Title))
	}
	return b.String()
}

// escapeFFMeta escapes the characters the ffmetadata parser treats
// specially.
func escapeFFMeta(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `=`, `\=`, `;`, `\;`, `#`, `\#`, "\n", `\`+"\n")
	return r.Replace(s)
}

// loadEpisodeContext loads the stream and streamer for a step, resolving
// the streamer through the payload hint when the row is gone.
func (p *Pipeline) loadEpisodeContext(ctx context.Context, sp queue.StepPayload) (*models.Stream, *models.Streamer, error) {
	stream, err := p.streams.GetByID(ctx, sp.StreamID)
	if err != nil {
		return nil, nil, err
	}
	if stream == nil {
		return nil, nil, fmt.Errorf("stream %s: %w", sp.StreamID, models.ErrNotFound)
	}

	streamer, err := p.streamers.GetByID(ctx, stream.StreamerID)
	if err != nil {
		return nil, nil, err
	}
	if streamer == nil {
		name := sp.StreamerName
		if name == "" {
			name = "streamer_" + stream.StreamerID.String()
		}
		streamer = &models.Streamer{Username: name, DisplayName: name}
	}
	return stream, streamer, nil
}

// writeSidecar writes a sidecar atomically through the vault.
func (p *Pipeline) writeSidecar(absPath string, data []byte) error {
	rel, err := p.vault.Rel(absPath)
	if err != nil {
		return err
	}
	if err := p.vault.WriteSidecar(rel, data); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// persistSidecar updates the stream's sidecar bookkeeping row.
func (p *Pipeline) persistSidecar(ctx context.Context, streamID models.ULID, mutate func(*models.StreamMetadata)) error {
	meta, err := p.meta.GetByStreamID(ctx, streamID)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = &models.StreamMetadata{StreamID: streamID}
	}
	mutate(meta)
	return p.meta.Upsert(ctx, meta)
}
