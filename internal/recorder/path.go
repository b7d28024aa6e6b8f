package recorder

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/repository"
	"github.com/streamvault/streamvault/internal/storage"
	"github.com/streamvault/streamvault/internal/util"
)

// PlannedPath is the filesystem plan for one capture.
type PlannedPath struct {
	// EpisodeNumber is the assigned monthly episode number.
	EpisodeNumber int
	// SeasonKey is the YYYYMM season bucket.
	SeasonKey string
	// RelTSPath is the capture target relative to the recordings root:
	// <streamer>/Season YYYY-MM/<streamer> - SYYYYMMEnn - <title>.ts
	RelTSPath string
	// AbsTSPath is RelTSPath resolved under the root, parents created.
	AbsTSPath string
}

// PathPlanner assigns monthly episode numbers and derives capture paths.
// Assignment is serialized so two captures starting in the same instant
// cannot draw the same number.
type PathPlanner struct {
	vault   *storage.Vault
	streams repository.StreamRepository

	mu sync.Mutex
}

// NewPathPlanner creates a PathPlanner.
func NewPathPlanner(vault *storage.Vault, streams repository.StreamRepository) *PathPlanner {
	return &PathPlanner{vault: vault, streams: streams}
}

// Plan assigns the next episode number for the stream's (streamer, YYYYMM)
// bucket, persists it onto the stream, and returns the capture path. The
// number is written while the planner lock is held: a concurrent plan for
// the same streamer must observe it as taken before the lock is released.
func (p *PathPlanner) Plan(ctx context.Context, stream *models.Stream, streamer *models.Streamer) (PlannedPath, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := stream.StartedAt.UTC()
	from := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	episode := stream.EpisodeNumber
	if episode == 0 {
		max, err := p.streams.MaxEpisodeNumber(ctx, stream.StreamerID, from, to)
		if err != nil {
			return PlannedPath{}, fmt.Errorf("finding max episode number: %w", err)
		}
		episode = max + 1
		stream.EpisodeNumber = episode
		if err := p.streams.Update(ctx, stream); err != nil {
			stream.EpisodeNumber = 0
			return PlannedPath{}, fmt.Errorf("persisting episode number: %w", err)
		}
	}

	name := util.SanitizeFilename(streamer.Name())
	title := util.SanitizeFilename(stream.Title)
	seasonKey := start.Format("200601")

	base := fmt.Sprintf("%s - S%sE%02d - %s", name, seasonKey, episode, title)
	rel := filepath.Join(name, "Season "+start.Format("2006-01"), base+".ts")

	if _, err := p.vault.MkdirAll(filepath.Dir(rel)); err != nil {
		return PlannedPath{}, fmt.Errorf("creating season directory: %w", err)
	}
	abs, err := p.vault.Resolve(rel)
	if err != nil {
		return PlannedPath{}, err
	}

	return PlannedPath{
		EpisodeNumber: episode,
		SeasonKey:     seasonKey,
		RelTSPath:     rel,
		AbsTSPath:     abs,
	}, nil
}
