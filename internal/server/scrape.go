package server

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vesaa/neonboard/internal/metrics"
	"github.com/vesaa/neonboard/internal/models"
)

// SessionSource yields the Tautulli session aggregate.
type SessionSource interface {
	Collect(ctx context.Context) (models.SessionAggregate, error)
}

// MountSource resolves the local download mount. It must always return a path.
type MountSource interface {
	Resolve(ctx context.Context) (string, error)
}

// SystemSource fills the system part of a snapshot, recording failures on it.
type SystemSource interface {
	Collect(ctx context.Context, downloadsPath string, snap *models.Snapshot)
}

// Scraper runs one synchronous collection pass per scrape:
// collect every source, write the registry, render it.
type Scraper struct {
	sessions SessionSource
	mounts   MountSource
	system   SystemSource
	registry *metrics.Registry
	log      zerolog.Logger
	now      func() time.Time
}

// NewScraper wires the collectors to the registry.
func NewScraper(sessions SessionSource, mounts MountSource, system SystemSource, reg *metrics.Registry, log zerolog.Logger) *Scraper {
	return &Scraper{
		sessions: sessions,
		mounts:   mounts,
		system:   system,
		registry: reg,
		log:      log,
		now:      time.Now,
	}
}

// Collect gathers one snapshot. Source failures are logged and recorded on
// the snapshot; they never abort the pass.
func (s *Scraper) Collect(ctx context.Context) *models.Snapshot {
	start := s.now()
	snap := models.NewSnapshot()

	agg, err := s.sessions.Collect(ctx)
	snap.Sessions = agg
	snap.Fail(models.SourceTautulli, err)

	mount, err := s.mounts.Resolve(ctx)
	snap.DownloadMount = mount
	snap.Fail(models.SourceQBittorrent, err)

	s.system.Collect(ctx, mount, snap)

	snap.Duration = s.now().Sub(start)
	for _, src := range models.AllSources {
		if err, failed := snap.Failed[src]; failed {
			s.log.Warn().Err(err).Str("source", string(src)).Msg("collection failed")
		}
	}
	s.log.Debug().
		Dur("duration", snap.Duration).
		Int("failed", len(snap.Failed)).
		Str("download_mount", mount).
		Msg("collection pass complete")
	return snap
}

// Scrape collects, applies the snapshot to the registry and renders it.
// The only error it returns is a rendering fault.
func (s *Scraper) Scrape(ctx context.Context) ([]byte, error) {
	snap := s.Collect(ctx)
	s.registry.Apply(snap)

	body, err := s.registry.RenderBytes()
	if err != nil {
		return nil, fmt.Errorf("rendering metrics: %w", err)
	}
	return body, nil
}
