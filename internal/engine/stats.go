package engine

import (
	"sync"
	"sync/atomic"
)

// statsWindow counts delivered, skipped and discarded frames over a window
// of draws and raises DroppedFrames when too many were lost in a row
type statsWindow struct {
	mu        sync.Mutex
	draws     int
	skips     int
	discards  int
	badStreak int
	warned    bool

	totalDelivered atomic.Uint64
	totalSkipped   atomic.Uint64
	totalDiscarded atomic.Uint64
	displayed      atomic.Uint64
	duplicated     atomic.Uint64
	warnings       atomic.Uint64
}

func (s *statsWindow) skipped(n int) {
	s.totalSkipped.Add(uint64(n))
	s.mu.Lock()
	s.skips += n
	s.mu.Unlock()
}

func (s *statsWindow) discarded(n int) {
	s.totalDiscarded.Add(uint64(n))
	s.mu.Lock()
	s.discards += n
	s.mu.Unlock()
}

// delivered counts a draw and closes the window every StatsWindow draws
func (s *statsWindow) delivered(e *Engine) {
	s.totalDelivered.Add(1)

	s.mu.Lock()
	s.draws++
	if s.draws < e.opts.StatsWindow {
		s.mu.Unlock()
		return
	}
	skipPct := float64(s.skips) * 100 / float64(s.draws)
	discardPct := float64(s.discards) * 100 / float64(s.draws)
	s.draws, s.skips, s.discards = 0, 0, 0

	over := skipPct > float64(e.opts.SkipThreshold) || discardPct > float64(e.opts.DiscardThreshold)
	fire := false
	if over {
		s.badStreak++
		if s.badStreak >= e.opts.WarnWindows && !s.warned {
			s.warned = true
			fire = true
		}
	} else {
		s.badStreak = 0
		s.warned = false
	}
	s.mu.Unlock()

	if !fire {
		return
	}
	s.warnings.Add(1)
	e.log.Warn().
		Float64("skipped_pct", skipPct).
		Float64("discarded_pct", discardPct).
		Int("skip_threshold", e.opts.SkipThreshold).
		Int("discard_threshold", e.opts.DiscardThreshold).
		Msg("Too many frames dropped, system may be too slow")
	e.events.publish(Event{
		Type: EventDroppedFrames,
		Dropped: &DroppedFrames{
			SkippedPercent:   skipPct,
			DiscardedPercent: discardPct,
			SkipThreshold:    e.opts.SkipThreshold,
			DiscardThreshold: e.opts.DiscardThreshold,
		},
	})
}

// Stats is a snapshot of engine-wide counters
type Stats struct {
	PoolSize      int    `json:"pool_size"`
	Free          int    `json:"free"`
	InFlight      int    `json:"in_flight"`
	DisplayQueued int    `json:"display_queued"`
	PeakDisplay   int    `json:"peak_display"`
	Delivered     uint64 `json:"delivered"`
	Skipped       uint64 `json:"skipped"`
	Discarded     uint64 `json:"discarded"`
	Displayed     uint64 `json:"displayed"`
	Duplicated    uint64 `json:"duplicated"`
	Warnings      uint64 `json:"warnings"`
	Streams       int    `json:"streams"`
	PendingGrabs  int    `json:"pending_grabs"`
	Clock         int64  `json:"clock"`
	State         State  `json:"state"`
	Driver        string `json:"driver"`
}

// Stats returns current counters
func (e *Engine) Stats() Stats {
	free := e.free.Count()
	e.display.Lock()
	queued, peak := e.display.Len(), e.display.Peak()
	e.display.Unlock()

	return Stats{
		PoolSize:      len(e.frames),
		Free:          free,
		InFlight:      len(e.frames) - free,
		DisplayQueued: queued,
		PeakDisplay:   peak,
		Delivered:     e.stats.totalDelivered.Load(),
		Skipped:       e.stats.totalSkipped.Load(),
		Discarded:     e.stats.totalDiscarded.Load(),
		Displayed:     e.stats.displayed.Load(),
		Duplicated:    e.stats.duplicated.Load(),
		Warnings:      e.stats.warnings.Load(),
		Streams:       e.NumStreams(),
		PendingGrabs:  e.PendingGrabs(),
		Clock:         e.clk.CurrentTime(),
		State:         e.State(),
		Driver:        e.Driver().Name(),
	}
}
