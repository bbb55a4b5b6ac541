package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically evicts sessions older than the retention window
type Sweeper struct {
	tracker   *Tracker
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	onEvict   func(n int)
}

// NewSweeper creates a sweeper. onEvict may be nil.
func NewSweeper(tracker *Tracker, interval, retention time.Duration, logger *slog.Logger, onEvict func(n int)) *Sweeper {
	return &Sweeper{
		tracker:   tracker,
		interval:  interval,
		retention: retention,
		logger:    logger,
		onEvict:   onEvict,
	}
}

// Run sweeps on every tick until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("Session sweeper started", "interval", s.interval, "retention", s.retention)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Session sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	n := s.tracker.Sweep(s.retention)
	if n == 0 {
		return
	}
	s.logger.Info("Evicted expired sessions", "count", n, "remaining", s.tracker.Len())
	if s.onEvict != nil {
		s.onEvict(n)
	}
}
