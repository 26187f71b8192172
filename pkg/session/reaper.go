package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/entrhq/pagepool/pkg/usage"
)

// DefaultReaperInterval is the default sweep period.
const DefaultReaperInterval = time.Minute

// Reaper periodically closes sessions past their idle deadline. Sweep
// interval and idle timeout are independent: a session can outlive its
// idle point by up to SessionTimeout + interval, which is a documented
// property of the sweep model.
type Reaper struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger
}

// NewReaper creates a reaper over the registry.
func NewReaper(registry *Registry, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		registry: registry,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on a fixed interval until the context is canceled.
func (rp *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rp.Sweep(time.Now())
		}
	}
}

// Sweep closes every session whose idle duration at now exceeds the
// registry's session timeout, and returns how many it closed. A failure
// closing one session never aborts the sweep for the rest.
func (rp *Reaper) Sweep(now time.Time) int {
	stale := rp.registry.idleSessions(now)
	closed := 0
	for _, s := range stale {
		s.markIdlePending()
		func() {
			defer func() {
				if p := recover(); p != nil {
					rp.logger.Error("panic closing idle session", "session", s.ID, "panic", p)
				}
			}()
			rp.registry.closeOwned(s, usage.ReasonIdle, false)
			closed++
		}()
	}
	if closed > 0 {
		rp.logger.Info("idle sweep closed sessions", "closed", closed)
	}
	return closed
}
