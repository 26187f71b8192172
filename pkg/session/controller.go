package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/entrhq/pagepool/pkg/engine"
	"github.com/entrhq/pagepool/pkg/retry"
	"github.com/entrhq/pagepool/pkg/usage"
)

// DefaultReleaseTimeout bounds a best-effort handle release. Closure is
// guaranteed even when release hangs, so a wedged engine cannot leak a
// capacity slot.
const DefaultReleaseTimeout = 10 * time.Second

// Controller acquires and releases engine handles on behalf of the
// registry. Launches go through the retry executor; releases are
// best-effort and bounded.
type Controller struct {
	provider       engine.Provider
	executor       *retry.Executor
	monitor        *usage.Monitor
	logger         *slog.Logger
	launchCfg      engine.LaunchConfig
	releaseTimeout time.Duration
}

// NewController wires a controller to its provider and retry policy.
func NewController(provider engine.Provider, executor *retry.Executor, monitor *usage.Monitor, logger *slog.Logger, launchCfg engine.LaunchConfig) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		provider:       provider,
		executor:       executor,
		monitor:        monitor,
		logger:         logger,
		launchCfg:      launchCfg.WithDefaults(),
		releaseTimeout: DefaultReleaseTimeout,
	}
}

// SetReleaseTimeout overrides the release bound.
func (c *Controller) SetReleaseTimeout(d time.Duration) {
	if d > 0 {
		c.releaseTimeout = d
	}
}

// Acquire launches an engine instance for the session, retrying transient
// launch failures per policy. A quota-classified failure short-circuits
// with no retry and surfaces verbatim. A failed launch attempt leaves no
// partial resources behind: the provider tears down partially built
// browser/context/page triples before returning.
func (c *Controller) Acquire(ctx context.Context, sessionID string) (engine.Handle, error) {
	h, err := retry.DoValue(ctx, c.executor, func(ctx context.Context) (engine.Handle, error) {
		return c.provider.Launch(ctx, c.launchCfg)
	}, nil)
	if err != nil {
		c.monitor.RecordError(retry.KindOf(err))
		c.logger.Warn("engine launch failed",
			"session", sessionID,
			"kind", string(retry.KindOf(err)),
			"error", err)
		return nil, err
	}
	return h, nil
}

// releaseLocked closes the session's handle, best-effort and bounded by
// the release timeout. The caller must hold s.mu. The handle reference is
// cleared first so it can never be released twice. Failures are recorded
// and logged but never surfaced: release is a side effect of closing, not
// the requested operation.
func (c *Controller) releaseLocked(s *Session) {
	h := s.handle
	if h == nil {
		return
	}
	s.handle = nil
	c.monitor.AddEngineTime(time.Since(s.acquiredAt))

	done := make(chan error, 1)
	go func() { done <- h.Close() }()

	select {
	case err := <-done:
		if err != nil {
			c.monitor.ReleaseFailed()
			c.logger.Warn("handle release failed", "session", s.ID, "error", err)
		}
	case <-time.After(c.releaseTimeout):
		c.monitor.ReleaseFailed()
		c.logger.Warn("handle release timed out", "session", s.ID, "timeout", c.releaseTimeout)
	}
}

// healthyLocked reports whether the session's handle is usable. The caller
// must hold s.mu.
func (c *Controller) healthyLocked(s *Session) bool {
	return s.handle != nil && s.handle.Connected()
}

// refreshLocked replaces an unhealthy handle in place: the stale handle is
// released best-effort and a new one acquired through the normal retry
// path. Recorded as an implicit failure; the caller surfaces an error only
// if the re-acquisition itself fails. The caller must hold s.mu.
func (c *Controller) refreshLocked(ctx context.Context, s *Session) error {
	c.monitor.HandleRefreshed()
	c.logger.Info("refreshing unhealthy handle", "session", s.ID)

	c.releaseLocked(s)

	h, err := c.Acquire(ctx, s.ID)
	if err != nil {
		return err
	}
	s.handle = h
	s.acquiredAt = time.Now()
	return nil
}
