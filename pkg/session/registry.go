package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/pagepool/pkg/engine"
	"github.com/entrhq/pagepool/pkg/retry"
	"github.com/entrhq/pagepool/pkg/usage"
)

// Config bounds the registry.
type Config struct {
	// MaxSessions caps the number of live sessions, enforced at creation.
	MaxSessions int

	// MaxRequestsPerSession caps operations per session; at the cap the
	// session closes and a fresh one is required.
	MaxRequestsPerSession int

	// SessionTimeout is the idle duration after which the reaper closes a
	// session.
	SessionTimeout time.Duration

	// OperationTimeout bounds a serialized operation when the caller's
	// context carries no deadline of its own.
	OperationTimeout time.Duration
}

// Configuration defaults, kept in one place so tests and the config loader
// agree.
const (
	DefaultMaxSessions           = 5
	DefaultMaxRequestsPerSession = 20
	DefaultSessionTimeout        = 5 * time.Minute
	DefaultOperationTimeout      = 30 * time.Second
)

// WithDefaults fills zero fields with the package defaults.
func (c Config) WithDefaults() Config {
	if c.MaxSessions == 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.MaxRequestsPerSession == 0 {
		c.MaxRequestsPerSession = DefaultMaxRequestsPerSession
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	return c
}

// Registry owns the map of live sessions. The registry lock guards only
// the slot table: the capacity check-and-reserve step performs no I/O, and
// all per-session work happens outside it. Reserved slots count toward
// capacity so a concurrent launch can never overshoot the cap.
type Registry struct {
	cfg        Config
	controller *Controller
	monitor    *usage.Monitor
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	reserved map[string]chan struct{}
}

// NewRegistry creates a registry backed by the given controller.
func NewRegistry(cfg Config, controller *Controller, monitor *usage.Monitor, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:        cfg.WithDefaults(),
		controller: controller,
		monitor:    monitor,
		logger:     logger,
		sessions:   make(map[string]*Session),
		reserved:   make(map[string]chan struct{}),
	}
}

// Config returns the registry's effective configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

// liveLocked counts sessions plus in-flight reservations. Caller holds r.mu.
func (r *Registry) liveLocked() int {
	return len(r.sessions) + len(r.reserved)
}

// Create creates a session under the given id, or a generated one when id
// is empty. The capacity slot is reserved before the launch and released
// atomically if the launch fails, so a failed launch leaves no phantom
// session behind.
func (r *Registry) Create(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = uuid.New().String()
	}

	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrSessionExists, id)
	}
	if _, ok := r.reserved[id]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrSessionExists, id)
	}
	if r.liveLocked() >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: limit %d", ErrCapacityExceeded, r.cfg.MaxSessions)
	}
	done := make(chan struct{})
	r.reserved[id] = done
	r.mu.Unlock()

	handle, err := r.controller.Acquire(ctx, id)
	if err != nil {
		r.mu.Lock()
		delete(r.reserved, id)
		r.mu.Unlock()
		close(done)
		return nil, err
	}

	s := newSession(id, handle)

	r.mu.Lock()
	delete(r.reserved, id)
	r.sessions[id] = s
	live := r.liveLocked()
	r.mu.Unlock()
	close(done)

	r.monitor.SessionCreated(live)
	r.logger.Info("session created", "session", id, "uid", s.UID, "live", live)
	return s, nil
}

// GetOrCreate returns the existing active session under id, touching its
// activity timestamp, or creates a new one. Concurrent calls for the same
// absent id converge on a single launch: losers of the creation race wait
// for the winner's reservation to resolve and return the winner's session.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return r.Create(ctx, id)
	}

	for {
		r.mu.Lock()
		if s, ok := r.sessions[id]; ok && s.Status() == StatusActive {
			s.touch()
			r.mu.Unlock()
			return s, nil
		}
		pending, inFlight := r.reserved[id]
		r.mu.Unlock()

		if inFlight {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-pending:
			}
			continue
		}

		s, err := r.Create(ctx, id)
		if err != nil && errors.Is(err, ErrSessionExists) {
			// Lost the creation race after the reservation check; loop to
			// pick up the winner's session.
			continue
		}
		return s, err
	}
}

// Get returns the live session under id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return s, nil
}

// ListSessions returns a metadata snapshot of all live sessions, sorted by
// id. The snapshot never exposes engine handles.
func (r *Registry) ListSessions() []Metadata {
	r.mu.Lock()
	metas := make([]Metadata, 0, len(r.sessions))
	for _, s := range r.sessions {
		metas = append(metas, s.Metadata())
	}
	r.mu.Unlock()

	sort.Slice(metas, func(i, j int) bool { return metas[i].ID < metas[j].ID })
	return metas
}

// Live returns the current live session count, including reservations.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveLocked()
}

// CloseSession closes the session under id. Idempotent: closing an unknown
// or already-closed id is a no-op. The capacity slot is freed and the
// session marked closed regardless of the release outcome.
func (r *Registry) CloseSession(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	r.closeOwned(s, usage.ReasonExplicit, false)
}

// detachOwned removes exactly this session from the slot table, by
// identity, so a successor created under the same id is never evicted by a
// stale closer. Returns whether this caller performed the removal.
func (r *Registry) detachOwned(s *Session, reason usage.CloseReason) bool {
	r.mu.Lock()
	current, ok := r.sessions[s.ID]
	if !ok || current != s {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.ID)
	live := r.liveLocked()
	r.mu.Unlock()

	r.monitor.SessionClosed(reason, live)
	r.logger.Info("session closed", "session", s.ID, "reason", string(reason), "live", live)
	return true
}

// closeOwned detaches the session and releases its handle. markClosing
// elects a single closer, so the handle is released at most once even when
// an explicit close, the reaper, and a forced close race. locked reports
// whether the caller already holds s.mu.
func (r *Registry) closeOwned(s *Session, reason usage.CloseReason, locked bool) {
	r.detachOwned(s, reason)

	if !s.markClosing() {
		return
	}
	if !locked {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	r.controller.releaseLocked(s)
	s.markClosed()
}

// WithSession runs fn against the session's handle under the session's
// exclusion lock. At most one operation runs on a session at a time; the
// lock is held for the duration of fn and released on completion, error,
// or cancellation.
//
// The request cap is enforced before fn runs: a session at its allowance
// is closed and the operation rejected without touching the handle. An
// unhealthy handle is replaced in place before fn runs. A deadline is
// applied when the caller's context has none. Timeout or cancellation
// force-closes the session, since the handle's state afterward is
// unreliable.
func (r *Registry) WithSession(ctx context.Context, id string, fn func(ctx context.Context, h engine.Handle) error) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() != StatusActive {
		return fmt.Errorf("%w: %q", ErrSessionClosed, id)
	}

	if s.requestCount.Load() >= int64(r.cfg.MaxRequestsPerSession) {
		r.closeOwned(s, usage.ReasonLimit, true)
		return fmt.Errorf("%w: %q served %d requests", ErrSessionExhausted, id, s.requestCount.Load())
	}

	if !r.controller.healthyLocked(s) {
		if err := r.controller.refreshLocked(ctx, s); err != nil {
			r.closeOwned(s, usage.ReasonError, true)
			return err
		}
	}

	opCtx := ctx
	cancel := func() {}
	if _, has := ctx.Deadline(); !has && r.cfg.OperationTimeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, r.cfg.OperationTimeout)
	}
	defer cancel()

	start := time.Now()
	err := fn(opCtx, s.handle)
	elapsed := time.Since(start)

	s.requestCount.Add(1)
	s.touch()

	if err == nil {
		r.monitor.RequestSucceeded(elapsed)
		return nil
	}

	kind := retry.Classify(err)
	r.monitor.RequestFailed(kind, elapsed)

	switch {
	case errors.Is(opCtx.Err(), context.DeadlineExceeded) || kind == retry.KindTimeout:
		r.closeOwned(s, usage.ReasonError, true)
		return fmt.Errorf("%w: %w", ErrOperationTimeout, err)
	case errors.Is(opCtx.Err(), context.Canceled):
		// Canceled mid-operation: the handle may be in an indeterminate
		// state, so the session does not return to the pool.
		r.closeOwned(s, usage.ReasonError, true)
		return err
	}

	return err
}

// idleSessions returns live sessions whose idle duration at now exceeds
// the session timeout.
func (r *Registry) idleSessions(now time.Time) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []*Session
	for _, s := range r.sessions {
		if s.Status() != StatusActive {
			continue
		}
		if now.Sub(s.LastActivity()) > r.cfg.SessionTimeout {
			stale = append(stale, s)
		}
	}
	return stale
}

// Shutdown closes every live session. Releases stay bounded by the
// controller's release timeout, so shutdown converges even with wedged
// handles.
func (r *Registry) Shutdown(_ context.Context) {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		r.closeOwned(s, usage.ReasonExplicit, false)
	}
}
