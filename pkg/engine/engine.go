// Package engine defines the boundary to the underlying headless-browser
// engine. A Provider launches engine instances; each launch yields a Handle,
// an opaque connection owned by exactly one session at a time. Handles are
// not safe for concurrent use; serialization is the session layer's job.
//
// Two providers exist: PlaywrightProvider drives real Chromium instances
// through the Playwright driver, and MockProvider produces deterministic
// in-memory handles for tests and dry runs. The choice is made once at
// construction from configuration, never at call sites.
package engine

import (
	"context"
	"errors"
	"time"
)

// ErrQuotaExceeded signals that the provider's daily engine-time quota is
// exhausted. It is never retried; callers surface it verbatim so the
// consumer can switch strategy instead of hammering a ceiling.
var ErrQuotaExceeded = errors.New("engine quota exceeded")

// LaunchConfig configures a single engine launch.
type LaunchConfig struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int

	// DefaultTimeout bounds individual page operations on the handle.
	DefaultTimeout time.Duration
}

// Default launch values, matching the session manager's historical defaults.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultTimeout        = 30 * time.Second
)

// WithDefaults fills zero fields with the package defaults.
func (c LaunchConfig) WithDefaults() LaunchConfig {
	if c.ViewportWidth == 0 {
		c.ViewportWidth = DefaultViewportWidth
	}
	if c.ViewportHeight == 0 {
		c.ViewportHeight = DefaultViewportHeight
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	return c
}

// Provider launches browser engine instances.
type Provider interface {
	// Start prepares the provider (driver install, daemon startup). It is
	// idempotent and must be called before Launch.
	Start(ctx context.Context) error

	// Launch starts one engine instance and returns its handle. A quota
	// condition is reported via an error matching ErrQuotaExceeded.
	Launch(ctx context.Context, cfg LaunchConfig) (Handle, error)

	// Shutdown stops the provider. Handles launched from it become invalid.
	Shutdown() error
}

// Handle is a live connection to one engine instance. It is exclusively
// owned by one session and must not be used concurrently.
type Handle interface {
	// Goto navigates to url and returns the final URL after redirects.
	Goto(ctx context.Context, url string, opts GotoOptions) (string, error)

	// Content returns the current page HTML.
	Content(ctx context.Context) (string, error)

	// Title returns the current page title.
	Title(ctx context.Context) (string, error)

	// Screenshot captures the current page as PNG bytes.
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)

	// URL returns the current page URL without touching the engine.
	URL() string

	// Connected reports whether the engine instance is still reachable.
	Connected() bool

	// Close tears the engine instance down. Safe to call more than once.
	Close() error
}

// GotoOptions configures navigation.
type GotoOptions struct {
	// WaitUntil names the load state to wait for: "load",
	// "domcontentloaded", or "networkidle". Empty means the engine default.
	WaitUntil string

	// Timeout bounds the navigation. Zero means the handle default.
	Timeout time.Duration
}
