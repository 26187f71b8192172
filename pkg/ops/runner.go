package ops

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/pagepool/pkg/engine"
	"github.com/entrhq/pagepool/pkg/session"
	"github.com/entrhq/pagepool/pkg/usage"
)

// Runner executes operations against registry sessions. Each operation runs
// under the session's exclusion lock via WithSession, and every successful
// outcome lands in the usage monitor's recent-results ring so the status
// surface can serve it.
type Runner struct {
	registry *session.Registry
	monitor  *usage.Monitor
}

// NewRunner wires a runner to its registry and monitor.
func NewRunner(registry *session.Registry, monitor *usage.Monitor) *Runner {
	return &Runner{registry: registry, monitor: monitor}
}

// Navigate drives the session to url.
func (r *Runner) Navigate(ctx context.Context, sessionID, url string, opts NavigateOptions) (NavigateResult, error) {
	var res NavigateResult
	err := r.registry.WithSession(ctx, sessionID, func(ctx context.Context, h engine.Handle) error {
		var err error
		res, err = Navigate(ctx, h, url, opts)
		return err
	})
	if err != nil {
		return NavigateResult{}, err
	}

	r.record(sessionID, "navigate", res.URL, map[string]string{"title": res.Title})
	return res, nil
}

// Screenshot captures the session's current page.
func (r *Runner) Screenshot(ctx context.Context, sessionID string, opts ScreenshotOptions) (ScreenshotResult, error) {
	var res ScreenshotResult
	err := r.registry.WithSession(ctx, sessionID, func(ctx context.Context, h engine.Handle) error {
		var err error
		res, err = Screenshot(ctx, h, opts)
		return err
	})
	if err != nil {
		return ScreenshotResult{}, err
	}

	r.record(sessionID, "screenshot", res.URL, map[string]string{"screenshot": res.DataURI})
	return res, nil
}

// Extract pulls structured content from the session's current page.
func (r *Runner) Extract(ctx context.Context, sessionID string, opts ExtractOptions) (ExtractResult, error) {
	var res ExtractResult
	err := r.registry.WithSession(ctx, sessionID, func(ctx context.Context, h engine.Handle) error {
		var err error
		res, err = Extract(ctx, h, opts)
		return err
	})
	if err != nil {
		return ExtractResult{}, err
	}

	r.record(sessionID, "extract", res.URL, map[string]string{"title": res.Title})
	return res, nil
}

func (r *Runner) record(sessionID, operation, url string, metadata map[string]string) {
	r.monitor.RecordResult(usage.OperationResult{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		URL:       url,
		Operation: operation,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
}
