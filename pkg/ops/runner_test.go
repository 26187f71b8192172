package ops

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pagepool/pkg/engine"
	"github.com/entrhq/pagepool/pkg/retry"
	"github.com/entrhq/pagepool/pkg/session"
	"github.com/entrhq/pagepool/pkg/usage"
)

func newTestRunner(t *testing.T) (*Runner, *session.Registry, *usage.Monitor) {
	t.Helper()

	provider := engine.NewMockProvider()
	require.NoError(t, provider.Start(context.Background()))
	provider.PageHTML = testPage
	provider.PageTitle = "Example Domain"

	monitor := usage.NewMonitor()
	executor := retry.NewExecutor(retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}, nil)
	controller := session.NewController(provider, executor, monitor, nil, engine.LaunchConfig{})
	registry := session.NewRegistry(session.Config{}, controller, monitor, nil)

	return NewRunner(registry, monitor), registry, monitor
}

func TestRunnerNavigateRecordsResult(t *testing.T) {
	runner, registry, monitor := newTestRunner(t)
	ctx := context.Background()

	_, err := registry.Create(ctx, "sess")
	require.NoError(t, err)

	res, err := runner.Navigate(ctx, "sess", "https://example.com", NavigateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", res.URL)

	results := monitor.Snapshot().RecentResults
	require.Len(t, results, 1)
	assert.Equal(t, "navigate", results[0].Operation)
	assert.Equal(t, "sess", results[0].SessionID)
	assert.Equal(t, "https://example.com", results[0].URL)
	assert.Equal(t, "Example Domain", results[0].Metadata["title"])
	assert.NotEmpty(t, results[0].ID)
	assert.False(t, results[0].Timestamp.IsZero())
}

func TestRunnerScreenshotRecordsDataURI(t *testing.T) {
	runner, registry, monitor := newTestRunner(t)
	ctx := context.Background()

	_, err := registry.Create(ctx, "sess")
	require.NoError(t, err)

	_, err = runner.Screenshot(ctx, "sess", ScreenshotOptions{FullPage: true})
	require.NoError(t, err)

	results := monitor.Snapshot().RecentResults
	require.Len(t, results, 1)
	assert.Equal(t, "screenshot", results[0].Operation)
	assert.True(t, strings.HasPrefix(results[0].Metadata["screenshot"], "data:image/png;base64,"))
}

func TestRunnerExtract(t *testing.T) {
	runner, registry, monitor := newTestRunner(t)
	ctx := context.Background()

	_, err := registry.Create(ctx, "sess")
	require.NoError(t, err)

	res, err := runner.Extract(ctx, "sess", ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", res.Title)

	results := monitor.Snapshot().RecentResults
	require.Len(t, results, 1)
	assert.Equal(t, "extract", results[0].Operation)
}

func TestRunnerUnknownSessionRecordsNothing(t *testing.T) {
	runner, _, monitor := newTestRunner(t)

	_, err := runner.Navigate(context.Background(), "ghost", "https://example.com", NavigateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.Empty(t, monitor.Snapshot().RecentResults)
}

func TestRunnerCountsTowardRequestLimit(t *testing.T) {
	provider := engine.NewMockProvider()
	require.NoError(t, provider.Start(context.Background()))
	provider.PageHTML = testPage

	monitor := usage.NewMonitor()
	executor := retry.NewExecutor(retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}, nil)
	controller := session.NewController(provider, executor, monitor, nil, engine.LaunchConfig{})
	registry := session.NewRegistry(session.Config{MaxRequestsPerSession: 1}, controller, monitor, nil)
	runner := NewRunner(registry, monitor)

	ctx := context.Background()
	_, err := registry.Create(ctx, "sess")
	require.NoError(t, err)

	_, err = runner.Navigate(ctx, "sess", "https://example.com", NavigateOptions{})
	require.NoError(t, err)
	_, err = runner.Navigate(ctx, "sess", "https://example.com", NavigateOptions{})
	assert.ErrorIs(t, err, session.ErrSessionExhausted)
}
