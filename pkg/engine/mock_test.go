package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedMock(t *testing.T) *MockProvider {
	t.Helper()
	p := NewMockProvider()
	require.NoError(t, p.Start(context.Background()))
	return p
}

func TestMockProviderRequiresStart(t *testing.T) {
	p := NewMockProvider()
	_, err := p.Launch(context.Background(), LaunchConfig{})
	assert.Error(t, err)
}

func TestMockProviderFailNextLaunches(t *testing.T) {
	p := startedMock(t)
	boom := errors.New("boom")
	p.FailNextLaunches(2, boom)

	_, err := p.Launch(context.Background(), LaunchConfig{})
	assert.ErrorIs(t, err, boom)
	_, err = p.Launch(context.Background(), LaunchConfig{})
	assert.ErrorIs(t, err, boom)

	h, err := p.Launch(context.Background(), LaunchConfig{})
	require.NoError(t, err)
	assert.True(t, h.Connected())
	assert.Equal(t, int64(1), p.Launches())
}

func TestMockProviderQuota(t *testing.T) {
	p := startedMock(t)
	p.SetLaunchQuota(1)

	h, err := p.Launch(context.Background(), LaunchConfig{})
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = p.Launch(context.Background(), LaunchConfig{})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestMockProviderLaunchHonorsContext(t *testing.T) {
	p := startedMock(t)
	p.SetLaunchDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Launch(ctx, LaunchConfig{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockHandleLifecycle(t *testing.T) {
	p := startedMock(t)
	h, err := p.Launch(context.Background(), LaunchConfig{})
	require.NoError(t, err)
	mh := h.(*MockHandle)

	url, err := h.Goto(context.Background(), "https://example.com", GotoOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", url)
	assert.Equal(t, "https://example.com", h.URL())
	assert.Equal(t, int64(1), p.Live())

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Equal(t, 2, mh.CloseCalls())
	assert.False(t, h.Connected())
	assert.Equal(t, int64(0), p.Live(), "double close must not double-decrement")

	_, err = h.Goto(context.Background(), "https://example.com", GotoOptions{})
	assert.Error(t, err)
}

func TestLaunchConfigDefaults(t *testing.T) {
	cfg := LaunchConfig{}.WithDefaults()
	assert.Equal(t, DefaultViewportWidth, cfg.ViewportWidth)
	assert.Equal(t, DefaultViewportHeight, cfg.ViewportHeight)
	assert.Equal(t, DefaultTimeout, cfg.DefaultTimeout)

	custom := LaunchConfig{ViewportWidth: 800}.WithDefaults()
	assert.Equal(t, 800, custom.ViewportWidth)
	assert.Equal(t, DefaultViewportHeight, custom.ViewportHeight)
}
