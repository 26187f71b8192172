package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockProvider produces deterministic in-memory handles. It backs tests and
// the "mock" backend selectable from configuration, and can simulate launch
// failures, launch latency, and quota exhaustion.
type MockProvider struct {
	mu sync.Mutex

	// FailLaunches makes the next n Launch calls fail with FailErr.
	failLaunches int
	failErr      error

	launchDelay time.Duration

	// quotaLaunches caps total successful launches; 0 means unlimited.
	quotaLaunches int

	launches  atomic.Int64
	liveCount atomic.Int64
	started   bool

	// PageHTML is served by every handle's Content call.
	PageHTML string

	// PageTitle is served by every handle's Title call.
	PageTitle string
}

// NewMockProvider creates a mock provider with placeholder page content.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		PageHTML:  "<html><head><title>mock</title></head><body><p>mock page</p></body></html>",
		PageTitle: "mock",
	}
}

// FailNextLaunches makes the next n launches fail with err.
func (p *MockProvider) FailNextLaunches(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failLaunches = n
	p.failErr = err
}

// SetLaunchDelay adds fixed latency to every launch.
func (p *MockProvider) SetLaunchDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.launchDelay = d
}

// SetLaunchQuota caps the total number of successful launches. Launches
// past the cap fail with ErrQuotaExceeded.
func (p *MockProvider) SetLaunchQuota(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotaLaunches = n
}

// Launches returns the number of successful launches so far.
func (p *MockProvider) Launches() int64 {
	return p.launches.Load()
}

// Live returns the number of handles launched and not yet closed.
func (p *MockProvider) Live() int64 {
	return p.liveCount.Load()
}

// Start marks the provider ready.
func (p *MockProvider) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	return nil
}

// Launch returns a fresh mock handle, honoring configured failures, delay,
// and quota.
func (p *MockProvider) Launch(ctx context.Context, _ LaunchConfig) (Handle, error) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil, errors.New("mock provider not started")
	}
	if p.failLaunches > 0 {
		p.failLaunches--
		err := p.failErr
		p.mu.Unlock()
		if err == nil {
			err = errors.New("mock launch failure")
		}
		return nil, err
	}
	if p.quotaLaunches > 0 && int(p.launches.Load()) >= p.quotaLaunches {
		p.mu.Unlock()
		return nil, fmt.Errorf("mock provider: %w", ErrQuotaExceeded)
	}
	delay := p.launchDelay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	p.launches.Add(1)
	p.liveCount.Add(1)
	return &MockHandle{provider: p, currentURL: "about:blank"}, nil
}

// Shutdown marks the provider stopped.
func (p *MockProvider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	return nil
}

// MockHandle is the in-memory Handle produced by MockProvider.
type MockHandle struct {
	provider *MockProvider

	mu         sync.Mutex
	currentURL string
	closed     bool
	closeCalls int

	// CloseErr, when set, is returned by Close. The handle still counts as
	// closed: release is best-effort and must converge either way.
	CloseErr error

	// OpDelay adds fixed latency to page operations, so tests can exercise
	// deadline expiry.
	OpDelay time.Duration

	// Disconnected forces Connected to report false.
	Disconnected bool
}

func (h *MockHandle) wait(ctx context.Context) error {
	if h.OpDelay <= 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(h.OpDelay):
		return nil
	}
}

func (h *MockHandle) Goto(ctx context.Context, url string, _ GotoOptions) (string, error) {
	if err := h.wait(ctx); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", errors.New("mock handle closed")
	}
	h.currentURL = url
	return url, nil
}

func (h *MockHandle) Content(ctx context.Context) (string, error) {
	if err := h.wait(ctx); err != nil {
		return "", err
	}
	return h.provider.PageHTML, nil
}

func (h *MockHandle) Title(ctx context.Context) (string, error) {
	if err := h.wait(ctx); err != nil {
		return "", err
	}
	return h.provider.PageTitle, nil
}

func (h *MockHandle) Screenshot(ctx context.Context, _ bool) ([]byte, error) {
	if err := h.wait(ctx); err != nil {
		return nil, err
	}
	// Minimal valid PNG header so consumers can sniff the format.
	return []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, nil
}

func (h *MockHandle) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentURL
}

func (h *MockHandle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed && !h.Disconnected
}

func (h *MockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeCalls++
	if h.closed {
		return nil
	}
	h.closed = true
	h.provider.liveCount.Add(-1)
	return h.CloseErr
}

// CloseCalls reports how many times Close ran, for double-release assertions.
func (h *MockHandle) CloseCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCalls
}
