package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightProvider launches real Chromium instances through the
// Playwright driver.
type PlaywrightProvider struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	logger  *slog.Logger
	started bool
}

// NewPlaywrightProvider creates the real provider. Start must be called
// before the first Launch.
func NewPlaywrightProvider(logger *slog.Logger) *PlaywrightProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaywrightProvider{logger: logger}
}

// Start installs the Playwright driver if needed and starts it. Driver
// output is discarded so it cannot interleave with structured logs.
func (p *PlaywrightProvider) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	p.pw = pw
	p.started = true
	p.logger.Info("playwright driver started")
	return nil
}

// Launch starts a Chromium instance with its own isolated context and page.
// Partially acquired resources are closed before the error returns.
func (p *PlaywrightProvider) Launch(_ context.Context, cfg LaunchConfig) (Handle, error) {
	p.mu.Lock()
	pw := p.pw
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil, errors.New("playwright provider not started")
	}

	cfg = cfg.WithDefaults()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  cfg.ViewportWidth,
			Height: cfg.ViewportHeight,
		},
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(float64(cfg.DefaultTimeout.Milliseconds()))

	return &playwrightHandle{
		browser: browser,
		context: browserCtx,
		page:    page,
	}, nil
}

// Shutdown stops the Playwright driver.
func (p *PlaywrightProvider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}
	p.started = false

	if err := p.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

// playwrightHandle owns one browser + context + page triple.
type playwrightHandle struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	closeOnce sync.Once
	closeErr  error
}

func (h *playwrightHandle) Goto(ctx context.Context, url string, opts GotoOptions) (string, error) {
	gotoOpts := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		state := playwright.WaitUntilState(opts.WaitUntil)
		gotoOpts.WaitUntil = &state
	}
	if timeout, ok := operationTimeout(ctx, opts.Timeout); ok {
		gotoOpts.Timeout = playwright.Float(timeout)
	}

	if _, err := h.page.Goto(url, gotoOpts); err != nil {
		return "", fmt.Errorf("navigation failed: %w", err)
	}
	return h.page.URL(), nil
}

func (h *playwrightHandle) Content(_ context.Context) (string, error) {
	content, err := h.page.Content()
	if err != nil {
		return "", fmt.Errorf("content read failed: %w", err)
	}
	return content, nil
}

func (h *playwrightHandle) Title(_ context.Context) (string, error) {
	title, err := h.page.Title()
	if err != nil {
		return "", fmt.Errorf("title read failed: %w", err)
	}
	return title, nil
}

func (h *playwrightHandle) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	opts := playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
	}
	if timeout, ok := operationTimeout(ctx, 0); ok {
		opts.Timeout = playwright.Float(timeout)
	}

	data, err := h.page.Screenshot(opts)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

func (h *playwrightHandle) URL() string {
	return h.page.URL()
}

func (h *playwrightHandle) Connected() bool {
	return h.browser.IsConnected()
}

func (h *playwrightHandle) Close() error {
	h.closeOnce.Do(func() {
		// Page and context errors do not stop browser teardown.
		pageErr := h.page.Close()
		ctxErr := h.context.Close()
		browserErr := h.browser.Close()
		h.closeErr = errors.Join(pageErr, ctxErr, browserErr)
	})
	return h.closeErr
}

// operationTimeout resolves the millisecond timeout for a page operation,
// preferring an explicit value, then the context deadline.
func operationTimeout(ctx context.Context, explicit time.Duration) (float64, bool) {
	if explicit > 0 {
		return float64(explicit.Milliseconds()), true
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 1, true
		}
		return float64(remaining.Milliseconds()), true
	}
	return 0, false
}
