// Package ops implements the scraping operations that run against a live
// engine handle: navigation, screenshot capture, and content extraction.
//
// Every operation receives the handle plus a deadline-carrying context and
// returns a typed result. Handle lifecycle is exclusively the session
// layer's responsibility; nothing here launches, retains, or closes a
// handle. Runner is the serialized entry point: it routes each operation
// through the registry's per-session lock and records the outcome for the
// status surface.
package ops

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/entrhq/pagepool/pkg/engine"
)

// DefaultMaxLength bounds extracted text when the caller sets no limit.
const DefaultMaxLength = 10000

// NavigateOptions configures page navigation.
type NavigateOptions struct {
	// WaitUntil names the load state to wait for: "load",
	// "domcontentloaded", or "networkidle".
	WaitUntil string

	// Timeout bounds the navigation; zero defers to the context deadline
	// or the handle default.
	Timeout time.Duration
}

// NavigateResult reports where a navigation landed.
type NavigateResult struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Navigate drives the handle to url and reports the final URL and title.
func Navigate(ctx context.Context, h engine.Handle, url string, opts NavigateOptions) (NavigateResult, error) {
	final, err := h.Goto(ctx, url, engine.GotoOptions{
		WaitUntil: opts.WaitUntil,
		Timeout:   opts.Timeout,
	})
	if err != nil {
		return NavigateResult{}, err
	}

	title, err := h.Title(ctx)
	if err != nil {
		// Navigation already succeeded; a missing title is not worth
		// failing the operation over.
		title = ""
	}
	return NavigateResult{URL: final, Title: title}, nil
}

// ScreenshotOptions configures screenshot capture.
type ScreenshotOptions struct {
	FullPage bool
}

// ScreenshotResult carries a captured page image as a base64 PNG data URI.
type ScreenshotResult struct {
	URL     string `json:"url"`
	DataURI string `json:"data_uri"`
	Bytes   int    `json:"bytes"`
}

// Screenshot captures the current page as a PNG data URI.
func Screenshot(ctx context.Context, h engine.Handle, opts ScreenshotOptions) (ScreenshotResult, error) {
	png, err := h.Screenshot(ctx, opts.FullPage)
	if err != nil {
		return ScreenshotResult{}, err
	}
	return ScreenshotResult{
		URL:     h.URL(),
		DataURI: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Bytes:   len(png),
	}, nil
}

// ExtractOptions configures content extraction.
type ExtractOptions struct {
	// Selector optionally limits text extraction to matching elements.
	Selector string

	// MaxLength bounds the extracted text; zero means DefaultMaxLength.
	MaxLength int
}

// Link is a hyperlink with its visible text.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// ExtractResult is the structured content of a page.
type ExtractResult struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Headings []string `json:"headings,omitempty"`
	Links    []Link   `json:"links,omitempty"`
	Text     string   `json:"text"`
}

// Extract pulls the page's title, headings, links, and visible text.
func Extract(ctx context.Context, h engine.Handle, opts ExtractOptions) (ExtractResult, error) {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}

	html, err := h.Content(ctx)
	if err != nil {
		return ExtractResult{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ExtractResult{}, fmt.Errorf("failed to parse page: %w", err)
	}

	result := ExtractResult{
		URL:   h.URL(),
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			result.Headings = append(result.Headings, text)
		}
	})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" {
			return
		}
		result.Links = append(result.Links, Link{
			Text: strings.TrimSpace(sel.Text()),
			Href: href,
		})
	})

	scope := doc.Find("body")
	if opts.Selector != "" {
		scope = doc.Find(opts.Selector)
		if scope.Length() == 0 {
			return ExtractResult{}, fmt.Errorf("no element matches selector %q", opts.Selector)
		}
	}
	result.Text = truncate(normalizeSpace(scope.Text()), opts.MaxLength)

	return result, nil
}

// normalizeSpace collapses runs of whitespace into single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	// Back the cut off to a rune boundary so the result stays valid UTF-8.
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n\n[content truncated: %d of %d characters shown]", cut, len(s))
}
