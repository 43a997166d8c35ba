// Package extractor fetches and renders web pages into cleaned markdown
// text. Rendering happens in a headless browser because target pages may
// require script execution before any visible text exists; a static HTTP
// renderer covers tests and browserless deployments.
package extractor

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config holds extraction configuration.
type Config struct {
	Timeout         time.Duration
	UserAgent       string
	MaxContentChars int
}

// Page is one successfully extracted page.
type Page struct {
	URL       string
	Title     string
	Headings  []string
	Content   string // cleaned markdown
	RawHTML   string // rendered document, kept for the archive
	FetchedAt time.Time
}

// Extractor turns a URL into a cleaned Page or a typed ExtractError.
type Extractor struct {
	renderer Renderer
	config   Config
}

// New creates an Extractor using the given renderer.
func New(renderer Renderer, config Config) *Extractor {
	if config.Timeout == 0 {
		config.Timeout = 45 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "recepd/1.0"
	}
	if config.MaxContentChars == 0 {
		config.MaxContentChars = 200_000
	}
	return &Extractor{renderer: renderer, config: config}
}

// Extract fetches url under a hard wall-clock timeout and returns the
// cleaned page. Exceeding the timeout is a retryable Timeout, not fatal.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.renderer.Render(ctx, pageURL)
	if err != nil {
		var ee *ExtractError
		if errors.As(err, &ee) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &ExtractError{Kind: KindTimeout, URL: pageURL, Err: err}
		}
		return nil, &ExtractError{Kind: KindRenderError, URL: pageURL, Err: err}
	}

	page := &Page{
		URL:       pageURL,
		RawHTML:   raw,
		FetchedAt: time.Now(),
	}

	if isMarkdownContent(raw) {
		// Already structured text; no HTML cleaning needed.
		page.Content = raw
	} else {
		page.Title = extractTitle(raw)
		page.Headings = extractHeadings(raw)

		content, err := cleanHTML(pageURL, raw)
		if err != nil {
			return nil, &ExtractError{Kind: KindRenderError, URL: pageURL, Err: err}
		}
		page.Content = content
	}

	if page.Content == "" {
		return nil, &ExtractError{Kind: KindRenderError, URL: pageURL, Err: errors.New("page produced no visible text")}
	}

	if len(page.Content) > e.config.MaxContentChars {
		slog.Debug("truncating oversized page", "url", pageURL, "size", len(page.Content))
		page.Content = page.Content[:e.config.MaxContentChars]
	}

	slog.Debug("page extracted",
		"url", pageURL,
		"title", page.Title,
		"content_chars", len(page.Content),
		"duration", time.Since(start))

	return page, nil
}
