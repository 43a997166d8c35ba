package extractor

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/chromedp/chromedp"
)

// Renderer produces the rendered HTML of a URL.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// BrowserRenderer renders pages in headless Chrome so that script-driven
// sites produce visible text. Each call gets a fresh browser context that is
// released on every exit path; contexts are never shared across tasks.
type BrowserRenderer struct {
	userAgent string
}

// NewBrowserRenderer creates a headless-browser renderer.
func NewBrowserRenderer(userAgent string) *BrowserRenderer {
	return &BrowserRenderer{userAgent: userAgent}
}

// Render navigates to pageURL, waits for the body to be ready and returns
// the document's outer HTML. The caller bounds the call with a deadline.
func (r *BrowserRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(r.userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		slog.Debug("browser render failed", "url", pageURL, "error", err)
		return "", classifyRenderErr(pageURL, err)
	}
	return html, nil
}

func classifyRenderErr(pageURL string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ExtractError{Kind: KindTimeout, URL: pageURL, Err: err}
	case strings.Contains(err.Error(), "net::ERR_"):
		// Navigation-level transport failures (DNS, refused, reset).
		return &ExtractError{Kind: KindNetworkError, URL: pageURL, Err: err}
	default:
		return &ExtractError{Kind: KindRenderError, URL: pageURL, Err: err}
	}
}
