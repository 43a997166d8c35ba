package extractor

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// StaticRenderer fetches a single page over plain HTTP without script
// execution. It backs the browser renderer in tests and in deployments
// without Chrome available.
type StaticRenderer struct {
	userAgent string
}

// NewStaticRenderer creates a plain-HTTP renderer.
func NewStaticRenderer(userAgent string) *StaticRenderer {
	return &StaticRenderer{userAgent: userAgent}
}

// Render fetches pageURL and returns the raw response body.
func (r *StaticRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	var (
		body     string
		fetchErr error
	)

	c := colly.NewCollector(
		colly.UserAgent(r.userAgent),
		colly.MaxDepth(1),
	)

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			c.SetRequestTimeout(remaining)
		}
	}

	c.OnRequest(func(req *colly.Request) {
		if ctx.Err() != nil {
			req.Abort()
			fetchErr = &ExtractError{Kind: KindTimeout, URL: pageURL, Err: ctx.Err()}
		}
	})

	c.OnResponse(func(resp *colly.Response) {
		body = string(resp.Body)
	})

	c.OnError(func(resp *colly.Response, err error) {
		fetchErr = classifyFetchErr(pageURL, resp.StatusCode, err)
	})

	if err := c.Visit(pageURL); err != nil {
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return "", &ExtractError{Kind: KindBlocked, URL: pageURL, Err: err}
		}
		if fetchErr == nil {
			fetchErr = classifyFetchErr(pageURL, 0, err)
		}
	}
	c.Wait()

	if fetchErr != nil {
		return "", fetchErr
	}
	if body == "" {
		return "", &ExtractError{Kind: KindRenderError, URL: pageURL, Err: errors.New("empty response body")}
	}

	slog.Debug("fetched page", "url", pageURL, "size", len(body))
	return body, nil
}

func classifyFetchErr(pageURL string, status int, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ExtractError{Kind: KindTimeout, URL: pageURL, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ExtractError{Kind: KindTimeout, URL: pageURL, Err: err}
	}

	switch {
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return &ExtractError{Kind: KindTimeout, URL: pageURL, Err: err}
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		status == http.StatusProxyAuthRequired || status == http.StatusUnavailableForLegalReasons:
		return &ExtractError{Kind: KindBlocked, URL: pageURL, Err: err}
	case status >= 500 || status == 0:
		return &ExtractError{Kind: KindNetworkError, URL: pageURL, Err: err}
	case status >= 400:
		// Remaining 4xx responses will not improve on retry.
		return &ExtractError{Kind: KindBlocked, URL: pageURL, Err: err}
	default:
		return &ExtractError{Kind: KindRenderError, URL: pageURL, Err: err}
	}
}
