// Package fetch provides the page-fetch capability consumed by discovery and
// extraction: given a URL, return rendered HTML or signal a recoverable
// failure.
//
// The default Client wraps a single reusable net/http client. It stands in
// for the headless-browser session used in production, which is a shared,
// stateful resource not designed for concurrent navigation. Callers must
// use a Fetcher sequentially and Close it on every exit path.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"venuescout/internal/logger"
)

const (
	// UserAgent identifies venuescout to venue sites.
	UserAgent = "venuescout/1.0"

	// DefaultTimeout bounds a single page load; a timeout skips the page or
	// venue, it never aborts the run.
	DefaultTimeout = 30 * time.Second
)

// Fetcher is the page-fetch capability. ok is false on timeout or
// navigation error; the html return is empty in that case.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (html string, ok bool)
	Close()
}

// Client fetches pages over plain HTTP with a shared http.Client.
type Client struct {
	client *http.Client
}

// New creates a fetch client with the default timeout.
func New() *Client {
	return NewWithTimeout(DefaultTimeout)
}

// NewWithTimeout creates a fetch client with an explicit page-load timeout.
func NewWithTimeout(timeout time.Duration) *Client {
	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch retrieves a page and returns its HTML. Any error (timeout, bad
// status, unreadable body) is logged and reported as ok=false.
func (c *Client) Fetch(ctx context.Context, url string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.Error("creating page request", logger.Fields{"url": url}, err)
		return "", false
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Warn("page fetch failed", logger.Fields{"url": url, "error": err.Error()})
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("page fetch returned bad status", logger.Fields{"url": url, "status": resp.StatusCode})
		return "", false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("reading page body failed", logger.Fields{"url": url, "error": err.Error()})
		return "", false
	}

	return string(body), true
}

// Close releases idle connections held by the shared client.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
