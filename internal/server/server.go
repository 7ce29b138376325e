// Package server exposes one-time venue discovery over HTTP so an operator
// can point the system at a calendar page and review the derived config
// before it ever touches the venue table.
package server

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"venuescout/internal/discovery"
	"venuescout/internal/fetch"
	"venuescout/internal/logger"
	"venuescout/internal/venue"
)

// MinEvents is the fewest sampled events a page must yield before its
// candidate config is considered trustworthy. Pages with one or two listings
// don't give the selectors enough evidence.
const MinEvents = 3

// maxSampleInResponse caps how many sampled events the API echoes back.
const maxSampleInResponse = 5

// Discoverer is the slice of the discovery pipeline the handler needs.
type Discoverer interface {
	Discover(ctx context.Context, html, pageURL string) (*discovery.Result, error)
}

// Handler serves the discovery endpoints.
type Handler struct {
	fetcher    fetch.Fetcher
	discoverer Discoverer
	dataDir    string
}

// NewHandler creates a Handler. When dataDir is non-empty, every successful
// discovery is also written there as a candidate file for review.
func NewHandler(fetcher fetch.Fetcher, discoverer Discoverer, dataDir string) *Handler {
	return &Handler{fetcher: fetcher, discoverer: discoverer, dataDir: dataDir}
}

// DiscoverRequest is the body of POST /discover.
type DiscoverRequest struct {
	URL string `json:"url"`
}

// DiscoverResponse reports the outcome of a discovery attempt. Error strings
// are stable so operator tooling can branch on them.
type DiscoverResponse struct {
	Success          bool                    `json:"success"`
	Config           *venue.Config           `json:"config,omitempty"`
	SampleEvents     []discovery.SampleEvent `json:"sample_events,omitempty"`
	NumEventsFound   int                     `json:"num_events_found"`
	ParseSuccessRate float64                 `json:"date_parse_success_rate"`
	Error            string                  `json:"error,omitempty"`
}

// Health is a liveness probe.
func (h *Handler) Health(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"status": "ok"})
}

// Discover fetches the requested page, runs selector and date-grammar
// discovery, and returns the candidate config with its validation evidence.
func (h *Handler) Discover(ctx context.Context, c *app.RequestContext) {
	var req DiscoverRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, DiscoverResponse{Error: "invalid request body"})
		return
	}
	if req.URL == "" {
		c.JSON(consts.StatusBadRequest, DiscoverResponse{Error: "url is required"})
		return
	}

	pageURL := venue.NormalizeURL(req.URL)
	logger.Info("discovery requested", logger.Fields{"url": pageURL})

	html, ok := h.fetcher.Fetch(ctx, pageURL)
	if !ok {
		c.JSON(consts.StatusOK, DiscoverResponse{Error: "failed to fetch page"})
		return
	}

	result, err := h.discoverer.Discover(ctx, html, pageURL)
	if err != nil {
		logger.Warn("discovery failed", logger.Fields{"url": pageURL, "error": err.Error()})
		c.JSON(consts.StatusOK, DiscoverResponse{Error: discoveryError(err)})
		return
	}

	resp := DiscoverResponse{
		Config:           &result.Config,
		SampleEvents:     truncateSample(result.Sample),
		NumEventsFound:   result.NumEventsFound,
		ParseSuccessRate: result.ParseSuccessRate,
	}

	switch {
	case result.NumEventsFound < MinEvents:
		resp.Error = "too few events found"
	case !result.ValidationSuccess:
		resp.Error = "date format validation below threshold"
	default:
		resp.Success = true
		if h.dataDir != "" {
			if _, err := discovery.SaveCandidate(h.dataDir, result); err != nil {
				logger.Error("saving candidate config", logger.Fields{"url": pageURL}, err)
			}
		}
	}

	c.JSON(consts.StatusOK, resp)
}

func discoveryError(err error) string {
	switch {
	case errors.Is(err, discovery.ErrNoEvents):
		return "no events found"
	case errors.Is(err, discovery.ErrSelectorsInvalid):
		return "selectors invalid"
	default:
		return err.Error()
	}
}

func truncateSample(sample []discovery.SampleEvent) []discovery.SampleEvent {
	if len(sample) > maxSampleInResponse {
		return sample[:maxSampleInResponse]
	}
	return sample
}

// New builds the Hertz server with all routes registered.
func New(addr string, h *Handler) *server.Hertz {
	srv := server.Default(server.WithHostPorts(addr))
	srv.GET("/health", h.Health)
	srv.POST("/discover", h.Discover)
	return srv
}
