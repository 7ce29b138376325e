package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"venuescout/internal/discovery"
	"venuescout/internal/venue"
)

type stubFetcher struct {
	html string
	ok   bool
}

func (f stubFetcher) Fetch(ctx context.Context, url string) (string, bool) { return f.html, f.ok }
func (f stubFetcher) Close()                                               {}

type stubDiscoverer struct {
	result *discovery.Result
	err    error
}

func (d stubDiscoverer) Discover(ctx context.Context, html, pageURL string) (*discovery.Result, error) {
	return d.result, d.err
}

func performDiscover(t *testing.T, h *Handler, body string) DiscoverResponse {
	t.Helper()

	c := app.NewContext(0)
	c.Request.SetBody([]byte(body))
	h.Discover(context.Background(), c)

	if code := c.Response.StatusCode(); code != consts.StatusOK {
		t.Fatalf("status = %d, want %d", code, consts.StatusOK)
	}

	var resp DiscoverResponse
	if err := json.Unmarshal(c.Response.Body(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestDiscoverOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		result      discovery.Result
		wantSuccess bool
		wantError   string
	}{
		{
			name: "too few events rejected even when validation passed",
			result: discovery.Result{
				Config:            venue.Config{Name: "The Foundry"},
				Sample:            make([]discovery.SampleEvent, 2),
				NumEventsFound:    2,
				ParseSuccessRate:  1.0,
				ValidationSuccess: true,
			},
			wantError: "too few events found",
		},
		{
			name: "validation below threshold",
			result: discovery.Result{
				NumEventsFound:    6,
				ParseSuccessRate:  0.5,
				ValidationSuccess: false,
			},
			wantError: "date format validation below threshold",
		},
		{
			name: "accepted",
			result: discovery.Result{
				NumEventsFound:    6,
				ParseSuccessRate:  1.0,
				ValidationSuccess: true,
			},
			wantSuccess: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(
				stubFetcher{html: "<html></html>", ok: true},
				stubDiscoverer{result: &tt.result},
				"",
			)

			resp := performDiscover(t, h, `{"url":"https://www.thefoundry.test/calendar"}`)

			if resp.Success != tt.wantSuccess {
				t.Errorf("success = %v, want %v", resp.Success, tt.wantSuccess)
			}
			if resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
			if resp.NumEventsFound != tt.result.NumEventsFound {
				t.Errorf("num_events_found = %d, want %d", resp.NumEventsFound, tt.result.NumEventsFound)
			}
			if resp.Config == nil {
				t.Error("config must be echoed back with the verdict")
			}
		})
	}
}

func TestDiscoverFetchFailure(t *testing.T) {
	h := NewHandler(stubFetcher{ok: false}, stubDiscoverer{}, "")

	resp := performDiscover(t, h, `{"url":"thefoundry.test/calendar"}`)
	if resp.Success || resp.Error != "failed to fetch page" {
		t.Errorf("response = %+v, want fetch failure", resp)
	}
}

func TestDiscoveryError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "no events",
			err:  fmt.Errorf("%w: selectors matched nothing", discovery.ErrNoEvents),
			want: "no events found",
		},
		{
			name: "selectors invalid",
			err:  fmt.Errorf("%w: incomplete selector response", discovery.ErrSelectorsInvalid),
			want: "selectors invalid",
		},
		{
			name: "other errors pass through",
			err:  errors.New("requesting selectors: connection refused"),
			want: "requesting selectors: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := discoveryError(tt.err); got != tt.want {
				t.Errorf("discoveryError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateSample(t *testing.T) {
	sample := make([]discovery.SampleEvent, 9)
	for i := range sample {
		sample[i] = discovery.SampleEvent{Artist: fmt.Sprintf("act %d", i)}
	}

	got := truncateSample(sample)
	if len(got) != maxSampleInResponse {
		t.Errorf("len = %d, want %d", len(got), maxSampleInResponse)
	}
	if got[0].Artist != "act 0" {
		t.Errorf("truncation must keep the leading events, got %q", got[0].Artist)
	}

	short := sample[:2]
	if len(truncateSample(short)) != 2 {
		t.Error("short samples must pass through unchanged")
	}
}
