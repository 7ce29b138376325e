// Package venue defines the per-venue scraping and validation configuration.
//
// A venue's Config is discovered once (see internal/discovery), stored as
// JSONB in the venues table, and consumed read-only by the extraction engine
// on every run. The ValidationConfig is learned periodically from a venue's
// scrape history (see internal/patterns) and consumed by the pre-filter.
package venue

import (
	"fmt"
	"strings"
)

// Scraping methods supported by the extraction engine.
const (
	MethodSelector   = "selector"
	MethodStructured = "structured"
)

// DefaultCancelledText is matched exactly against the cancellation indicator
// element when no venue-specific literal is configured.
const DefaultCancelledText = "Cancelled"

// Selectors holds the CSS selectors for the selector scraping method.
// Genre and CancellationIndicator are optional.
type Selectors struct {
	Container             string `json:"event_container"`
	Artist                string `json:"artist"`
	Date                  string `json:"date"`
	Genre                 string `json:"genre,omitempty"`
	CancellationIndicator string `json:"cancellation_indicator,omitempty"`
}

// FieldPaths holds dot-notation paths into embedded structured event objects
// for the structured scraping method, e.g. "performer.name".
type FieldPaths struct {
	Artist string `json:"artist"`
	Date   string `json:"date"`
}

// Pagination describes how to iterate a venue's listing pages. URLTemplate
// must contain a "{page}" placeholder; pages are numbered from 1.
type Pagination struct {
	Enabled     bool   `json:"enabled"`
	URLTemplate string `json:"url_pattern,omitempty"`
	PageCount   int    `json:"pages,omitempty"`
}

// Config is a venue's scraping configuration. It is immutable during a
// pipeline run.
type Config struct {
	VenueID int    `json:"venue_id"`
	Name    string `json:"name,omitempty"`
	BaseURL string `json:"base_url"`

	// Method selects the extraction strategy: selector or structured.
	Method string `json:"scraping_method"`

	Selectors  Selectors  `json:"selectors,omitempty"`
	FieldPaths FieldPaths `json:"json_keys,omitempty"`

	// DateGrammar is a Go reference layout ("Mon Jan 2") for the selector
	// method, or "iso" / a custom layout for the structured method.
	DateGrammar string `json:"date_format"`

	CancelledText string `json:"cancelled_text,omitempty"`

	Pagination Pagination `json:"pagination"`

	// WaitTime is the post-navigation settle time in seconds.
	WaitTime float64 `json:"wait_time,omitempty"`
}

// CancelledLiteral returns the configured cancellation text or the default.
func (c *Config) CancelledLiteral() string {
	if c.CancelledText != "" {
		return c.CancelledText
	}
	return DefaultCancelledText
}

// Validate checks that a config is internally consistent for its method.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("venue %d: base_url is required", c.VenueID)
	}
	switch c.Method {
	case MethodSelector:
		if c.Selectors.Container == "" || c.Selectors.Artist == "" || c.Selectors.Date == "" {
			return fmt.Errorf("venue %d: selector method requires container, artist and date selectors", c.VenueID)
		}
	case MethodStructured:
		// Field paths default to schema.org conventions when empty.
	default:
		return fmt.Errorf("venue %d: unknown scraping method %q", c.VenueID, c.Method)
	}
	if c.Pagination.Enabled {
		if c.Pagination.URLTemplate == "" || !strings.Contains(c.Pagination.URLTemplate, "{page}") {
			return fmt.Errorf("venue %d: pagination requires a url_pattern with a {page} placeholder", c.VenueID)
		}
		if c.Pagination.PageCount < 1 {
			return fmt.Errorf("venue %d: pagination requires pages >= 1", c.VenueID)
		}
	}
	return nil
}

// PageURL substitutes a 1-based page index into the pagination template.
func (c *Config) PageURL(page int) string {
	return strings.ReplaceAll(c.Pagination.URLTemplate, "{page}", fmt.Sprintf("%d", page))
}

// ValidationConfig is the learned pre-filter configuration for a venue.
// An empty config passes every event through unchanged.
type ValidationConfig struct {
	// RecurringNonEvents are raw names dropped on exact match (karaoke
	// nights, open mics, private events).
	RecurringNonEvents []string `json:"recurring_non_events,omitempty"`

	// TextPatternsToStrip are boilerplate substrings removed from raw names
	// in order, case-insensitively.
	TextPatternsToStrip []string `json:"text_patterns_to_strip,omitempty"`

	// MultiArtistSeparator is the venue's preferred separator between acts
	// on a shared bill, empty when unclear.
	MultiArtistSeparator string `json:"multi_artist_separator,omitempty"`
}

// IsEmpty reports whether the config would filter nothing.
func (v *ValidationConfig) IsEmpty() bool {
	return v == nil || (len(v.RecurringNonEvents) == 0 && len(v.TextPatternsToStrip) == 0)
}

// NormalizeURL ensures a venue URL carries a scheme, prepending https://www.
// for bare hostnames the way operators tend to paste them.
func NormalizeURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	if strings.HasPrefix(rawURL, "www.") {
		return "https://" + rawURL
	}
	return "https://www." + rawURL
}
