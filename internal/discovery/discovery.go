package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"venuescout/internal/ai"
	"venuescout/internal/dategrammar"
	"venuescout/internal/logger"
	"venuescout/internal/venue"
)

const (
	// DefaultMinSuccessRate is the fraction of sampled dates the candidate
	// grammar must parse for the config to pass validation.
	DefaultMinSuccessRate = 0.9

	// maxPromptHTML bounds the cleaned HTML sent to the reasoning service.
	maxPromptHTML = 15000
)

// Discovery failures the HTTP layer distinguishes for the operator.
var (
	ErrSelectorsInvalid = errors.New("selectors invalid")
	ErrNoEvents         = errors.New("no events found")
)

// SampleEvent is one (artist, raw date) pair extracted while validating
// candidate selectors.
type SampleEvent struct {
	Artist  string `json:"artist"`
	RawDate string `json:"raw_date"`
}

// Result is a candidate venue configuration plus the evidence behind it.
// A result with ValidationSuccess=false is still returned so a human can
// decide whether to accept it; discovery never self-corrects grammar
// ambiguity by retrying.
type Result struct {
	Config            venue.Config  `json:"config"`
	Sample            []SampleEvent `json:"sample_events"`
	NumEventsFound    int           `json:"num_events_found"`
	ParseSuccessRate  float64       `json:"date_parse_success_rate"`
	ValidationSuccess bool          `json:"validation_success"`
	DiscoveredAt      time.Time     `json:"discovered_at"`
}

// Discoverer derives a venue's extraction selectors and date grammar from a
// rendered page, using the reasoning service, and self-validates against
// sampled data. Pure: persisting an accepted config is the caller's job.
type Discoverer struct {
	completer ai.Completer
	threshold float64
	now       func() time.Time
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithMinSuccessRate overrides the validation threshold.
func WithMinSuccessRate(rate float64) Option {
	return func(d *Discoverer) { d.threshold = rate }
}

// WithNow overrides the clock used for year-less date resolution.
func WithNow(now func() time.Time) Option {
	return func(d *Discoverer) { d.now = now }
}

// New creates a Discoverer.
func New(completer ai.Completer, opts ...Option) *Discoverer {
	d := &Discoverer{
		completer: completer,
		threshold: DefaultMinSuccessRate,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

const selectorSystemPrompt = "You are a web scraping expert. Find CSS selectors."

const selectorPromptTemplate = `Look at this HTML from a music venue calendar page and tell me:
1. The CSS selector for the container that holds each event
2. The CSS selector for the artist name, relative to the container
3. The CSS selector for the date, relative to the container

HTML:
%s

Return JSON only:
{
  "container": "...",
  "artist": "...",
  "date": "..."
}`

const grammarSystemPrompt = "You are a syntax expert in Go time reference layouts. Return ONLY a valid Go layout string."

const grammarPromptTemplate = `Look at the following date strings and return JUST the Go time reference
layout that fits them. A Go layout spells the reference time
"Mon Jan 2 15:04:05 2006" in the target shape.
IMPORTANT: Do NOT include ordinal suffixes like 'st', 'nd', 'rd', 'th' in
the layout; they are stripped before parsing.

Examples:
- Dates like "Fri Oct 24" have layout "Mon Jan 2"
- Dates like "10/24/2025" have layout "01/02/2006"
- Dates like "Friday October 24th" have layout "Monday January 2"
- Dates like "24" cannot be parsed - return "INVALID"

Dates:
%s

Return just the layout string, or "INVALID" if the dates don't carry enough
information.`

// Discover runs the full one-time discovery pipeline on a rendered page.
func (d *Discoverer) Discover(ctx context.Context, html, pageURL string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing page HTML: %w", err)
	}

	cleaned := CleanHTML(doc)

	selectors, err := d.discoverSelectors(ctx, cleaned)
	if err != nil {
		return nil, err
	}

	logger.Info("discovered selectors", logger.Fields{
		"url":       pageURL,
		"container": selectors.Container,
		"artist":    selectors.Artist,
		"date":      selectors.Date,
	})

	sample := SampleEvents(doc, selectors)
	if len(sample) == 0 {
		return nil, fmt.Errorf("%w: selectors matched nothing on %s", ErrNoEvents, pageURL)
	}

	rawDates := make([]string, 0, len(sample))
	for _, ev := range sample {
		rawDates = append(rawDates, ev.RawDate)
	}

	grammar, err := d.discoverGrammar(ctx, rawDates)
	if err != nil {
		return nil, err
	}

	rate := dategrammar.SuccessRate(rawDates, grammar, d.now())
	valid := rate >= d.threshold

	logger.Info("validated date grammar", logger.Fields{
		"url":          pageURL,
		"grammar":      grammar,
		"success_rate": rate,
		"valid":        valid,
	})

	return &Result{
		Config: venue.Config{
			BaseURL:     pageURL,
			Method:      venue.MethodSelector,
			Selectors:   selectors,
			DateGrammar: grammar,
		},
		Sample:            sample,
		NumEventsFound:    len(sample),
		ParseSuccessRate:  rate,
		ValidationSuccess: valid,
		DiscoveredAt:      d.now().UTC(),
	}, nil
}

// discoverSelectors asks the reasoning service for the three selectors. Any
// JSON parse failure is a hard discovery failure; there is no retry at this
// layer.
func (d *Discoverer) discoverSelectors(ctx context.Context, cleanedHTML string) (venue.Selectors, error) {
	prompt := fmt.Sprintf(selectorPromptTemplate, cleanedHTML)

	text, err := d.completer.Complete(ctx, selectorSystemPrompt, prompt)
	if err != nil {
		return venue.Selectors{}, fmt.Errorf("requesting selectors: %w", err)
	}

	var parsed struct {
		Container string `json:"container"`
		Artist    string `json:"artist"`
		Date      string `json:"date"`
	}
	if err := ai.DecodeJSON(text, &parsed); err != nil {
		return venue.Selectors{}, fmt.Errorf("%w: %v", ErrSelectorsInvalid, err)
	}
	if parsed.Container == "" || parsed.Artist == "" || parsed.Date == "" {
		return venue.Selectors{}, fmt.Errorf("%w: incomplete selector response", ErrSelectorsInvalid)
	}

	return venue.Selectors{
		Container: parsed.Container,
		Artist:    parsed.Artist,
		Date:      parsed.Date,
	}, nil
}

// discoverGrammar asks the reasoning service for a reusable date grammar
// covering the sampled raw dates.
func (d *Discoverer) discoverGrammar(ctx context.Context, rawDates []string) (string, error) {
	listing, err := json.Marshal(rawDates)
	if err != nil {
		return "", fmt.Errorf("marshaling sample dates: %w", err)
	}

	text, err := d.completer.Complete(ctx, grammarSystemPrompt, fmt.Sprintf(grammarPromptTemplate, listing))
	if err != nil {
		return "", fmt.Errorf("requesting date grammar: %w", err)
	}

	grammar := strings.Trim(ai.StripFences(text), `"'`)
	if grammar == "" {
		grammar = dategrammar.Invalid
	}
	return grammar, nil
}

// CleanHTML strips non-content nodes from the DOM and returns the body
// markup truncated to the prompt budget.
func CleanHTML(doc *goquery.Document) string {
	doc.Find("script, style, svg, iframe, noscript, meta, link").Remove()
	doc.Find("nav, header, footer").Remove()

	body := doc.Find("body")
	var html string
	var err error
	if body.Length() > 0 {
		html, err = goquery.OuterHtml(body)
	} else {
		html, err = doc.Html()
	}
	if err != nil {
		return ""
	}

	if len(html) > maxPromptHTML {
		html = html[:maxPromptHTML]
	}
	return html
}

// SampleEvents extracts (artist, raw date) pairs using candidate selectors.
// A pair is kept only when both texts are non-empty.
func SampleEvents(doc *goquery.Document, selectors venue.Selectors) []SampleEvent {
	var sample []SampleEvent
	doc.Find(selectors.Container).Each(func(_ int, container *goquery.Selection) {
		artist := strings.TrimSpace(container.Find(selectors.Artist).First().Text())
		rawDate := strings.TrimSpace(container.Find(selectors.Date).First().Text())
		if artist == "" || rawDate == "" {
			return
		}
		sample = append(sample, SampleEvent{Artist: artist, RawDate: rawDate})
	})
	return sample
}
