package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"venuescout/internal/dategrammar"
	"venuescout/internal/event"
	"venuescout/internal/fetch"
	"venuescout/internal/logger"
	"venuescout/internal/venue"
)

// DefaultWaitTime is the post-navigation settle time used when a venue does
// not configure one.
const DefaultWaitTime = 1500 * time.Millisecond

// Engine applies venue configurations across one or more pages.
type Engine struct {
	fetcher fetch.Fetcher
	now     func() time.Time
	sleep   func(time.Duration)
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow overrides the clock used for year-less date resolution.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep overrides the inter-page wait, mainly for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// New creates an extraction engine over a fetch handle. The handle is a
// shared, stateful resource; the engine only ever uses it sequentially.
func New(fetcher fetch.Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher: fetcher,
		now:     time.Now,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractAll scrapes every venue in order. A failure on one venue is logged
// and skipped; it never aborts the others. The aggregated rows are
// deduplicated on the raw-event key, dropping later duplicates in scrape
// order.
func (e *Engine) ExtractAll(ctx context.Context, configs []venue.Config) []event.RawEvent {
	var all []event.RawEvent

	for i := range configs {
		cfg := &configs[i]
		start := e.now()

		events, err := e.ExtractVenue(ctx, cfg)
		if err != nil {
			logger.Error("venue extraction failed", logger.Fields{
				"venue_id": cfg.VenueID,
				"venue":    cfg.Name,
			}, err)
			continue
		}

		logger.Info("venue scraped", logger.Fields{
			"venue_id": cfg.VenueID,
			"venue":    cfg.Name,
			"events":   len(events),
		})
		logger.AddCounter("extract.events_scraped", int64(len(events)))
		logger.RecordTiming("extract.venue", time.Since(start))

		all = append(all, events...)
	}

	return event.DedupRaw(all)
}

// ExtractVenue scrapes a single venue, following its pagination settings.
func (e *Engine) ExtractVenue(ctx context.Context, cfg *venue.Config) ([]event.RawEvent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !cfg.Pagination.Enabled {
		html, ok := e.fetcher.Fetch(ctx, cfg.BaseURL)
		if !ok {
			return nil, fmt.Errorf("fetching %s failed", cfg.BaseURL)
		}
		e.settle(cfg)
		return e.extractPage(html, cfg)
	}

	// Paginated venue: a fetch or parse error on one page aborts the
	// remaining pages but keeps what was already extracted.
	var events []event.RawEvent
	for page := 1; page <= cfg.Pagination.PageCount; page++ {
		pageURL := cfg.PageURL(page)

		html, ok := e.fetcher.Fetch(ctx, pageURL)
		if !ok {
			logger.Warn("page fetch failed, aborting remaining pages", logger.Fields{
				"venue_id": cfg.VenueID,
				"page":     page,
				"url":      pageURL,
			})
			break
		}
		e.settle(cfg)

		pageEvents, err := e.extractPage(html, cfg)
		if err != nil {
			logger.Warn("page parse failed, aborting remaining pages", logger.Fields{
				"venue_id": cfg.VenueID,
				"page":     page,
				"error":    err.Error(),
			})
			break
		}
		events = append(events, pageEvents...)
	}
	return events, nil
}

// settle waits the venue's configured post-navigation time.
func (e *Engine) settle(cfg *venue.Config) {
	wait := DefaultWaitTime
	if cfg.WaitTime > 0 {
		wait = time.Duration(cfg.WaitTime * float64(time.Second))
	}
	e.sleep(wait)
}

func (e *Engine) extractPage(html string, cfg *venue.Config) ([]event.RawEvent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	switch cfg.Method {
	case venue.MethodSelector:
		return e.extractSelector(doc, cfg), nil
	case venue.MethodStructured:
		return e.extractStructured(doc, cfg), nil
	default:
		return nil, fmt.Errorf("unknown scraping method %q", cfg.Method)
	}
}

// extractSelector reads events out of CSS-selected containers. An event is
// emitted only when artist text and raw date text are non-empty and the
// date text parses under the venue's grammar; a container whose date the
// grammar cannot read is skipped.
func (e *Engine) extractSelector(doc *goquery.Document, cfg *venue.Config) []event.RawEvent {
	var events []event.RawEvent

	doc.Find(cfg.Selectors.Container).Each(func(_ int, container *goquery.Selection) {
		artist := strings.TrimSpace(container.Find(cfg.Selectors.Artist).First().Text())
		dateText := strings.TrimSpace(container.Find(cfg.Selectors.Date).First().Text())
		if artist == "" || dateText == "" {
			return
		}

		genre := ""
		if cfg.Selectors.Genre != "" {
			genre = strings.TrimSpace(container.Find(cfg.Selectors.Genre).First().Text())
		}

		cancelled := false
		if cfg.Selectors.CancellationIndicator != "" {
			indicator := strings.TrimSpace(container.Find(cfg.Selectors.CancellationIndicator).First().Text())
			cancelled = indicator == cfg.CancelledLiteral()
		}

		parsed, err := dategrammar.Parse(dateText, cfg.DateGrammar, e.now())
		if err != nil {
			logger.Debug("skipping event with unparseable date", logger.Fields{
				"venue_id":  cfg.VenueID,
				"artist":    artist,
				"date_text": dateText,
			})
			return
		}

		events = append(events, event.RawEvent{
			VenueID:      cfg.VenueID,
			RawEventName: artist,
			RawDateText:  dateText,
			ParsedDate:   &parsed,
			Genre:        genre,
			IsCancelled:  cancelled,
		})
	})

	return events
}
