package validate

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agext/levenshtein"

	"venuescout/internal/ai"
	"venuescout/internal/catalog"
	"venuescout/internal/event"
	"venuescout/internal/logger"
)

// Defaults for the validation pipeline.
const (
	// DefaultSimilarityThreshold is the minimum normalized similarity
	// (0-100) between a queried name and the catalog's top hit.
	DefaultSimilarityThreshold = 80

	// DefaultWorkers is the bounded concurrency for catalog lookups.
	DefaultWorkers = 4

	// DefaultMaxBatchSize caps the names sent to the reasoning service per
	// call.
	DefaultMaxBatchSize = 50

	// DefaultSearchLimit is how many catalog hits to request per lookup.
	DefaultSearchLimit = 3

	// throttlePause is inserted after every 10 x workers completed lookups
	// as an additional rate-limit cushion.
	throttlePause = 500 * time.Millisecond
)

// Options tunes the validator. Zero values fall back to the defaults above.
type Options struct {
	SimilarityThreshold int
	Workers             int
	MaxBatchSize        int
	SearchLimit         int
}

func (o Options) withDefaults() Options {
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = DefaultMaxBatchSize
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = DefaultSearchLimit
	}
	return o
}

// Validator runs the two-round validation pipeline.
type Validator struct {
	catalog   catalog.ArtistSearcher
	completer ai.Completer
	opts      Options
	sleep     func(time.Duration)
}

// Option configures a Validator.
type Option func(*Validator)

// WithSleep overrides the throttle pause, mainly for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(v *Validator) { v.sleep = sleep }
}

// New creates a Validator over the catalog and reasoning-service
// capabilities.
func New(cat catalog.ArtistSearcher, completer ai.Completer, opts Options, options ...Option) *Validator {
	v := &Validator{
		catalog:   cat,
		completer: completer,
		opts:      opts.withDefaults(),
		sleep:     time.Sleep,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Run validates the pre-filtered rows. removed carries the rows the
// pre-filter dropped; they are logged as filtered_pre_validation failures so
// the run accounts for every scraped event with no overlap between
// categories.
func (v *Validator) Run(ctx context.Context, prefiltered, removed []event.RawEvent) ([]event.ValidatedEvent, []event.ValidationFailure) {
	// Round 1: direct catalog match on distinct raw names.
	names := event.UniqueRawNames(prefiltered)
	resolved := v.matchArtists(ctx, names)

	logger.Info("validation round 1 complete", logger.Fields{
		"names":    len(names),
		"resolved": len(resolved),
	})
	logger.AddCounter("validate.round1.resolved", int64(len(resolved)))

	validated := reconstruct(prefiltered, resolved)

	// Round 2: AI-assisted split for the stragglers.
	var unresolvedRows []event.RawEvent
	for _, row := range prefiltered {
		if _, found := resolved[row.RawEventName]; !found {
			unresolvedRows = append(unresolvedRows, row)
		}
	}

	if len(unresolvedRows) > 0 {
		extra := v.roundTwo(ctx, unresolvedRows)
		logger.Info("validation round 2 complete", logger.Fields{
			"unresolved": len(unresolvedRows),
			"recovered":  len(extra),
		})
		logger.AddCounter("validate.round2.recovered", int64(len(extra)))
		validated = append(validated, extra...)
	}

	validated = event.DedupValidated(validated)

	failures := partitionFailures(prefiltered, removed, validated)
	logger.AddCounter("validate.failures", int64(len(failures)))

	return validated, failures
}

// matchArtists looks up each name against the catalog from a pool of
// bounded workers and returns the accepted name -> artist mappings. Lookup
// errors and below-threshold hits leave the name unresolved; they never
// abort the batch.
func (v *Validator) matchArtists(ctx context.Context, names []string) map[string]catalog.Artist {
	if len(names) == 0 {
		return nil
	}

	jobs := make(chan string, len(names))
	for _, name := range names {
		jobs <- name
	}
	close(jobs)

	type lookup struct {
		name   string
		artist catalog.Artist
		found  bool
	}
	results := make(chan lookup, len(names))

	var wg sync.WaitGroup
	for i := 0; i < v.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				artist, found := v.lookupArtist(ctx, name)
				results <- lookup{name: name, artist: artist, found: found}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	resolved := make(map[string]catalog.Artist)
	completed := 0
	for r := range results {
		if r.found {
			resolved[r.name] = r.artist
		}
		completed++
		// A small pause after every 10 x workers completions keeps the
		// upstream rate limiter happy on big runs.
		if completed%(v.opts.Workers*10) == 0 {
			v.sleep(throttlePause)
		}
	}

	return resolved
}

// lookupArtist queries the catalog for one name and applies the similarity
// threshold against the top hit.
func (v *Validator) lookupArtist(ctx context.Context, name string) (catalog.Artist, bool) {
	hits, err := v.catalog.SearchArtist(ctx, name, v.opts.SearchLimit)
	if err != nil {
		logger.Warn("catalog lookup failed", logger.Fields{
			"artist": name,
			"error":  err.Error(),
		})
		return catalog.Artist{}, false
	}
	if len(hits) == 0 {
		logger.Debug("no catalog results", logger.Fields{"artist": name})
		return catalog.Artist{}, false
	}

	top := hits[0]
	score := Similarity(name, top.Name)
	if score < v.opts.SimilarityThreshold {
		logger.Debug("catalog name mismatch", logger.Fields{
			"artist":     name,
			"top_hit":    top.Name,
			"similarity": score,
		})
		return catalog.Artist{}, false
	}

	return top, true
}

// Similarity returns a case-insensitive normalized similarity score on a
// 0-100 scale.
func Similarity(a, b string) int {
	s := levenshtein.Similarity(strings.ToLower(a), strings.ToLower(b), nil)
	return int(s * 100)
}

// reconstruct joins resolved name mappings back onto the pre-filtered rows
// to recover venue, date and cancellation context.
func reconstruct(rows []event.RawEvent, resolved map[string]catalog.Artist) []event.ValidatedEvent {
	var validated []event.ValidatedEvent
	for _, row := range rows {
		artist, found := resolved[row.RawEventName]
		if !found {
			continue
		}
		validated = append(validated, newValidated(row, row.RawEventName, artist))
	}
	return validated
}

// newValidated builds a validated row from a raw row's context and a
// canonical artist identity. rawName is the name recorded for audit: the
// row's own name in round 1, the original pre-split name in round 2.
func newValidated(row event.RawEvent, rawName string, artist catalog.Artist) event.ValidatedEvent {
	return event.ValidatedEvent{
		VenueID:     row.VenueID,
		EventDate:   row.ParsedDate,
		ArtistID:    artist.ID,
		ArtistName:  artist.Name,
		Popularity:  artist.Popularity,
		Genres:      artist.Genres,
		RawEvent:    rawName,
		RawDateText: row.RawDateText,
		IsCancelled: row.IsCancelled,
	}
}

// partitionFailures logs every pre-filtered row whose raw name backs no
// validated row as a catalog failure, and every pre-filter removal as a
// filtered failure. The categories are mutually exclusive.
func partitionFailures(prefiltered, removed []event.RawEvent, validated []event.ValidatedEvent) []event.ValidationFailure {
	resolvedNames := make(map[string]bool, len(validated))
	for _, row := range validated {
		resolvedNames[row.RawEvent] = true
	}

	var failures []event.ValidationFailure
	for _, row := range prefiltered {
		if resolvedNames[row.RawEventName] {
			continue
		}
		failures = append(failures, event.ValidationFailure{
			VenueID:      row.VenueID,
			RawEventName: row.RawEventName,
			RawDateText:  row.RawDateText,
			EventDate:    row.ParsedDate,
			Reason:       event.FailureNoMatch,
		})
	}
	for _, row := range removed {
		failures = append(failures, event.ValidationFailure{
			VenueID:      row.VenueID,
			RawEventName: row.RawEventName,
			RawDateText:  row.RawDateText,
			EventDate:    row.ParsedDate,
			Reason:       event.FailureFiltered,
		})
	}
	return failures
}
