// Package pipeline wires the scheduled run together: load active venues,
// extract raw events, pre-filter per venue, validate against the catalog,
// and persist the results.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"venuescout/internal/event"
	"venuescout/internal/extract"
	"venuescout/internal/logger"
	"venuescout/internal/prefilter"
	"venuescout/internal/store"
	"venuescout/internal/validate"
	"venuescout/internal/venue"
)

// Stats summarizes one completed run.
type Stats struct {
	Venues      int
	RawEvents   int
	Prefiltered int
	Validated   int
	Failures    int
	Duration    time.Duration
}

// Pipeline owns the run sequence. The store is the only stage whose errors
// abort the run; extraction and validation degrade per venue instead.
type Pipeline struct {
	store     *store.Store
	engine    *extract.Engine
	validator *validate.Validator
}

// New assembles a pipeline from its stages.
func New(st *store.Store, engine *extract.Engine, validator *validate.Validator) *Pipeline {
	return &Pipeline{store: st, engine: engine, validator: validator}
}

// Run executes one full scrape-validate-persist cycle.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()

	venues, err := p.store.GetActiveVenues(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading venues: %w", err)
	}
	if len(venues) == 0 {
		logger.Warn("no active venues configured", nil)
		return &Stats{Duration: time.Since(start)}, nil
	}
	logger.Info("run starting", logger.Fields{"venues": len(venues)})

	configs := make([]venue.Config, 0, len(venues))
	validationByVenue := make(map[int]*venue.ValidationConfig, len(venues))
	for i := range venues {
		configs = append(configs, venues[i].Config)
		validationByVenue[venues[i].VenueID] = &venues[i].Validation
	}

	raw := p.engine.ExtractAll(ctx, configs)
	logger.Info("extraction complete", logger.Fields{"raw_events": len(raw)})

	kept, removed := applyPrefilters(validationByVenue, raw)
	if len(removed) > 0 {
		logger.Info("pre-filter removed events", logger.Fields{"removed": len(removed)})
	}

	validated, failures := p.validator.Run(ctx, kept, removed)

	if err := p.store.PersistRun(ctx, validated, failures); err != nil {
		return nil, fmt.Errorf("persisting run: %w", err)
	}

	stats := &Stats{
		Venues:      len(venues),
		RawEvents:   len(raw),
		Prefiltered: len(removed),
		Validated:   len(validated),
		Failures:    len(failures),
		Duration:    time.Since(start),
	}
	logger.RecordTiming("pipeline.run", stats.Duration)
	logger.Info("run complete", logger.Fields{
		"venues":      stats.Venues,
		"raw_events":  stats.RawEvents,
		"prefiltered": stats.Prefiltered,
		"validated":   stats.Validated,
		"failures":    stats.Failures,
		"duration_ms": stats.Duration.Milliseconds(),
	})
	return stats, nil
}

// applyPrefilters runs each venue's pre-filter over its own rows, preserving
// overall scrape order on both outputs.
func applyPrefilters(byVenue map[int]*venue.ValidationConfig, rows []event.RawEvent) (kept, removed []event.RawEvent) {
	grouped := make(map[int][]event.RawEvent)
	var order []int
	for _, row := range rows {
		if _, ok := grouped[row.VenueID]; !ok {
			order = append(order, row.VenueID)
		}
		grouped[row.VenueID] = append(grouped[row.VenueID], row)
	}

	for _, venueID := range order {
		k, r := prefilter.Apply(byVenue[venueID], grouped[venueID])
		kept = append(kept, k...)
		removed = append(removed, r...)
	}
	return kept, removed
}
