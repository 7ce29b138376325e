// Package validate reconciles scraped raw event names against the canonical
// music catalog in two rounds.
//
// Round 1 runs direct catalog lookups for every distinct raw name from a
// bounded worker pool, accepting the top hit when its name similarity clears
// a threshold. Round 2 hands the stragglers to the reasoning service in
// venue-grouped batches to filter out non-music programming, strip
// promotional noise and split multi-act bills, then re-runs the cleaned
// candidates through the round-1 lookup.
//
// Every pre-filtered row is accounted for: it either backs at least one
// validated row or is recorded as a validation failure. The two failure
// reasons are mutually exclusive and, together with the validated rows,
// cover the full scraped set.
package validate
