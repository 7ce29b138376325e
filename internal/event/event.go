// Package event provides the row types flowing through the venuescout
// pipeline: raw scraped events, catalog-validated events, and the append-only
// failure records that account for everything else.
//
// RawEvent rows are ephemeral and held only for one run. ValidatedEvent rows
// are upserted keyed on (venue, artist, date) so re-runs are idempotent.
// For any run, the raw names behind validated rows plus the raw names in the
// failure log must cover the full scraped set with no overlap.
package event

import (
	"strconv"
	"strings"
	"time"
)

// Failure reasons recorded in the validation_failures audit trail.
const (
	FailureFiltered = "filtered_pre_validation"
	FailureNoMatch  = "spotify_not_found_or_mismatch"
)

// RawEvent is a single scraped listing before validation.
// Uniqueness key: (VenueID, RawEventName, RawDateText).
type RawEvent struct {
	VenueID      int        `json:"venue_id"`
	RawEventName string     `json:"raw_event_name"`
	RawDateText  string     `json:"raw_date_text"`
	ParsedDate   *time.Time `json:"parsed_date,omitempty"`
	Genre        string     `json:"genre,omitempty"`
	IsCancelled  bool       `json:"is_cancelled"`

	// OriginalName preserves the pre-strip raw name for audit when the
	// pre-filter rewrites RawEventName. Empty when nothing was stripped.
	OriginalName string `json:"raw_event_name_original,omitempty"`
}

// Key returns the dedup key for a raw event.
func (e *RawEvent) Key() string {
	return strings.Join([]string{strconv.Itoa(e.VenueID), e.RawEventName, e.RawDateText}, "|")
}

// ValidatedEvent is a raw event reconciled against the canonical catalog.
// Uniqueness key: (VenueID, ArtistID, EventDate), which is also the
// persistence idempotence key.
type ValidatedEvent struct {
	VenueID     int        `json:"venue_id"`
	EventDate   *time.Time `json:"event_date"`
	ArtistID    string     `json:"spotify_artist_id"`
	ArtistName  string     `json:"spotify_artist_name"`
	Popularity  int        `json:"artist_popularity"`
	Genres      []string   `json:"genres,omitempty"`
	RawEvent    string     `json:"raw_event_name"`
	RawDateText string     `json:"raw_date_text,omitempty"`
	IsCancelled bool       `json:"is_cancelled"`
}

// Key returns the persistence idempotence key for a validated event.
func (e *ValidatedEvent) Key() string {
	date := ""
	if e.EventDate != nil {
		date = e.EventDate.Format("2006-01-02")
	}
	return strings.Join([]string{strconv.Itoa(e.VenueID), e.ArtistID, date}, "|")
}

// GenresColumn flattens the genre set to its stored comma-separated form.
// Returns "" when there are no genres.
func (e *ValidatedEvent) GenresColumn() string {
	return strings.Join(e.Genres, ",")
}

// ValidationFailure is one append-only audit record explaining why a raw
// event produced no validated rows. Failures are never deduplicated across
// runs.
type ValidationFailure struct {
	VenueID      int        `json:"venue_id"`
	RawEventName string     `json:"raw_event_name"`
	RawDateText  string     `json:"raw_date_text,omitempty"`
	EventDate    *time.Time `json:"event_date,omitempty"`
	Reason       string     `json:"failure_reason"`
}

// DedupRaw removes later duplicates on the raw-event key, preserving scrape
// order.
func DedupRaw(events []RawEvent) []RawEvent {
	seen := make(map[string]bool, len(events))
	unique := make([]RawEvent, 0, len(events))
	for _, e := range events {
		k := e.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, e)
	}
	return unique
}

// DedupValidated removes later duplicates on the (venue, artist, date) key,
// keeping the first occurrence.
func DedupValidated(events []ValidatedEvent) []ValidatedEvent {
	seen := make(map[string]bool, len(events))
	unique := make([]ValidatedEvent, 0, len(events))
	for _, e := range events {
		k := e.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, e)
	}
	return unique
}

// UniqueRawNames returns the distinct raw names across events, in first-seen
// order.
func UniqueRawNames(events []RawEvent) []string {
	seen := make(map[string]bool, len(events))
	names := make([]string, 0, len(events))
	for _, e := range events {
		if seen[e.RawEventName] {
			continue
		}
		seen[e.RawEventName] = true
		names = append(names, e.RawEventName)
	}
	return names
}
