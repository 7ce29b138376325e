package validate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"venuescout/internal/ai"
	"venuescout/internal/event"
	"venuescout/internal/logger"
)

// maxSplitAttempts bounds retries of a malformed reasoning-service response
// before the batch is abandoned and its rows fall through to the failure
// log.
const maxSplitAttempts = 3

const splitSystemPrompt = "You are a music industry expert who can distinguish between artist names and event names."

const splitPromptTemplate = `You are analyzing a list of names scraped from music venue websites.
Some are actual musical artists/bands, and some are event names or non-musical events.

Your task: Extract and clean all PERFORMING MUSICAL ACT names.

STEP 1 - IDENTIFY if the entry contains performing musical acts:
   KEEP: Musicians, bands, DJs, tribute acts - anyone who performs music
   FILTER OUT: Event series (EMO NITE, Nerd Nite), private events, non-music events

STEP 2 - CLEAN the artist names:
   - Remove promotional text: "An Evening with", "Presented by", "Live in Concert"
   - Remove tour names: "- World Tour", "2024 Tour"
   - Remove location info: "at [venue] - [city]" (but ONLY if it's part of an artist name, not if the whole thing is an event)
   - Remove "feat.", "featuring", "with special guest" and similar

STEP 3 - SPLIT multi-artist bills:
   - "Artist A, Artist B" -> ["Artist A", "Artist B"]
   - "Artist A & Artist B" -> ["Artist A", "Artist B"]
   - "Artist A + Artist B" -> ["Artist A", "Artist B"]
   - BUT preserve band names with natural "&" or "," (like "The Army, The Navy" or "Simon & Garfunkel" or "Andy Frasco and the U.N.")

Examples:
- "Legend Zeppelin" -> ["Legend Zeppelin"]
- "EMO NITE at Rickshaw Stop - San Francisco, CA" -> [] (entire thing is an event brand, filter out)
- "Nora Brown, Stephanie Coleman" -> ["Nora Brown", "Stephanie Coleman"] (two artists)
- "Josh Ritter and the Royal City Band" -> ["Josh Ritter and the Royal City Band"] (one act)
- "Pete Yorn - You and Me Solo Acoustic" -> ["Pete Yorn"] (remove tour name)
- "Private Event" -> [] (filter out)

Return a JSON OBJECT (not array) where:
- Keys are the original raw names from the input
- Values are arrays of cleaned artist names (empty array if filtered out)

Names to evaluate:
%s

Respond with ONLY the JSON object, no other text.`

// roundTwo submits unresolved rows to the reasoning service in venue-grouped
// batches, re-validates the cleaned candidate names, and synthesizes rows
// carrying the original event context with each resolved candidate's
// canonical identity.
func (v *Validator) roundTwo(ctx context.Context, unresolvedRows []event.RawEvent) []event.ValidatedEvent {
	mapping := make(map[string][]string)

	for _, batch := range batchByVenue(unresolvedRows, v.opts.MaxBatchSize) {
		result, err := v.splitBatch(ctx, batch)
		if err != nil {
			// Batch abandoned: its names stay unresolved and flow to the
			// failure log.
			logger.Error("artist split batch abandoned", logger.Fields{
				"batch_size": len(batch),
			}, err)
			continue
		}
		for name, cleaned := range result {
			mapping[name] = cleaned
		}
	}

	// Re-run the cleaned candidates through the direct-match round.
	seen := make(map[string]bool)
	var cleanedNames []string
	for _, candidates := range mapping {
		for _, name := range candidates {
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			cleanedNames = append(cleanedNames, name)
		}
	}
	resolved := v.matchArtists(ctx, cleanedNames)

	var validated []event.ValidatedEvent
	for _, row := range unresolvedRows {
		for _, cleaned := range mapping[row.RawEventName] {
			artist, found := resolved[cleaned]
			if !found {
				continue
			}
			validated = append(validated, newValidated(row, row.RawEventName, artist))
		}
	}
	return validated
}

// batchByVenue groups distinct unresolved names by venue for contextual
// consistency, then sub-batches to the maximum batch size.
func batchByVenue(rows []event.RawEvent, maxBatch int) [][]string {
	var venueOrder []int
	perVenue := make(map[int][]string)
	seen := make(map[string]bool)

	for _, row := range rows {
		key := fmt.Sprintf("%d|%s", row.VenueID, row.RawEventName)
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, known := perVenue[row.VenueID]; !known {
			venueOrder = append(venueOrder, row.VenueID)
		}
		perVenue[row.VenueID] = append(perVenue[row.VenueID], row.RawEventName)
	}

	var batches [][]string
	for _, venueID := range venueOrder {
		names := perVenue[venueID]
		for start := 0; start < len(names); start += maxBatch {
			end := start + maxBatch
			if end > len(names) {
				end = len(names)
			}
			batches = append(batches, names[start:end])
		}
	}
	return batches
}

// splitBatch asks the reasoning service to map each raw name to a list of
// cleaned performer names. Malformed JSON is retried with the same prompt up
// to the attempt budget; list-typed values are required, with non-list
// values coerced to a singleton and logged.
func (v *Validator) splitBatch(ctx context.Context, names []string) (map[string][]string, error) {
	listing, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling batch: %w", err)
	}
	prompt := fmt.Sprintf(splitPromptTemplate, listing)

	var mapping map[string][]string
	operation := func() error {
		text, err := v.completer.Complete(ctx, splitSystemPrompt, prompt)
		if err != nil {
			return fmt.Errorf("requesting artist split: %w", err)
		}

		var raw map[string]json.RawMessage
		if err := ai.DecodeJSON(text, &raw); err != nil {
			return err
		}

		mapping = make(map[string][]string, len(raw))
		for name, value := range raw {
			cleaned, err := coerceNameList(value)
			if err != nil {
				logger.Warn("non-list value in split response, coercing", logger.Fields{
					"name":  name,
					"value": string(value),
				})
			}
			mapping[name] = cleaned
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSplitAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return mapping, nil
}

// coerceNameList decodes one split-response value. Lists of strings pass
// through; a bare string or other scalar becomes a singleton list, reported
// via the returned error; null becomes empty.
func coerceNameList(value json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(value, &list); err == nil {
		return list, nil
	}

	var single string
	if err := json.Unmarshal(value, &single); err == nil {
		if single == "" {
			return nil, fmt.Errorf("expected list, got empty string")
		}
		return []string{single}, fmt.Errorf("expected list, got string")
	}

	var null interface{}
	if err := json.Unmarshal(value, &null); err == nil && null == nil {
		return nil, fmt.Errorf("expected list, got null")
	}

	return nil, fmt.Errorf("expected list, got %s", string(value))
}
