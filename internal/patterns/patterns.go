// Package patterns periodically learns a venue's pre-filter configuration
// from its scrape history: recurring non-musical event names, frequently
// recurring boilerplate substrings, and the venue's preferred multi-act
// separator.
//
// The learning is conservative by instruction: the reasoning service is
// told to decline low-confidence conclusions rather than guess. A
// malformed response is retried up to the attempt budget before aborting
// with no configuration change.
package patterns

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cenkalti/backoff/v4"

	"venuescout/internal/ai"
	"venuescout/internal/logger"
	"venuescout/internal/venue"
)

const (
	// maxAttempts bounds retries on malformed responses.
	maxAttempts = 3

	// maxNamesInPrompt caps how much history is shown to the model.
	maxNamesInPrompt = 100

	// minPatternFrequency is how often a boilerplate substring must appear
	// before it is worth stripping.
	minPatternFrequency = 5
)

const analyzeSystemPrompt = "You are a music industry expert analyzing venue event patterns. Be conservative and only flag obvious non-artist events."

const analyzePromptTemplate = `Analyze these event names from a music venue to identify patterns.

Context: We scrape event listings and need to filter out non-musical events and clean artist names.

Identify:
1. RECURRING NON-ARTIST EVENTS - Events that repeat (karaoke nights, open mics, private events, event series like "Emo Nite")
   - Look for things with occurrence count > 1 that aren't artists
   - Include obvious non-music events even if they only appear once ("Private Event")

2. COMMON TEXT PATTERNS TO STRIP - Text that appears in MANY event names that should be removed
   - Promotional phrases: "An Evening with", "Presents", "Live in Concert"
   - Location info: "at [venue] - [city]"
   - Tour names: "- World Tour", "Tour 2024"
   - But ONLY patterns that appear frequently (%d+ times)

3. MULTI-ARTIST SEPARATOR - What character(s) does this venue use to separate multiple artists on the same bill?
   - "/" = "Artist A/ Artist B/ Artist C"
   - "," = "Artist A, Artist B, Artist C"
   - "&" = "Artist A & Artist B"
   - Look at the patterns and pick the MOST COMMON one (or null if unclear)

Event names (with occurrence count):
%s

IMPORTANT: Be conservative! Only flag things you're CONFIDENT about.
- Don't flag actual band names as non-events
- Don't add text patterns that only appear once or twice
- If the multi-artist separator is unclear, return null

Return ONLY valid JSON in this exact format:
{
  "recurring_non_events": ["Karaoke Tuesday", "Private Event"],
  "text_patterns_to_strip": ["at Rickshaw Stop - San Francisco, CA"],
  "multi_artist_separator": "/"
}`

// Analyze proposes a ValidationConfig for one venue from its historical raw
// event names and occurrence counts. A nil config with an error means no
// configuration change should be made.
func Analyze(ctx context.Context, completer ai.Completer, venueID int, nameCounts map[string]int) (*venue.ValidationConfig, error) {
	if len(nameCounts) == 0 {
		return nil, fmt.Errorf("venue %d: no historical events to analyze", venueID)
	}

	listing, err := promptListing(nameCounts)
	if err != nil {
		return nil, fmt.Errorf("venue %d: %w", venueID, err)
	}
	prompt := fmt.Sprintf(analyzePromptTemplate, minPatternFrequency, listing)

	var cfg *venue.ValidationConfig
	operation := func() error {
		text, err := completer.Complete(ctx, analyzeSystemPrompt, prompt)
		if err != nil {
			return fmt.Errorf("requesting pattern analysis: %w", err)
		}

		var parsed struct {
			RecurringNonEvents   []string    `json:"recurring_non_events"`
			TextPatternsToStrip  []string    `json:"text_patterns_to_strip"`
			MultiArtistSeparator interface{} `json:"multi_artist_separator"`
		}
		if err := ai.DecodeJSON(text, &parsed); err != nil {
			return err
		}

		separator := ""
		if s, isString := parsed.MultiArtistSeparator.(string); isString {
			separator = s
		}

		cfg = &venue.ValidationConfig{
			RecurringNonEvents:   parsed.RecurringNonEvents,
			TextPatternsToStrip:  parsed.TextPatternsToStrip,
			MultiArtistSeparator: separator,
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("venue %d: pattern analysis failed: %w", venueID, err)
	}

	logger.Info("pattern analysis complete", logger.Fields{
		"venue_id":   venueID,
		"non_events": len(cfg.RecurringNonEvents),
		"patterns":   len(cfg.TextPatternsToStrip),
		"separator":  cfg.MultiArtistSeparator,
	})

	return cfg, nil
}

// promptListing renders the most frequent names, capped, as a JSON object of
// name -> count.
func promptListing(nameCounts map[string]int) (string, error) {
	names := make([]string, 0, len(nameCounts))
	for name := range nameCounts {
		names = append(names, name)
	}
	// Most frequent first so the cap keeps the interesting repeats.
	sort.Slice(names, func(i, j int) bool {
		if nameCounts[names[i]] != nameCounts[names[j]] {
			return nameCounts[names[i]] > nameCounts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > maxNamesInPrompt {
		names = names[:maxNamesInPrompt]
	}

	capped := make(map[string]int, len(names))
	for _, name := range names {
		capped[name] = nameCounts[name]
	}

	data, err := json.MarshalIndent(capped, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling name counts: %w", err)
	}
	return string(data), nil
}
