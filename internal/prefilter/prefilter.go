// Package prefilter cheaply removes events that are guaranteed not to be
// musical acts before the expensive validation rounds.
//
// Filtering is venue-specific: exact-name matches against a learned
// deny-list are dropped, and learned boilerplate substrings are stripped
// from the remaining names (case-insensitive, literal, in order) while the
// unmodified original is kept for audit. A venue with an empty
// ValidationConfig passes everything through unchanged.
package prefilter

import (
	"strings"

	"venuescout/internal/event"
	"venuescout/internal/logger"
	"venuescout/internal/venue"
)

// Apply filters one venue's rows. It returns the rows that survive (possibly
// with stripped names) and the rows removed outright; removed rows are
// logged by the caller as filtered_pre_validation failures.
func Apply(cfg *venue.ValidationConfig, rows []event.RawEvent) (kept, removed []event.RawEvent) {
	if cfg.IsEmpty() {
		return rows, nil
	}

	denied := make(map[string]bool, len(cfg.RecurringNonEvents))
	for _, name := range cfg.RecurringNonEvents {
		denied[name] = true
	}

	for _, row := range rows {
		if denied[row.RawEventName] {
			removed = append(removed, row)
			continue
		}

		stripped := stripPatterns(row.RawEventName, cfg.TextPatternsToStrip)
		if stripped != row.RawEventName {
			row.OriginalName = row.RawEventName
			row.RawEventName = stripped
		}
		kept = append(kept, row)
	}

	if len(removed) > 0 {
		logger.Info("pre-filtered known non-events", logger.Fields{
			"removed": len(removed),
		})
	}

	return kept, removed
}

// stripPatterns removes each configured substring from name in order,
// case-insensitively but literally (no regex), then trims whitespace.
func stripPatterns(name string, patterns []string) string {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		name = stripFold(name, pattern)
	}
	return strings.TrimSpace(name)
}

// stripFold removes every case-insensitive occurrence of substr from s.
func stripFold(s, substr string) string {
	lower := strings.ToLower(s)
	sub := strings.ToLower(substr)

	var b strings.Builder
	for {
		i := strings.Index(lower, sub)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		s = s[i+len(sub):]
		lower = lower[i+len(sub):]
	}
}
