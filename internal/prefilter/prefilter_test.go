package prefilter

import (
	"testing"

	"venuescout/internal/event"
	"venuescout/internal/venue"
)

func TestApply(t *testing.T) {
	cfg := &venue.ValidationConfig{
		RecurringNonEvents:  []string{"Karaoke Night", "Open Mic"},
		TextPatternsToStrip: []string{" - SOLD OUT", "An Evening With "},
	}

	rows := []event.RawEvent{
		{VenueID: 1, RawEventName: "Karaoke Night", RawDateText: "Fri Oct 24"},
		{VenueID: 1, RawEventName: "The Midnight - SOLD OUT", RawDateText: "Sat Oct 25"},
		{VenueID: 1, RawEventName: "An Evening With Nora Brown", RawDateText: "Sun Oct 26"},
		{VenueID: 1, RawEventName: "Japanese Breakfast", RawDateText: "Mon Oct 27"},
	}

	kept, removed := Apply(cfg, rows)

	if len(removed) != 1 || removed[0].RawEventName != "Karaoke Night" {
		t.Fatalf("removed = %+v, want exactly the karaoke row", removed)
	}
	if len(kept) != 3 {
		t.Fatalf("kept %d rows, want 3", len(kept))
	}

	if kept[0].RawEventName != "The Midnight" {
		t.Errorf("stripped name = %q, want %q", kept[0].RawEventName, "The Midnight")
	}
	if kept[0].OriginalName != "The Midnight - SOLD OUT" {
		t.Errorf("original name not preserved: %q", kept[0].OriginalName)
	}

	if kept[1].RawEventName != "Nora Brown" {
		t.Errorf("stripped name = %q, want %q", kept[1].RawEventName, "Nora Brown")
	}

	// Untouched rows carry no original name.
	if kept[2].RawEventName != "Japanese Breakfast" || kept[2].OriginalName != "" {
		t.Errorf("untouched row modified: %+v", kept[2])
	}
}

func TestApplyCaseInsensitiveStrip(t *testing.T) {
	cfg := &venue.ValidationConfig{
		TextPatternsToStrip: []string{"(sold out)"},
	}
	rows := []event.RawEvent{
		{VenueID: 1, RawEventName: "Turnstile (SOLD OUT)"},
	}

	kept, _ := Apply(cfg, rows)
	if kept[0].RawEventName != "Turnstile" {
		t.Errorf("stripped name = %q, want %q", kept[0].RawEventName, "Turnstile")
	}
}

func TestApplyDenyListIsExactMatch(t *testing.T) {
	cfg := &venue.ValidationConfig{
		RecurringNonEvents: []string{"Trivia"},
	}
	rows := []event.RawEvent{
		{VenueID: 1, RawEventName: "Trivia"},
		{VenueID: 1, RawEventName: "Trivia Night"},
	}

	kept, removed := Apply(cfg, rows)
	if len(removed) != 1 {
		t.Fatalf("removed %d rows, want 1", len(removed))
	}
	if len(kept) != 1 || kept[0].RawEventName != "Trivia Night" {
		t.Errorf("substring match must not remove %q", "Trivia Night")
	}
}

func TestApplyEmptyConfigPassesThrough(t *testing.T) {
	rows := []event.RawEvent{
		{VenueID: 1, RawEventName: "The Midnight"},
		{VenueID: 1, RawEventName: "Karaoke Night"},
	}

	for _, cfg := range []*venue.ValidationConfig{nil, {}} {
		kept, removed := Apply(cfg, rows)
		if len(kept) != 2 || len(removed) != 0 {
			t.Errorf("empty config filtered rows: kept=%d removed=%d", len(kept), len(removed))
		}
	}
}
