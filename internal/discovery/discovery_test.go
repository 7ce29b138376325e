package discovery

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"venuescout/internal/venue"
)

var discoveryToday = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

const selectorResponse = `{
  "container": ".event-card",
  "artist": ".artist-name",
  "date": ".event-date"
}`

// fakeCompleter returns its responses in order: selectors first, then the
// date grammar.
type fakeCompleter struct {
	responses []string
	prompts   []string
	err       error
}

func (f *fakeCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no canned response left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func loadPage(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("testdata/venue_page.html")
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	return string(data)
}

func testClock() Option {
	return WithNow(func() time.Time { return discoveryToday })
}

func TestDiscover(t *testing.T) {
	completer := &fakeCompleter{responses: []string{selectorResponse, "Mon Jan 2"}}
	d := New(completer, testClock())

	result, err := d.Discover(context.Background(), loadPage(t), "https://www.thefoundry.test/calendar")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	cfg := result.Config
	if cfg.Method != venue.MethodSelector {
		t.Errorf("method = %q", cfg.Method)
	}
	if cfg.Selectors.Container != ".event-card" || cfg.Selectors.Artist != ".artist-name" || cfg.Selectors.Date != ".event-date" {
		t.Errorf("selectors = %+v", cfg.Selectors)
	}
	if cfg.DateGrammar != "Mon Jan 2" {
		t.Errorf("grammar = %q", cfg.DateGrammar)
	}
	if cfg.BaseURL != "https://www.thefoundry.test/calendar" {
		t.Errorf("base url = %q", cfg.BaseURL)
	}

	if result.NumEventsFound != 4 {
		t.Errorf("events found = %d, want 4", result.NumEventsFound)
	}
	if result.ParseSuccessRate != 1.0 {
		t.Errorf("parse success rate = %v, want 1.0", result.ParseSuccessRate)
	}
	if !result.ValidationSuccess {
		t.Error("validation should have passed")
	}
	if result.Sample[0].Artist != "The Midnight" || result.Sample[0].RawDate != "Fri Oct 23" {
		t.Errorf("first sample = %+v", result.Sample[0])
	}
}

func TestDiscoverGrammarWithFences(t *testing.T) {
	completer := &fakeCompleter{responses: []string{selectorResponse, "```\n\"Mon Jan 2\"\n```"}}
	d := New(completer, testClock())

	result, err := d.Discover(context.Background(), loadPage(t), "https://www.thefoundry.test/calendar")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if result.Config.DateGrammar != "Mon Jan 2" {
		t.Errorf("grammar = %q, want fences and quotes stripped", result.Config.DateGrammar)
	}
}

func TestDiscoverSelectorsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "not json", response: "I think the container is .event-card"},
		{name: "incomplete", response: `{"container": ".event-card"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &fakeCompleter{responses: []string{tt.response}}
			d := New(completer, testClock())

			_, err := d.Discover(context.Background(), loadPage(t), "https://www.thefoundry.test/calendar")
			if !errors.Is(err, ErrSelectorsInvalid) {
				t.Errorf("err = %v, want ErrSelectorsInvalid", err)
			}
		})
	}
}

func TestDiscoverNoEvents(t *testing.T) {
	// Valid selector shape, but nothing on the page matches it.
	completer := &fakeCompleter{responses: []string{
		`{"container": ".missing", "artist": ".artist-name", "date": ".event-date"}`,
	}}
	d := New(completer, testClock())

	_, err := d.Discover(context.Background(), loadPage(t), "https://www.thefoundry.test/calendar")
	if !errors.Is(err, ErrNoEvents) {
		t.Errorf("err = %v, want ErrNoEvents", err)
	}
}

func TestDiscoverInvalidGrammarFailsValidation(t *testing.T) {
	completer := &fakeCompleter{responses: []string{selectorResponse, "INVALID"}}
	d := New(completer, testClock())

	result, err := d.Discover(context.Background(), loadPage(t), "https://www.thefoundry.test/calendar")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if result.ValidationSuccess {
		t.Error("INVALID grammar must not validate")
	}
	if result.ParseSuccessRate != 0 {
		t.Errorf("parse success rate = %v, want 0", result.ParseSuccessRate)
	}
}

func TestCleanHTML(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(loadPage(t)))
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}

	cleaned := CleanHTML(doc)

	for _, gone := range []string{"<script", "<style", "<nav", "<header", "<footer"} {
		if strings.Contains(cleaned, gone) {
			t.Errorf("cleaned HTML still contains %s", gone)
		}
	}
	if !strings.Contains(cleaned, "The Midnight") {
		t.Error("cleaned HTML lost event content")
	}
}

func TestCleanHTMLTruncates(t *testing.T) {
	big := "<html><body><p>" + strings.Repeat("x", maxPromptHTML*2) + "</p></body></html>"
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(big))
	if err != nil {
		t.Fatalf("parsing: %v", err)
	}

	if got := len(CleanHTML(doc)); got > maxPromptHTML {
		t.Errorf("cleaned HTML length = %d, want <= %d", got, maxPromptHTML)
	}
}

func TestSampleEventsSkipsIncompleteCards(t *testing.T) {
	html := `<html><body>
		<div class="event-card"><h3 class="artist-name">The Midnight</h3><span class="event-date">Fri Oct 23</span></div>
		<div class="event-card"><h3 class="artist-name">No Date Booking</h3></div>
		<div class="event-card"><span class="event-date">Sat Oct 24</span></div>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parsing: %v", err)
	}

	sample := SampleEvents(doc, venue.Selectors{
		Container: ".event-card",
		Artist:    ".artist-name",
		Date:      ".event-date",
	})
	if len(sample) != 1 {
		t.Fatalf("sample = %+v, want one complete pair", sample)
	}
}

func TestSaveCandidate(t *testing.T) {
	dir := t.TempDir()
	result := &Result{
		Config: venue.Config{
			BaseURL:     "https://www.thefoundry.test/calendar",
			Method:      venue.MethodSelector,
			DateGrammar: "Mon Jan 2",
		},
		NumEventsFound: 4,
		DiscoveredAt:   discoveryToday,
	}

	path, err := SaveCandidate(dir, result)
	if err != nil {
		t.Fatalf("SaveCandidate: %v", err)
	}

	if !strings.Contains(path, "candidate_www_thefoundry_test_") {
		t.Errorf("path = %q, want host-derived filename", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading candidate: %v", err)
	}
	if !strings.Contains(string(data), `"Mon Jan 2"`) {
		t.Error("candidate file missing config content")
	}
}
