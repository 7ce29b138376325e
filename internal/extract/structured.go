package extract

import (
	"encoding/json"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"venuescout/internal/dategrammar"
	"venuescout/internal/event"
	"venuescout/internal/logger"
	"venuescout/internal/venue"
)

// Default dot-paths into schema.org Event objects.
const (
	defaultArtistPath = "performer"
	defaultDatePath   = "startDate"
)

// isoGrammar marks the default ISO 8601 parse for structured dates.
const isoGrammar = "iso"

// extractStructured scans embedded JSON-LD scripts for Event objects and
// resolves fields by dot-path. A date that fails to parse keeps its raw
// string with a nil parsed date rather than dropping the event.
func (e *Engine) extractStructured(doc *goquery.Document, cfg *venue.Config) []event.RawEvent {
	artistPath := cfg.FieldPaths.Artist
	if artistPath == "" {
		artistPath = defaultArtistPath
	}
	datePath := cfg.FieldPaths.Date
	if datePath == "" {
		datePath = defaultDatePath
	}

	var events []event.RawEvent

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, script *goquery.Selection) {
		raw := script.Text()
		if strings.TrimSpace(raw) == "" {
			return
		}
		// Control characters inside the payload break strict JSON parsing.
		raw = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(raw)

		for _, obj := range decodeEventObjects(raw) {
			if typeTag, _ := obj["@type"].(string); typeTag != "Event" {
				continue
			}

			artist, okArtist := resolvePath(obj, artistPath)
			if okArtist {
				artist = strings.TrimSpace(html.UnescapeString(artist))
			}

			dateString, okDate := resolvePath(obj, datePath)

			if !okArtist || artist == "" || !okDate || dateString == "" {
				continue
			}

			dateText, parsedDate := e.parseStructuredDate(dateString, cfg)

			events = append(events, event.RawEvent{
				VenueID:      cfg.VenueID,
				RawEventName: artist,
				RawDateText:  dateText,
				ParsedDate:   parsedDate,
				IsCancelled:  false,
			})
		}
	})

	return events
}

// parseStructuredDate parses a structured date string, defaulting to ISO
// 8601 unless the venue configures a custom layout. On failure the raw
// string is retained with no parsed date.
func (e *Engine) parseStructuredDate(dateString string, cfg *venue.Config) (string, *time.Time) {
	grammar := cfg.DateGrammar
	if grammar == "" {
		grammar = isoGrammar
	}

	var t time.Time
	var err error
	if grammar == isoGrammar {
		t, err = dategrammar.ParseISO(dateString)
	} else {
		t, err = time.Parse(grammar, dateString)
	}
	if err != nil {
		logger.Debug("structured date parse failed, keeping raw text", logger.Fields{
			"venue_id": cfg.VenueID,
			"date":     dateString,
		})
		return dateString, nil
	}

	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.Format("2006-01-02"), &day
}

// decodeEventObjects parses a JSON-LD payload that may be a single object or
// a top-level array of objects. Malformed payloads are skipped.
func decodeEventObjects(raw string) []map[string]interface{} {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var list []map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			logger.Debug("skipping malformed JSON-LD script", logger.Fields{"error": err.Error()})
			return nil
		}
		return list
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		logger.Debug("skipping malformed JSON-LD script", logger.Fields{"error": err.Error()})
		return nil
	}
	return []map[string]interface{}{obj}
}

// resolvePath walks dot-separated keys through nested JSON values. A missing
// intermediate key resolves to ("", false) rather than panicking.
// Terminal values are flattened: scalars are stringified, an object
// falls through to its "name" key, and a list takes its first element.
func resolvePath(data interface{}, path string) (string, bool) {
	if path == "" {
		return "", false
	}

	value := data
	for _, key := range strings.Split(path, ".") {
		obj, isObject := value.(map[string]interface{})
		if !isObject {
			return "", false
		}
		next, present := obj[key]
		if !present || next == nil {
			return "", false
		}
		value = next
	}

	return flattenValue(value)
}

// flattenValue reduces a terminal JSON value to a string.
func flattenValue(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case map[string]interface{}:
		// schema.org often nests the interesting value under "name".
		if name, present := v["name"]; present {
			return flattenValue(name)
		}
		return "", false
	case []interface{}:
		if len(v) == 0 {
			return "", false
		}
		return flattenValue(v[0])
	default:
		return "", false
	}
}
