// Package store is the Postgres persistence adapter: venue configurations,
// validated-event upserts keyed on (venue, artist, date), and the
// append-only validation-failure log.
//
// A run's writes land in a single transaction. Any database error rolls the
// whole run back; persistence is the only boundary allowed to abort a run.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"venuescout/internal/event"
	"venuescout/internal/logger"
	"venuescout/internal/venue"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies connectivity.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS venues (
	venue_id          SERIAL PRIMARY KEY,
	name              TEXT NOT NULL,
	address           TEXT,
	city              TEXT,
	url               TEXT NOT NULL UNIQUE,
	is_active         BOOLEAN NOT NULL DEFAULT TRUE,
	scraping_config   JSONB,
	validation_config JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS validated_events (
	id                  SERIAL PRIMARY KEY,
	venue_id            INTEGER NOT NULL REFERENCES venues(venue_id),
	event_date          DATE,
	spotify_artist_id   TEXT NOT NULL,
	spotify_artist_name TEXT NOT NULL,
	artist_popularity   INTEGER,
	genres              TEXT,
	raw_event_name      TEXT NOT NULL,
	is_cancelled        BOOLEAN NOT NULL DEFAULT FALSE,
	scraped_at          TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (venue_id, spotify_artist_id, event_date)
);

CREATE TABLE IF NOT EXISTS validation_failures (
	id             SERIAL PRIMARY KEY,
	venue_id       INTEGER NOT NULL REFERENCES venues(venue_id),
	raw_event_name TEXT NOT NULL,
	raw_date_text  TEXT,
	event_date     DATE,
	failure_reason TEXT NOT NULL,
	logged_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

// Venue is one active venue with both of its stored configurations.
type Venue struct {
	VenueID    int
	Name       string
	Config     venue.Config
	Validation venue.ValidationConfig
}

// GetActiveVenues loads every active venue's scraping and validation config.
func (s *Store) GetActiveVenues(ctx context.Context) ([]Venue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT venue_id, name, scraping_config, COALESCE(validation_config, '{}'::jsonb)
		FROM venues
		WHERE is_active = TRUE
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying active venues: %w", err)
	}
	defer rows.Close()

	var venues []Venue
	for rows.Next() {
		var v Venue
		var scrapingJSON, validationJSON []byte
		if err := rows.Scan(&v.VenueID, &v.Name, &scrapingJSON, &validationJSON); err != nil {
			return nil, fmt.Errorf("scanning venue row: %w", err)
		}
		if len(scrapingJSON) > 0 {
			if err := json.Unmarshal(scrapingJSON, &v.Config); err != nil {
				return nil, fmt.Errorf("venue %d: decoding scraping config: %w", v.VenueID, err)
			}
		}
		if err := json.Unmarshal(validationJSON, &v.Validation); err != nil {
			return nil, fmt.Errorf("venue %d: decoding validation config: %w", v.VenueID, err)
		}
		v.Config.VenueID = v.VenueID
		v.Config.Name = v.Name
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating venue rows: %w", err)
	}
	return venues, nil
}

// SaveVenue upserts a venue keyed by URL and returns its id.
func (s *Store) SaveVenue(ctx context.Context, name, city, url string, cfg venue.Config) (int, error) {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("encoding scraping config: %w", err)
	}

	var venueID int
	err = s.pool.QueryRow(ctx, `
		INSERT INTO venues (name, city, url, scraping_config)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO UPDATE SET
			name = EXCLUDED.name,
			city = EXCLUDED.city,
			scraping_config = EXCLUDED.scraping_config,
			updated_at = CURRENT_TIMESTAMP
		RETURNING venue_id`,
		name, city, url, configJSON).Scan(&venueID)
	if err != nil {
		return 0, fmt.Errorf("upserting venue %q: %w", name, err)
	}
	return venueID, nil
}

// SaveValidationConfig stores a freshly learned pre-filter config.
func (s *Store) SaveValidationConfig(ctx context.Context, venueID int, cfg *venue.ValidationConfig) error {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding validation config: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE venues
		SET validation_config = $2, updated_at = CURRENT_TIMESTAMP
		WHERE venue_id = $1`,
		venueID, configJSON)
	if err != nil {
		return fmt.Errorf("saving validation config for venue %d: %w", venueID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("venue %d not found", venueID)
	}
	return nil
}

// HistoricalNameCounts returns a venue's raw event names with occurrence
// counts across prior runs, from both validated rows and the failure log.
// This feeds the periodic pattern analysis.
func (s *Store) HistoricalNameCounts(ctx context.Context, venueID int) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT raw_event_name, COUNT(*) FROM (
			SELECT raw_event_name FROM validated_events WHERE venue_id = $1
			UNION ALL
			SELECT raw_event_name FROM validation_failures WHERE venue_id = $1
		) names
		GROUP BY raw_event_name`, venueID)
	if err != nil {
		return nil, fmt.Errorf("querying event history for venue %d: %w", venueID, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		counts[name] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return counts, nil
}

// PersistRun writes a run's validated events and failures in a single
// transaction. Validated rows are upserted on (venue_id, spotify_artist_id,
// event_date); a newer scrape overwrites popularity, genres, raw name and
// the cancellation flag, never the key. Failures are append-only.
func (s *Store) PersistRun(ctx context.Context, validated []event.ValidatedEvent, failures []event.ValidationFailure) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, row := range validated {
		genres := row.GenresColumn()
		batch.Queue(`
			INSERT INTO validated_events (
				venue_id, event_date, spotify_artist_id, spotify_artist_name,
				artist_popularity, genres, raw_event_name, is_cancelled
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (venue_id, spotify_artist_id, event_date)
			DO UPDATE SET
				artist_popularity = EXCLUDED.artist_popularity,
				genres = EXCLUDED.genres,
				raw_event_name = EXCLUDED.raw_event_name,
				is_cancelled = EXCLUDED.is_cancelled,
				scraped_at = CURRENT_TIMESTAMP`,
			row.VenueID, row.EventDate, row.ArtistID, row.ArtistName,
			row.Popularity, genres, row.RawEvent, row.IsCancelled)
	}
	for _, row := range failures {
		batch.Queue(`
			INSERT INTO validation_failures (
				venue_id, raw_event_name, raw_date_text, event_date, failure_reason
			) VALUES ($1, $2, $3, $4, $5)`,
			row.VenueID, row.RawEventName, row.RawDateText, row.EventDate, row.Reason)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("writing run rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}

	logger.Info("run persisted", logger.Fields{
		"validated": len(validated),
		"failures":  len(failures),
	})
	return nil
}
