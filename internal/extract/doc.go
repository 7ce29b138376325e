// Package extract turns stored venue configurations plus fetched pages into
// raw event rows.
//
// Two strategies are supported: selector extraction reads artist, date,
// genre and cancellation text out of CSS-selected containers; structured
// extraction scans embedded JSON-LD event objects and resolves fields by
// dot-path. Venues are processed strictly sequentially over a single shared
// fetch handle, per-venue errors are logged and skipped, and the aggregated
// rows are deduplicated on (venue, raw name, raw date) keeping scrape order.
package extract
