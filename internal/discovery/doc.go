// Package discovery derives a venue's extraction configuration from a
// rendered calendar page: CSS selectors for the event container, artist and
// date, plus a reusable date-parsing grammar, both proposed by the reasoning
// service and self-validated against sampled events.
//
// Discovery is a one-time, offline step per venue. It is pure, with
// accepted configs persisted by the caller, and it never retries grammar
// ambiguity: candidates below the success threshold come back flagged for
// manual review instead.
package discovery
