// Package enrichment fetches and normalizes per-address NFT holdings and social activity.
package enrichment

import "errors"

// ErrEnrichmentUnavailable is returned when an external data source fails,
// times out, or returns a response that cannot be normalized.
// A legitimate zero result is never reported as this error.
var ErrEnrichmentUnavailable = errors.New("enrichment unavailable")
