package enrichment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"castboard/internal/upstream"
)

// DefaultActivityPageSize bounds the number of recent casts counted.
const DefaultActivityPageSize = 100

// SocialGraph maps addresses to social identities and lists their recent activity.
type SocialGraph interface {
	FIDByAddress(ctx context.Context, address string) (fid int64, found bool, err error)
	RecentCasts(ctx context.Context, fid int64, limit int) ([]upstream.Cast, error)
}

// ActivityFetcher computes the activity score for an address.
type ActivityFetcher struct {
	graph    SocialGraph
	pageSize int
	logger   zerolog.Logger
}

// NewActivityFetcher creates a fetcher counting at most pageSize recent casts.
func NewActivityFetcher(graph SocialGraph, pageSize int, logger zerolog.Logger) *ActivityFetcher {
	if pageSize <= 0 {
		pageSize = DefaultActivityPageSize
	}
	return &ActivityFetcher{graph: graph, pageSize: pageSize, logger: logger}
}

// FetchActivity returns the number of recent casts by the account linked to address.
// An address with no linked account scores 0.
func (f *ActivityFetcher) FetchActivity(ctx context.Context, address string) (int, error) {
	fid, found, err := f.graph.FIDByAddress(ctx, address)
	if err != nil {
		f.logger.Warn().Err(err).Str("address", address).Msg("social identity lookup failed")
		return 0, fmt.Errorf("%w: identity lookup: %v", ErrEnrichmentUnavailable, err)
	}
	if !found {
		return 0, nil
	}

	casts, err := f.graph.RecentCasts(ctx, fid, f.pageSize)
	if err != nil {
		f.logger.Warn().Err(err).Int64("fid", fid).Msg("recent casts lookup failed")
		return 0, fmt.Errorf("%w: recent casts: %v", ErrEnrichmentUnavailable, err)
	}

	score := len(casts)
	if score > f.pageSize {
		score = f.pageSize
	}
	return score, nil
}
