package domain

import (
	"fmt"
	"strings"
)

// SortKey selects the leaderboard ordering.
type SortKey string

const (
	SortByNFTCount    SortKey = "nftCount"
	SortByActivity    SortKey = "activityScore"
	SortByDisplayName SortKey = "displayName"
)

// String returns the string representation of SortKey.
func (k SortKey) String() string {
	return string(k)
}

// IsValid checks if the key is a known value.
func (k SortKey) IsValid() bool {
	return k == SortByNFTCount || k == SortByActivity || k == SortByDisplayName
}

// Numeric reports whether the key orders by an integer metric.
func (k SortKey) Numeric() bool {
	return k == SortByNFTCount || k == SortByActivity
}

// ParseSortKey parses a sort key, accepting the short aliases used by
// older clients ("nfts", "activity", "name", "username").
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nftcount", "nft_count", "nfts":
		return SortByNFTCount, nil
	case "activityscore", "activity_score", "activity":
		return SortByActivity, nil
	case "displayname", "display_name", "name", "username":
		return SortByDisplayName, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}
