package enrichment

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"castboard/internal/domain"
	"castboard/internal/upstream"
)

// Placeholders for fields the NFT index left empty.
const (
	DefaultTitle       = "Untitled"
	DefaultDescription = "No description available"
)

// NFTIndex lists the tokens owned by an address.
type NFTIndex interface {
	OwnedNFTs(ctx context.Context, owner string) ([]upstream.OwnedNFT, error)
}

// Holdings is the normalized NFT position of one address.
// Count always equals len(Items).
type Holdings struct {
	Count int
	Items []domain.NFTSummary
}

// NFTFetcher retrieves and normalizes holdings from an NFTIndex.
type NFTFetcher struct {
	index  NFTIndex
	logger zerolog.Logger
}

// NewNFTFetcher creates a fetcher over index.
func NewNFTFetcher(index NFTIndex, logger zerolog.Logger) *NFTFetcher {
	return &NFTFetcher{index: index, logger: logger}
}

// FetchHoldings returns all NFTs owned by address.
// An address owning nothing yields Count 0 and an empty, non-nil Items.
func (f *NFTFetcher) FetchHoldings(ctx context.Context, address string) (Holdings, error) {
	raw, err := f.index.OwnedNFTs(ctx, address)
	if err != nil {
		f.logger.Warn().Err(err).Str("address", address).Msg("nft index lookup failed")
		return Holdings{}, fmt.Errorf("%w: nft index: %v", ErrEnrichmentUnavailable, err)
	}

	items := make([]domain.NFTSummary, 0, len(raw))
	for i, nft := range raw {
		s, err := NormalizeNFT(nft)
		if err != nil {
			return Holdings{}, fmt.Errorf("%w: nft %d: %v", ErrEnrichmentUnavailable, i, err)
		}
		items = append(items, s)
	}

	return Holdings{Count: len(items), Items: items}, nil
}

// NormalizeNFT converts a raw index entry into an NFTSummary, filling defaults.
// Entries without a contract address are rejected.
func NormalizeNFT(nft upstream.OwnedNFT) (domain.NFTSummary, error) {
	if nft.Contract == nil || strings.TrimSpace(nft.Contract.Address) == "" {
		return domain.NFTSummary{}, fmt.Errorf("%w: missing contract address", upstream.ErrMalformedResponse)
	}

	return domain.NFTSummary{
		ContractAddress: strings.ToLower(strings.TrimSpace(nft.Contract.Address)),
		Title:           firstNonEmpty(DefaultTitle, nft.Title, nft.Name),
		MediaURL:        mediaURL(nft),
		Description:     firstNonEmpty(DefaultDescription, nft.Description),
	}, nil
}

// mediaURL picks the first media gateway, then the cached image, then the original image.
func mediaURL(nft upstream.OwnedNFT) string {
	for _, m := range nft.Media {
		if m.Gateway != "" {
			return m.Gateway
		}
	}
	if nft.Image != nil {
		if nft.Image.CachedURL != "" {
			return nft.Image.CachedURL
		}
		return nft.Image.OriginalURL
	}
	return ""
}

func firstNonEmpty(fallback string, candidates ...*string) string {
	for _, c := range candidates {
		if c != nil && strings.TrimSpace(*c) != "" {
			return *c
		}
	}
	return fallback
}
