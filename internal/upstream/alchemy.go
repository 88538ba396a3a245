package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Alchemy NFT API limits.
const (
	alchemyPageSize = 100
	alchemyMaxPages = 100
)

// Alchemy is a client for the Alchemy NFT API (v3).
type Alchemy struct {
	c      *Client
	apiKey string
}

// NewAlchemy creates an Alchemy client. baseURL is the NFT API root,
// e.g. https://eth-mainnet.g.alchemy.com/nft/v3.
func NewAlchemy(baseURL, apiKey string, opts ...ClientOption) *Alchemy {
	return &Alchemy{c: NewClient("alchemy", baseURL, opts...), apiKey: apiKey}
}

// OwnedNFT is one token as returned by getNFTsForOwner.
// Optional fields are pointers so normalization can tell absent from empty.
type OwnedNFT struct {
	Contract    *NFTContract `json:"contract"`
	TokenID     string       `json:"tokenId"`
	Title       *string      `json:"title"`
	Name        *string      `json:"name"`
	Description *string      `json:"description"`
	Media       []NFTMedia   `json:"media"`
	Image       *NFTImage    `json:"image"`
}

// NFTContract identifies the token contract.
type NFTContract struct {
	Address string `json:"address"`
}

// NFTMedia is a legacy media entry.
type NFTMedia struct {
	Gateway string `json:"gateway"`
}

// NFTImage holds v3 image URLs.
type NFTImage struct {
	CachedURL   string `json:"cachedUrl"`
	OriginalURL string `json:"originalUrl"`
}

type ownedNFTsPage struct {
	OwnedNFTs  *[]OwnedNFT `json:"ownedNfts"`
	PageKey    string      `json:"pageKey"`
	TotalCount *int        `json:"totalCount"`
}

// OwnedNFTs returns every token owned by owner, following pagination.
// An owner with no tokens yields an empty, non-nil slice.
func (a *Alchemy) OwnedNFTs(ctx context.Context, owner string) ([]OwnedNFT, error) {
	path := "/" + url.PathEscape(a.apiKey) + "/getNFTsForOwner"
	result := make([]OwnedNFT, 0)
	pageKey := ""

	for page := 0; page < alchemyMaxPages; page++ {
		q := url.Values{
			"owner":        {owner},
			"withMetadata": {"true"},
			"pageSize":     {strconv.Itoa(alchemyPageSize)},
		}
		if pageKey != "" {
			q.Set("pageKey", pageKey)
		}

		var resp ownedNFTsPage
		if err := a.c.GetJSON(ctx, path, q, &resp); err != nil {
			return nil, err
		}
		if resp.OwnedNFTs == nil {
			return nil, fmt.Errorf("alchemy getNFTsForOwner: %w: missing ownedNfts", ErrMalformedResponse)
		}
		result = append(result, *resp.OwnedNFTs...)

		if resp.PageKey == "" {
			return result, nil
		}
		pageKey = resp.PageKey
	}

	return nil, fmt.Errorf("alchemy getNFTsForOwner: %w: more than %d pages", ErrMalformedResponse, alchemyMaxPages)
}
