package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Neynar is a client for the Farcaster identity and cast endpoints.
type Neynar struct {
	c *Client
}

// NewNeynar creates a Neynar client authenticated with apiKey.
func NewNeynar(baseURL, apiKey string, opts ...ClientOption) *Neynar {
	opts = append([]ClientOption{WithHeader("api_key", apiKey)}, opts...)
	return &Neynar{c: NewClient("neynar", baseURL, opts...)}
}

// NeynarUser is the subset of the Farcaster user object we read.
type NeynarUser struct {
	FID               int64                   `json:"fid"`
	Username          string                  `json:"username"`
	VerifiedAddresses NeynarVerifiedAddresses `json:"verified_addresses"`
}

// NeynarVerifiedAddresses lists addresses a user proved ownership of.
type NeynarVerifiedAddresses struct {
	EthAddresses []string `json:"eth_addresses"`
}

// Cast is one social activity event.
type Cast struct {
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
}

type neynarUserEnvelope struct {
	Result *struct {
		User *NeynarUser `json:"user"`
	} `json:"result"`
}

type neynarCastsEnvelope struct {
	Result *struct {
		Casts []Cast `json:"casts"`
	} `json:"result"`
}

// VerifiedAddresses returns the verified Ethereum addresses for a username.
// An unknown username yields an empty list and no error.
func (n *Neynar) VerifiedAddresses(ctx context.Context, username string) ([]string, error) {
	var env neynarUserEnvelope
	err := n.c.GetJSON(ctx, "/v2/farcaster/user-by-username", url.Values{"username": {username}}, &env)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if env.Result == nil {
		return nil, fmt.Errorf("neynar user-by-username: %w: missing result", ErrMalformedResponse)
	}
	if env.Result.User == nil {
		return nil, nil
	}
	return env.Result.User.VerifiedAddresses.EthAddresses, nil
}

// FIDByAddress returns the Farcaster ID linked to a verified address.
// found is false when the address has no linked account.
func (n *Neynar) FIDByAddress(ctx context.Context, address string) (fid int64, found bool, err error) {
	var env neynarUserEnvelope
	err = n.c.GetJSON(ctx, "/v2/farcaster/user-by-verification", url.Values{"address": {address}}, &env)
	if err != nil {
		if IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if env.Result == nil {
		return 0, false, fmt.Errorf("neynar user-by-verification: %w: missing result", ErrMalformedResponse)
	}
	if env.Result.User == nil || env.Result.User.FID <= 0 {
		return 0, false, nil
	}
	return env.Result.User.FID, true, nil
}

// RecentCasts returns up to limit of the most recent casts by fid.
func (n *Neynar) RecentCasts(ctx context.Context, fid int64, limit int) ([]Cast, error) {
	q := url.Values{
		"fid":   {strconv.FormatInt(fid, 10)},
		"limit": {strconv.Itoa(limit)},
	}

	var env neynarCastsEnvelope
	if err := n.c.GetJSON(ctx, "/v2/farcaster/casts", q, &env); err != nil {
		return nil, err
	}
	if env.Result == nil {
		return nil, fmt.Errorf("neynar casts: %w: missing result", ErrMalformedResponse)
	}
	return env.Result.Casts, nil
}
