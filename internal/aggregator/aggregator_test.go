package aggregator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castboard/internal/domain"
	"castboard/internal/enrichment"
	"castboard/internal/identity"
)

const aliceAddr = "0xAbC0000000000000000000000000000000000123"

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubResolver struct {
	handles map[string]string
	err     error
}

func (s stubResolver) Resolve(_ context.Context, input string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if domain.IsAddress(input) {
		return input, nil
	}
	if addr, ok := s.handles[input]; ok {
		return addr, nil
	}
	return "", identity.ErrIdentityNotFound
}

type stubNFTs struct {
	items []domain.NFTSummary
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *stubNFTs) FetchHoldings(ctx context.Context, _ string) (enrichment.Holdings, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return enrichment.Holdings{}, ctx.Err()
		}
	}
	if s.err != nil {
		return enrichment.Holdings{}, s.err
	}
	return enrichment.Holdings{Count: len(s.items), Items: s.items}, nil
}

type stubActivity struct {
	score int
	err   error
	calls atomic.Int32
}

func (s *stubActivity) FetchActivity(context.Context, string) (int, error) {
	s.calls.Add(1)
	return s.score, s.err
}

func threeNFTs() []domain.NFTSummary {
	return []domain.NFTSummary{
		{ContractAddress: "0xc1", Title: "One", Description: enrichment.DefaultDescription},
		{ContractAddress: "0xc2", Title: "Two", Description: enrichment.DefaultDescription},
		{ContractAddress: "0xc3", Title: enrichment.DefaultTitle, Description: "three"},
	}
}

func newTestAggregator(r AddressResolver, n HoldingsFetcher, a ActivityFetcher) *Aggregator {
	return New(Options{
		Resolver:    r,
		NFTs:        n,
		Activity:    a,
		CallTimeout: time.Second,
		Clock:       func() time.Time { return fixedNow },
		Logger:      zerolog.Nop(),
	})
}

func TestEnrich_Handle(t *testing.T) {
	agg := newTestAggregator(
		stubResolver{handles: map[string]string{"alice": aliceAddr}},
		&stubNFTs{items: threeNFTs()},
		&stubActivity{score: 12},
	)

	p, err := agg.Enrich(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "0xabc0000000000000000000000000000000000123", p.Address)
	assert.Equal(t, "alice", p.DisplayName)
	assert.Equal(t, 3, p.NFTCount)
	assert.Len(t, p.NFTHoldings, 3)
	assert.Equal(t, 12, p.ActivityScore)
	assert.Equal(t, fixedNow, p.LastUpdated)
}

func TestEnrich_AddressUsesAddressAsName(t *testing.T) {
	agg := newTestAggregator(stubResolver{}, &stubNFTs{items: []domain.NFTSummary{}}, &stubActivity{})

	p, err := agg.Enrich(context.Background(), aliceAddr)
	require.NoError(t, err)

	assert.Equal(t, "0xabc0000000000000000000000000000000000123", p.Address)
	assert.Equal(t, p.Address, p.DisplayName)
	assert.Zero(t, p.NFTCount)
	assert.NotNil(t, p.NFTHoldings)
	assert.Zero(t, p.ActivityScore)
}

func TestEnrich_ResolverErrorsAbort(t *testing.T) {
	nfts := &stubNFTs{}
	act := &stubActivity{}

	tests := []struct {
		name string
		r    stubResolver
		want error
	}{
		{"not found", stubResolver{}, identity.ErrIdentityNotFound},
		{"unavailable", stubResolver{err: identity.ErrIdentityServiceUnavailable}, identity.ErrIdentityServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newTestAggregator(tt.r, nfts, act)
			p, err := agg.Enrich(context.Background(), "nobody")
			assert.Nil(t, p)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, nfts.calls.Load(), "fetchers must not run after a failed resolve")
	assert.Zero(t, act.calls.Load())
}

func TestEnrich_FetchFailureYieldsNoParticipant(t *testing.T) {
	tests := []struct {
		name string
		nfts *stubNFTs
		act  *stubActivity
	}{
		{"nft failure", &stubNFTs{err: enrichment.ErrEnrichmentUnavailable}, &stubActivity{score: 4}},
		{"activity failure", &stubNFTs{items: threeNFTs()}, &stubActivity{err: errors.New("boom")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newTestAggregator(stubResolver{}, tt.nfts, tt.act)
			p, err := agg.Enrich(context.Background(), aliceAddr)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, enrichment.ErrEnrichmentUnavailable)
		})
	}
}

func TestEnrich_TimeoutIsUnavailable(t *testing.T) {
	agg := New(Options{
		Resolver:    stubResolver{},
		NFTs:        &stubNFTs{delay: time.Second},
		Activity:    &stubActivity{},
		CallTimeout: 20 * time.Millisecond,
		Logger:      zerolog.Nop(),
	})

	start := time.Now()
	_, err := agg.Enrich(context.Background(), aliceAddr)
	assert.ErrorIs(t, err, enrichment.ErrEnrichmentUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestEnrich_ConcurrentCalls(t *testing.T) {
	agg := newTestAggregator(stubResolver{}, &stubNFTs{items: threeNFTs()}, &stubActivity{score: 1})

	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			_, err := agg.Enrich(context.Background(), aliceAddr)
			done <- err
		}()
	}
	for i := 0; i < 16; i++ {
		require.NoError(t, <-done)
	}
}

func TestEnrichAll(t *testing.T) {
	agg := newTestAggregator(
		stubResolver{handles: map[string]string{"alice": aliceAddr}},
		&stubNFTs{items: threeNFTs()},
		&stubActivity{score: 2},
	)

	results := agg.EnrichAll(context.Background(), []string{"alice", "ghost", aliceAddr}, 2)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "alice", results[0].Participant.DisplayName)
	assert.ErrorIs(t, results[1].Err, identity.ErrIdentityNotFound)
	assert.Nil(t, results[1].Participant)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "ghost", results[1].Input)
}
