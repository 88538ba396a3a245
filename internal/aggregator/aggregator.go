// Package aggregator assembles a Participant from an address or handle by
// resolving the identity and fetching NFT holdings and activity concurrently.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"castboard/internal/domain"
	"castboard/internal/enrichment"
	"castboard/internal/identity"
	"castboard/internal/observability"
)

// DefaultCallTimeout bounds each external call made during enrichment.
const DefaultCallTimeout = 10 * time.Second

// DefaultConcurrency is the EnrichAll parallelism used when none is given.
const DefaultConcurrency = 4

// AddressResolver resolves user input to a wallet address.
type AddressResolver interface {
	Resolve(ctx context.Context, input string) (string, error)
}

// HoldingsFetcher returns the NFT holdings of an address.
type HoldingsFetcher interface {
	FetchHoldings(ctx context.Context, address string) (enrichment.Holdings, error)
}

// ActivityFetcher returns the activity score of an address.
type ActivityFetcher interface {
	FetchActivity(ctx context.Context, address string) (int, error)
}

// Options configures an Aggregator.
type Options struct {
	Resolver    AddressResolver
	NFTs        HoldingsFetcher
	Activity    ActivityFetcher
	CallTimeout time.Duration    // per external call; 0 uses DefaultCallTimeout
	Clock       func() time.Time // nil uses time.Now
	Logger      zerolog.Logger
}

// Aggregator is stateless and safe for concurrent use.
type Aggregator struct {
	resolver    AddressResolver
	nfts        HoldingsFetcher
	activity    ActivityFetcher
	callTimeout time.Duration
	clock       func() time.Time
	logger      zerolog.Logger
}

// New creates an Aggregator.
func New(opts Options) *Aggregator {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Aggregator{
		resolver:    opts.Resolver,
		nfts:        opts.NFTs,
		activity:    opts.Activity,
		callTimeout: opts.CallTimeout,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
}

// Enrich builds a fully populated Participant for input.
// Either fetch failing fails the whole call; no partial participant is returned.
func (a *Aggregator) Enrich(ctx context.Context, input string) (*domain.Participant, error) {
	start := time.Now()
	p, err := a.enrich(ctx, input)
	observability.RecordEnrichment(outcome(err), time.Since(start).Seconds())
	if err != nil {
		a.logger.Warn().Err(err).Str("input", input).Msg("enrichment failed")
		return nil, err
	}
	a.logger.Debug().
		Str("address", p.Address).
		Int("nfts", p.NFTCount).
		Int("activity", p.ActivityScore).
		Dur("took", time.Since(start)).
		Msg("participant enriched")
	return p, nil
}

func (a *Aggregator) enrich(ctx context.Context, input string) (*domain.Participant, error) {
	input = strings.TrimSpace(input)

	rctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	address, err := a.resolver.Resolve(rctx, input)
	cancel()
	if err != nil {
		return nil, err
	}

	normalized, err := domain.NormalizeAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrIdentityServiceUnavailable, err)
	}

	displayName := normalized
	if !domain.IsAddress(input) {
		displayName = strings.TrimPrefix(input, "@")
	}

	var (
		holdings enrichment.Holdings
		activity int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(gctx, a.callTimeout)
		defer cancel()
		h, err := a.nfts.FetchHoldings(cctx, normalized)
		if err != nil {
			return unavailable("nft holdings", err)
		}
		holdings = h
		return nil
	})
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(gctx, a.callTimeout)
		defer cancel()
		score, err := a.activity.FetchActivity(cctx, normalized)
		if err != nil {
			return unavailable("activity", err)
		}
		activity = score
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := holdings.Items
	if items == nil {
		items = []domain.NFTSummary{}
	}
	p := &domain.Participant{
		Address:       normalized,
		DisplayName:   displayName,
		NFTCount:      len(items),
		NFTHoldings:   items,
		ActivityScore: activity,
		LastUpdated:   a.clock(),
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", enrichment.ErrEnrichmentUnavailable, err)
	}
	return p, nil
}

// unavailable makes sure every fetch failure surfaces as ErrEnrichmentUnavailable.
func unavailable(what string, err error) error {
	if errors.Is(err, enrichment.ErrEnrichmentUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", enrichment.ErrEnrichmentUnavailable, what, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, identity.ErrIdentityNotFound):
		return "identity_not_found"
	case errors.Is(err, identity.ErrIdentityServiceUnavailable):
		return "identity_unavailable"
	case errors.Is(err, enrichment.ErrEnrichmentUnavailable):
		return "enrichment_unavailable"
	default:
		return "error"
	}
}

// Result is the outcome of enriching one input in a batch.
type Result struct {
	Input       string
	Participant *domain.Participant
	Err         error
}

// EnrichAll enriches inputs with at most concurrency calls in flight.
// Results are returned in input order; one failure does not stop the others.
func (a *Aggregator) EnrichAll(ctx context.Context, inputs []string, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	results := make([]Result, len(inputs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			p, err := a.Enrich(ctx, in)
			results[i] = Result{Input: in, Participant: p, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
