// Package board implements the leaderboard use cases: adding and removing
// participants through the ledger, and serving views from the local store.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"castboard/internal/domain"
	"castboard/internal/leaderboard"
	"castboard/internal/ledger"
	"castboard/internal/storage"
)

// ErrInvalidOrder is returned for an unknown sort direction.
var ErrInvalidOrder = errors.New("invalid sort order")

// Sort directions accepted by View.
const (
	OrderAsc    = "asc"
	OrderDesc   = "desc"
	OrderToggle = "toggle"
)

// Enricher builds a Participant from an address or handle.
type Enricher interface {
	Enrich(ctx context.Context, input string) (*domain.Participant, error)
}

// Options configures a Service.
type Options struct {
	Enricher Enricher
	Ledger   ledger.Writer // nil keeps writes local
	Store    *leaderboard.Store
	Sorter   *leaderboard.Sorter
	Logger   zerolog.Logger
}

// Service coordinates enrichment, ledger writes and the local store.
type Service struct {
	enricher Enricher
	ledger   ledger.Writer
	store    *leaderboard.Store
	sorter   *leaderboard.Sorter
	logger   zerolog.Logger
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	if opts.Sorter == nil {
		opts.Sorter = leaderboard.NewSorter()
	}
	return &Service{
		enricher: opts.Enricher,
		ledger:   opts.Ledger,
		store:    opts.Store,
		sorter:   opts.Sorter,
		logger:   opts.Logger,
	}
}

// Add enriches input, records the participant on the ledger, then stores it locally.
// If any ledger write fails the local store is unchanged.
func (s *Service) Add(ctx context.Context, input string) (*domain.Participant, error) {
	p, err := s.enricher.Enrich(ctx, input)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Get(p.Address); err == nil {
		return nil, fmt.Errorf("%w: %s", leaderboard.ErrDuplicateParticipant, p.Address)
	}

	if s.ledger != nil {
		if err := s.ledger.AddParticipant(ctx, p.Address, p.DisplayName); err != nil {
			return nil, ledgerError("add participant", err)
		}
		if err := s.ledger.UpdateParticipant(ctx, p.Address, p.NFTCount, p.ActivityScore); err != nil {
			s.rollbackAdd(ctx, p.Address)
			return nil, ledgerError("update participant", err)
		}
	}

	// A reconcile pass may already have inserted the ledger row; the
	// enriched record replaces it.
	if err := s.store.Upsert(p); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("address", p.Address).
		Str("name", p.DisplayName).
		Int("nfts", p.NFTCount).
		Int("activity", p.ActivityScore).
		Msg("participant added")
	return p.Clone(), nil
}

func (s *Service) rollbackAdd(ctx context.Context, address string) {
	if err := s.ledger.RemoveParticipant(ctx, address); err != nil {
		s.logger.Error().Err(err).Str("address", address).Msg("ledger rollback failed, reconciliation will pick up the partial entry")
	}
}

// Refresh re-enriches an existing participant and records the new counts.
func (s *Service) Refresh(ctx context.Context, address string) (*domain.Participant, error) {
	addr, err := domain.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	current, err := s.store.Get(addr)
	if err != nil {
		return nil, err
	}

	p, err := s.enricher.Enrich(ctx, addr)
	if err != nil {
		return nil, err
	}
	// Keep the name the participant was added under.
	p.DisplayName = current.DisplayName

	if s.ledger != nil {
		if err := s.ledger.UpdateParticipant(ctx, addr, p.NFTCount, p.ActivityScore); err != nil {
			return nil, ledgerError("update participant", err)
		}
	}

	if err := s.store.Upsert(p); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// Remove deletes a participant from the ledger and then from the local store.
func (s *Service) Remove(ctx context.Context, address string) error {
	addr, err := domain.NormalizeAddress(address)
	if err != nil {
		return err
	}
	if _, err := s.store.Get(addr); err != nil {
		return err
	}

	if s.ledger != nil {
		err := s.ledger.RemoveParticipant(ctx, addr)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return ledgerError("remove participant", err)
		}
	}

	if err := s.store.Remove(addr); err != nil {
		return err
	}
	s.logger.Info().Str("address", addr).Msg("participant removed")
	return nil
}

// View returns the leaderboard ordered by key.
// order is asc or desc to force a direction. toggle and empty both flip when
// key repeats the last served key and start descending otherwise.
func (s *Service) View(key domain.SortKey, order string) ([]*domain.Participant, bool, error) {
	if !key.IsValid() {
		return nil, false, fmt.Errorf("unknown sort key %q", key)
	}

	var ascending bool
	switch strings.ToLower(order) {
	case OrderAsc, OrderDesc:
		ascending = strings.EqualFold(order, OrderAsc)
		s.sorter.Set(key, ascending)
	case OrderToggle, "":
		ascending = s.sorter.Next(key)
	default:
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidOrder, order)
	}

	view, err := s.store.SortedView(key, ascending)
	if err != nil {
		return nil, false, err
	}
	return view, ascending, nil
}

// Holdings returns the cached NFT holdings for address without re-fetching.
// tracked is false when holdings were elided and only the count is known.
func (s *Service) Holdings(address string) (p *domain.Participant, tracked bool, err error) {
	addr, err := domain.NormalizeAddress(address)
	if err != nil {
		return nil, false, err
	}
	p, err = s.store.Get(addr)
	if err != nil {
		return nil, false, err
	}
	return p, p.HoldingsTracked(), nil
}

// ledgerError maps storage-level failures onto leaderboard and ledger errors.
func ledgerError(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		return fmt.Errorf("%w: already on ledger", leaderboard.ErrDuplicateParticipant)
	case errors.Is(err, ledger.ErrLedgerUnavailable),
		errors.Is(err, ledger.ErrReadOnly),
		errors.Is(err, ledger.ErrWriteRejected):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%w: %s: %v", ledger.ErrLedgerUnavailable, op, err)
	}
}

// Len returns the number of participants on the local leaderboard.
func (s *Service) Len() int {
	return s.store.Len()
}
