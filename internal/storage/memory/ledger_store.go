package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"castboard/internal/domain"
	"castboard/internal/storage"
)

type ledgerRow struct {
	entry  domain.LedgerEntry
	active bool
}

// LedgerStore implements storage.LedgerStore using in-memory storage.
type LedgerStore struct {
	mu    sync.RWMutex
	rows  map[string]*ledgerRow
	order []string // first registration order
}

// NewLedgerStore creates a new in-memory ledger.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		rows: make(map[string]*ledgerRow),
	}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// ActiveParticipants returns copies of all active entries in registration order.
func (s *LedgerStore) ActiveParticipants(_ context.Context) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LedgerEntry, 0, len(s.order))
	for _, addr := range s.order {
		if row := s.rows[addr]; row.active {
			result = append(result, row.entry)
		}
	}
	return result, nil
}

// AddParticipant registers or reactivates address with zero counts.
func (s *LedgerStore) AddParticipant(_ context.Context, address, name string) error {
	addr, err := normalize(address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[addr]
	if ok && row.active {
		return storage.ErrDuplicateKey
	}
	if !ok {
		row = &ledgerRow{}
		s.rows[addr] = row
		s.order = append(s.order, addr)
	}
	row.entry = domain.LedgerEntry{Address: addr, Name: name}
	row.active = true
	return nil
}

// UpdateParticipant sets the counts for an active address.
func (s *LedgerStore) UpdateParticipant(_ context.Context, address string, nftCount, activityScore int) error {
	if nftCount < 0 || activityScore < 0 {
		return fmt.Errorf("%w: negative count", storage.ErrInvalidInput)
	}
	addr := strings.ToLower(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[addr]
	if !ok || !row.active {
		return storage.ErrNotFound
	}
	row.entry.NFTCount = nftCount
	row.entry.ActivityScore = activityScore
	return nil
}

// RemoveParticipant deactivates address.
func (s *LedgerStore) RemoveParticipant(_ context.Context, address string) error {
	addr := strings.ToLower(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[addr]
	if !ok || !row.active {
		return storage.ErrNotFound
	}
	row.active = false
	return nil
}

func normalize(address string) (string, error) {
	addr, err := domain.NormalizeAddress(address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	return addr, nil
}
