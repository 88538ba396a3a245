// Package leaderboard holds the in-memory set of participants and produces sorted views.
package leaderboard

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"castboard/internal/domain"
	"castboard/internal/observability"
)

var (
	// ErrDuplicateParticipant is returned by Insert when the address is already present.
	ErrDuplicateParticipant = errors.New("participant already on leaderboard")

	// ErrNotFound is returned when an address is not on the leaderboard.
	ErrNotFound = errors.New("participant not found")
)

type entry struct {
	p   *domain.Participant
	seq uint64 // insertion order, kept across replacements
}

// Store is a concurrency-safe participant set keyed by lowercase address.
// Stored participants are copies; callers never share memory with the store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	nextSeq uint64
	lang    language.Tag
}

// StoreOption configures Store.
type StoreOption func(*Store)

// WithLanguage sets the collation language used for display name ordering.
func WithLanguage(tag language.Tag) StoreOption {
	return func(s *Store) {
		s.lang = tag
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[string]entry),
		lang:    language.English,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert adds p. Returns ErrDuplicateParticipant if the address is present.
func (s *Store) Insert(p *domain.Participant) error {
	return s.Update(func(tx *Tx) error {
		return tx.Insert(p)
	})
}

// Upsert inserts p or replaces the existing participant in place.
// A replacement keeps the original insertion position.
func (s *Store) Upsert(p *domain.Participant) error {
	return s.Update(func(tx *Tx) error {
		return tx.Upsert(p)
	})
}

// Remove deletes the participant with address. Returns ErrNotFound if absent.
func (s *Store) Remove(address string) error {
	return s.Update(func(tx *Tx) error {
		return tx.Remove(address)
	})
}

// Get returns a copy of the participant, including cached holdings.
func (s *Store) Get(address string) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key(address)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	return e.p.Clone(), nil
}

// Len returns the number of participants.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// List returns copies of all participants in insertion order.
func (s *Store) List() []*domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := s.ordered()
	out := make([]*domain.Participant, len(ordered))
	for i, e := range ordered {
		out[i] = e.p.Clone()
	}
	return out
}

// SortedView returns copies of all participants ordered by sortKey.
// The sort is stable: ties keep insertion order in both directions.
// Stored data is never reordered or modified.
func (s *Store) SortedView(sortKey domain.SortKey, ascending bool) ([]*domain.Participant, error) {
	if !sortKey.IsValid() {
		return nil, fmt.Errorf("unknown sort key %q", sortKey)
	}

	s.mu.RLock()
	ordered := s.ordered()
	out := make([]*domain.Participant, len(ordered))
	for i, e := range ordered {
		out[i] = e.p.Clone()
	}
	lang := s.lang
	s.mu.RUnlock()

	cmp := comparator(sortKey, lang)
	sort.SliceStable(out, func(i, j int) bool {
		c := cmp(out[i], out[j])
		if ascending {
			return c < 0
		}
		return c > 0
	})
	return out, nil
}

// comparator returns a three-way comparison for key.
// Collators are not safe for concurrent use, so one is built per view.
func comparator(sortKey domain.SortKey, lang language.Tag) func(a, b *domain.Participant) int {
	switch sortKey {
	case domain.SortByNFTCount:
		return func(a, b *domain.Participant) int { return a.NFTCount - b.NFTCount }
	case domain.SortByActivity:
		return func(a, b *domain.Participant) int { return a.ActivityScore - b.ActivityScore }
	default:
		col := collate.New(lang)
		return func(a, b *domain.Participant) int {
			return col.CompareString(a.DisplayName, b.DisplayName)
		}
	}
}

// ordered returns entries by insertion order. Caller must hold mu.
func (s *Store) ordered() []entry {
	out := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Update runs fn under the write lock against a working copy of the store.
// All changes made through tx become visible together when fn returns nil;
// if fn returns an error the store is left unchanged.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{
		entries: make(map[string]entry, len(s.entries)),
		nextSeq: s.nextSeq,
	}
	for k, v := range s.entries {
		tx.entries[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.entries = tx.entries
	s.nextSeq = tx.nextSeq
	for _, op := range tx.ops {
		observability.RecordLeaderboardMutation(op, len(s.entries))
	}
	return nil
}

// Tx is a working copy of the store passed to Update. It must not be used after fn returns.
type Tx struct {
	entries map[string]entry
	nextSeq uint64
	ops     []string
}

// Get returns a copy of the participant with address.
func (tx *Tx) Get(address string) (*domain.Participant, bool) {
	e, ok := tx.entries[key(address)]
	if !ok {
		return nil, false
	}
	return e.p.Clone(), true
}

// Addresses returns all addresses in the working copy.
func (tx *Tx) Addresses() []string {
	out := make([]string, 0, len(tx.entries))
	for k := range tx.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Insert adds p. Returns ErrDuplicateParticipant if the address is present.
func (tx *Tx) Insert(p *domain.Participant) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, ok := tx.entries[p.Address]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateParticipant, p.Address)
	}
	tx.entries[p.Address] = entry{p: p.Clone(), seq: tx.nextSeq}
	tx.nextSeq++
	tx.ops = append(tx.ops, "insert")
	return nil
}

// Upsert inserts p or replaces the existing participant, keeping its position.
func (tx *Tx) Upsert(p *domain.Participant) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if e, ok := tx.entries[p.Address]; ok {
		tx.entries[p.Address] = entry{p: p.Clone(), seq: e.seq}
		tx.ops = append(tx.ops, "update")
		return nil
	}
	return tx.Insert(p)
}

// Remove deletes the participant with address. Returns ErrNotFound if absent.
func (tx *Tx) Remove(address string) error {
	k := key(address)
	if _, ok := tx.entries[k]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	delete(tx.entries, k)
	tx.ops = append(tx.ops, "remove")
	return nil
}

func key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
