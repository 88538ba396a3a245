package memory

import (
	"context"
	"strings"
	"sync"

	"castboard/internal/domain"
	"castboard/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using in-memory storage.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots []*domain.Snapshot // in save order
	ids       map[string]struct{}
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		ids: make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Save stores a copy of s.
func (m *SnapshotStore) Save(_ context.Context, s *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.ids[s.ID]; exists {
		return storage.ErrDuplicateKey
	}

	m.ids[s.ID] = struct{}{}
	m.snapshots = append(m.snapshots, copySnapshot(s))
	return nil
}

// Latest returns the snapshot with the greatest TakenAt; ties go to the last saved.
func (m *SnapshotStore) Latest(_ context.Context) (*domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *domain.Snapshot
	for _, s := range m.snapshots {
		if latest == nil || !s.TakenAt.Before(latest.TakenAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(latest), nil
}

// History returns up to limit rank points for address, newest first.
func (m *SnapshotStore) History(_ context.Context, address string, limit int) ([]domain.RankPoint, error) {
	addr := strings.ToLower(address)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.RankPoint
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		s := m.snapshots[i]
		for _, row := range s.Rows {
			if row.Address != addr {
				continue
			}
			result = append(result, domain.RankPoint{
				SnapshotID:    s.ID,
				TakenAt:       s.TakenAt,
				Rank:          row.Rank,
				NFTCount:      row.NFTCount,
				ActivityScore: row.ActivityScore,
			})
			break
		}
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func copySnapshot(s *domain.Snapshot) *domain.Snapshot {
	c := *s
	c.Rows = make([]domain.SnapshotRow, len(s.Rows))
	copy(c.Rows, s.Rows)
	return &c
}
