package storage

import (
	"context"

	"castboard/internal/domain"
)

// LedgerStore is a database-backed participant ledger, used in place of the
// on-chain registry. Removal deactivates a row; re-adding reactivates it.
type LedgerStore interface {
	// ActiveParticipants returns all active entries ordered by first registration.
	ActiveParticipants(ctx context.Context) ([]domain.LedgerEntry, error)

	// AddParticipant registers address with zero counts.
	// Returns ErrDuplicateKey if address is already active.
	AddParticipant(ctx context.Context, address, name string) error

	// UpdateParticipant sets the counts for an active address. Returns ErrNotFound if not active.
	UpdateParticipant(ctx context.Context, address string, nftCount, activityScore int) error

	// RemoveParticipant deactivates address. Returns ErrNotFound if not active.
	RemoveParticipant(ctx context.Context, address string) error
}

// SnapshotStore provides access to leaderboard_snapshots storage.
type SnapshotStore interface {
	// Save stores a snapshot. Returns ErrDuplicateKey if the snapshot ID exists.
	Save(ctx context.Context, s *domain.Snapshot) error

	// Latest returns the most recent snapshot. Returns ErrNotFound if none exist.
	Latest(ctx context.Context) (*domain.Snapshot, error)

	// History returns up to limit rank points for address, newest first.
	History(ctx context.Context, address string, limit int) ([]domain.RankPoint, error)
}
