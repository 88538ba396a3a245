package postgres

import (
	"context"
	"fmt"
	"time"

	"castboard/internal/domain"
	"castboard/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// ActiveParticipants returns all active entries ordered by registration time.
func (s *LedgerStore) ActiveParticipants(ctx context.Context) (_ []domain.LedgerEntry, err error) {
	defer observe("ledger_active", time.Now(), &err)

	query := `
		SELECT address, name, nft_count, activity_score
		FROM ledger_participants
		WHERE is_active
		ORDER BY registered_at ASC, address ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active participants: %w", err)
	}
	defer rows.Close()

	result := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.Address, &e.Name, &e.NFTCount, &e.ActivityScore); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return result, nil
}

// AddParticipant registers address, or reactivates it with reset counts if it was removed.
// Returns ErrDuplicateKey if address is already active.
func (s *LedgerStore) AddParticipant(ctx context.Context, address, name string) (err error) {
	defer observe("ledger_add", time.Now(), &err)

	addr, err := domain.NormalizeAddress(address)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO ledger_participants (address, name)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			nft_count = 0,
			activity_score = 0,
			is_active = TRUE,
			registered_at = now(),
			updated_at = now()
		WHERE NOT ledger_participants.is_active
	`

	tag, err := s.pool.Exec(ctx, query, addr, name)
	if err != nil {
		return translate("insert participant", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// UpdateParticipant sets the counts for an active address.
func (s *LedgerStore) UpdateParticipant(ctx context.Context, address string, nftCount, activityScore int) (err error) {
	defer observe("ledger_update", time.Now(), &err)

	query := `
		UPDATE ledger_participants
		SET nft_count = $2, activity_score = $3, updated_at = now()
		WHERE address = lower($1) AND is_active
	`

	tag, err := s.pool.Exec(ctx, query, address, nftCount, activityScore)
	if err != nil {
		return translate("update participant", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RemoveParticipant deactivates address.
func (s *LedgerStore) RemoveParticipant(ctx context.Context, address string) (err error) {
	defer observe("ledger_remove", time.Now(), &err)

	query := `
		UPDATE ledger_participants
		SET is_active = FALSE, updated_at = now()
		WHERE address = lower($1) AND is_active
	`

	tag, err := s.pool.Exec(ctx, query, address)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
