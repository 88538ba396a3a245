package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"castboard/internal/domain"
	"castboard/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
// Rows go to leaderboard_snapshots; leaderboard_snapshot_index holds one row
// per snapshot so that empty snapshots are still listed.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Save stores a snapshot. Returns ErrDuplicateKey if the snapshot ID exists.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) (err error) {
	defer observe("snapshot_save", time.Now(), &err)

	exists, err := s.exists(ctx, snap.ID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	if len(snap.Rows) > 0 {
		batch, err := s.conn.PrepareBatch(ctx, `
			INSERT INTO leaderboard_snapshots (
				snapshot_id, taken_at, sort_key, rank,
				address, display_name, nft_count, activity_score
			)
		`)
		if err != nil {
			return fmt.Errorf("prepare batch: %w", err)
		}

		for _, r := range snap.Rows {
			err = batch.Append(
				snap.ID, snap.TakenAt.UTC(), string(snap.SortKey), uint32(r.Rank),
				r.Address, r.DisplayName, uint32(r.NFTCount), uint32(r.ActivityScore),
			)
			if err != nil {
				return fmt.Errorf("append to batch: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("send batch: %w", err)
		}
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO leaderboard_snapshot_index (snapshot_id, taken_at, sort_key, participants)
		VALUES (?, ?, ?, ?)
	`, snap.ID, snap.TakenAt.UTC(), string(snap.SortKey), uint32(len(snap.Rows)))
	if err != nil {
		return fmt.Errorf("insert snapshot index: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot. Returns ErrNotFound if none exist.
func (s *SnapshotStore) Latest(ctx context.Context) (_ *domain.Snapshot, err error) {
	defer observe("snapshot_latest", time.Now(), &err)

	rows, err := s.conn.Query(ctx, `
		SELECT snapshot_id, taken_at, sort_key
		FROM leaderboard_snapshot_index
		ORDER BY taken_at DESC, snapshot_id DESC
		LIMIT 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}

	var (
		snap    domain.Snapshot
		sortKey string
		found   bool
	)
	for rows.Next() {
		if err := rows.Scan(&snap.ID, &snap.TakenAt, &sortKey); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	snap.SortKey = domain.SortKey(sortKey)

	snap.Rows, err = s.rows(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *SnapshotStore) rows(ctx context.Context, snapshotID string) ([]domain.SnapshotRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT rank, address, display_name, nft_count, activity_score
		FROM leaderboard_snapshots
		WHERE snapshot_id = ?
		ORDER BY rank ASC
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("query snapshot rows: %w", err)
	}
	defer rows.Close()

	result := make([]domain.SnapshotRow, 0)
	for rows.Next() {
		var (
			r                    domain.SnapshotRow
			rank, nfts, activity uint32
		)
		if err := rows.Scan(&rank, &r.Address, &r.DisplayName, &nfts, &activity); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		r.Rank = int(rank)
		r.NFTCount = int(nfts)
		r.ActivityScore = int(activity)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return result, nil
}

// History returns up to limit rank points for address, newest first.
func (s *SnapshotStore) History(ctx context.Context, address string, limit int) (_ []domain.RankPoint, err error) {
	defer observe("snapshot_history", time.Now(), &err)

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.conn.Query(ctx, `
		SELECT snapshot_id, taken_at, rank, nft_count, activity_score
		FROM leaderboard_snapshots
		WHERE address = ?
		ORDER BY taken_at DESC, snapshot_id DESC
		LIMIT ?
	`, strings.ToLower(address), limit)
	if err != nil {
		return nil, fmt.Errorf("query rank history: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RankPoint, 0)
	for rows.Next() {
		var (
			p                    domain.RankPoint
			rank, nfts, activity uint32
		)
		if err := rows.Scan(&p.SnapshotID, &p.TakenAt, &rank, &nfts, &activity); err != nil {
			return nil, fmt.Errorf("scan rank point: %w", err)
		}
		p.Rank = int(rank)
		p.NFTCount = int(nfts)
		p.ActivityScore = int(activity)
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rank history: %w", err)
	}
	return result, nil
}

func (s *SnapshotStore) exists(ctx context.Context, snapshotID string) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM leaderboard_snapshot_index WHERE snapshot_id = ?`, snapshotID)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
