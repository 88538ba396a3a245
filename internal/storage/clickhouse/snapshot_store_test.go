package clickhouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castboard/internal/domain"
	"castboard/internal/storage"
)

const (
	addrA = "0x00000000000000000000000000000000000000aa"
	addrB = "0x00000000000000000000000000000000000000bb"
)

func TestSnapshotStore_SaveAndLatest(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(conn)
	ctx := context.Background()

	_, err := store.Latest(ctx)
	assert.True(t, errors.Is(err, storage.ErrNotFound), "expected ErrNotFound, got %v", err)

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := &domain.Snapshot{
		ID: "s1", TakenAt: t0, SortKey: domain.SortByNFTCount,
		Rows: []domain.SnapshotRow{{Rank: 1, Address: addrA, DisplayName: "alice", NFTCount: 3, ActivityScore: 12}},
	}
	second := &domain.Snapshot{
		ID: "s2", TakenAt: t0.Add(time.Minute), SortKey: domain.SortByNFTCount,
		Rows: []domain.SnapshotRow{
			{Rank: 1, Address: addrB, DisplayName: "bob", NFTCount: 5, ActivityScore: 1},
			{Rank: 2, Address: addrA, DisplayName: "alice", NFTCount: 3, ActivityScore: 12},
		},
	}
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	err = store.Save(ctx, first)
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey), "expected ErrDuplicateKey, got %v", err)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s2", latest.ID)
	assert.Equal(t, domain.SortByNFTCount, latest.SortKey)
	assert.True(t, latest.TakenAt.Equal(second.TakenAt))
	assert.Equal(t, second.Rows, latest.Rows)
}

func TestSnapshotStore_EmptySnapshot(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(conn)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Snapshot{ID: "empty", TakenAt: time.Now().UTC(), SortKey: domain.SortByNFTCount}))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "empty", latest.ID)
	assert.Empty(t, latest.Rows)
}

func TestSnapshotStore_History(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(conn)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, rank := range []int{3, 1, 2} {
		snap := &domain.Snapshot{
			ID:      string(rune('a' + i)),
			TakenAt: t0.Add(time.Duration(i) * time.Minute),
			SortKey: domain.SortByNFTCount,
			Rows:    []domain.SnapshotRow{{Rank: rank, Address: addrA, DisplayName: "alice", NFTCount: i}},
		}
		require.NoError(t, store.Save(ctx, snap))
	}

	points, err := store.History(ctx, addrA, 2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "c", points[0].SnapshotID)
	assert.Equal(t, 2, points[0].Rank)
	assert.Equal(t, "b", points[1].SnapshotID)
	assert.Equal(t, 1, points[1].Rank)

	none, err := store.History(ctx, addrB, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
