package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"castboard/internal/domain"
	"castboard/internal/storage"
)

func testSnapshot(id string, at time.Time, rows ...domain.SnapshotRow) *domain.Snapshot {
	return &domain.Snapshot{ID: id, TakenAt: at, SortKey: domain.SortByNFTCount, Rows: rows}
}

func TestSnapshotStore_SaveLatest(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.Latest(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	s1 := testSnapshot("s1", t0, domain.SnapshotRow{Rank: 1, Address: addrA, NFTCount: 3})
	s2 := testSnapshot("s2", t0.Add(time.Minute),
		domain.SnapshotRow{Rank: 1, Address: addrB, NFTCount: 4},
		domain.SnapshotRow{Rank: 2, Address: addrA, NFTCount: 3},
	)
	for _, s := range []*domain.Snapshot{s1, s2} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if err := store.Save(ctx, s1); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ID != "s2" || len(latest.Rows) != 2 {
		t.Errorf("unexpected latest %+v", latest)
	}

	// Returned snapshots are copies.
	latest.Rows[0].Rank = 99
	again, _ := store.Latest(ctx)
	if again.Rows[0].Rank != 1 {
		t.Errorf("store was mutated through returned snapshot")
	}
}

func TestSnapshotStore_History(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_ = store.Save(ctx, testSnapshot("s1", t0, domain.SnapshotRow{Rank: 1, Address: addrA}))
	_ = store.Save(ctx, testSnapshot("s2", t0.Add(time.Minute), domain.SnapshotRow{Rank: 1, Address: addrB}))
	_ = store.Save(ctx, testSnapshot("s3", t0.Add(2*time.Minute),
		domain.SnapshotRow{Rank: 1, Address: addrB},
		domain.SnapshotRow{Rank: 2, Address: addrA},
	))

	points, err := store.History(ctx, addrA, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].SnapshotID != "s3" || points[0].Rank != 2 {
		t.Errorf("unexpected newest point %+v", points[0])
	}
	if points[1].SnapshotID != "s1" || points[1].Rank != 1 {
		t.Errorf("unexpected oldest point %+v", points[1])
	}

	limited, _ := store.History(ctx, addrA, 1)
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
}
