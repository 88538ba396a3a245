package domain

import "time"

// Snapshot is a ranked capture of the leaderboard.
// Corresponds to leaderboard_snapshots table in ClickHouse (one row per participant).
type Snapshot struct {
	ID      string    // uuid
	TakenAt time.Time // capture time
	SortKey SortKey   // ordering used for Rank
	Rows    []SnapshotRow
}

// SnapshotRow is one ranked participant within a snapshot.
type SnapshotRow struct {
	Rank          int // 1-based
	Address       string
	DisplayName   string
	NFTCount      int
	ActivityScore int
}

// RankPoint is one participant's position at a point in time.
type RankPoint struct {
	SnapshotID    string
	TakenAt       time.Time
	Rank          int
	NFTCount      int
	ActivityScore int
}

// NewSnapshot builds a snapshot from participants already ordered by key.
func NewSnapshot(id string, takenAt time.Time, key SortKey, ranked []*Participant) *Snapshot {
	rows := make([]SnapshotRow, len(ranked))
	for i, p := range ranked {
		rows[i] = SnapshotRow{
			Rank:          i + 1,
			Address:       p.Address,
			DisplayName:   p.DisplayName,
			NFTCount:      p.NFTCount,
			ActivityScore: p.ActivityScore,
		}
	}
	return &Snapshot{ID: id, TakenAt: takenAt, SortKey: key, Rows: rows}
}
