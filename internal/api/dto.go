package api

import (
	"time"

	"castboard/internal/domain"
	"castboard/internal/reconcile"
)

// AddRequest is the body of POST /participants.
// Input takes an address or a handle. Address and Username are accepted
// from older clients; Username wins when both are set.
type AddRequest struct {
	Input    string `json:"input"`
	Address  string `json:"address,omitempty"`
	Username string `json:"username,omitempty"`
}

func (r AddRequest) value() string {
	switch {
	case r.Input != "":
		return r.Input
	case r.Username != "":
		return r.Username
	default:
		return r.Address
	}
}

// NFTResponse is one owned token.
type NFTResponse struct {
	ContractAddress string `json:"contractAddress"`
	Title           string `json:"title"`
	MediaURL        string `json:"mediaUrl,omitempty"`
	Description     string `json:"description"`
}

// ParticipantResponse is one leaderboard row.
type ParticipantResponse struct {
	Address       string        `json:"address"`
	DisplayName   string        `json:"displayName"`
	NFTCount      int           `json:"nftCount"`
	ActivityScore int           `json:"activityScore"`
	LastUpdated   time.Time     `json:"lastUpdated"`
	NFTs          []NFTResponse `json:"nfts,omitempty"`
}

// LeaderboardResponse is the body of GET /leaderboard.
type LeaderboardResponse struct {
	Sort         string                `json:"sort"`
	Order        string                `json:"order"`
	Count        int                   `json:"count"`
	Participants []ParticipantResponse `json:"participants"`
}

// HoldingsResponse is the body of GET /participants/{address}/nfts.
// Tracked is false when only the count is known.
type HoldingsResponse struct {
	Address  string        `json:"address"`
	NFTCount int           `json:"nftCount"`
	Tracked  bool          `json:"tracked"`
	NFTs     []NFTResponse `json:"nfts"`
}

// RankPointResponse is one entry of a participant's rank history.
type RankPointResponse struct {
	SnapshotID    string    `json:"snapshotId"`
	TakenAt       time.Time `json:"takenAt"`
	Rank          int       `json:"rank"`
	NFTCount      int       `json:"nftCount"`
	ActivityScore int       `json:"activityScore"`
}

// SnapshotResponse is the body of GET /snapshots/latest.
type SnapshotResponse struct {
	ID      string            `json:"id"`
	TakenAt time.Time         `json:"takenAt"`
	SortKey string            `json:"sortKey"`
	Rows    []SnapshotRowJSON `json:"rows"`
}

// SnapshotRowJSON is one ranked row in a snapshot.
type SnapshotRowJSON struct {
	Rank          int    `json:"rank"`
	Address       string `json:"address"`
	DisplayName   string `json:"displayName"`
	NFTCount      int    `json:"nftCount"`
	ActivityScore int    `json:"activityScore"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status        string            `json:"status"`
	StartedAt     time.Time         `json:"startedAt"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Participants  int               `json:"participants"`
	Reconcile     *reconcile.Status `json:"reconcile,omitempty"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

func toNFTs(items []domain.NFTSummary) []NFTResponse {
	out := make([]NFTResponse, len(items))
	for i, n := range items {
		out[i] = NFTResponse{
			ContractAddress: n.ContractAddress,
			Title:           n.Title,
			MediaURL:        n.MediaURL,
			Description:     n.Description,
		}
	}
	return out
}

// NewParticipantResponse converts p, including holdings when withHoldings is set and they are tracked.
func NewParticipantResponse(p *domain.Participant, withHoldings bool) ParticipantResponse {
	resp := ParticipantResponse{
		Address:       p.Address,
		DisplayName:   p.DisplayName,
		NFTCount:      p.NFTCount,
		ActivityScore: p.ActivityScore,
		LastUpdated:   p.LastUpdated,
	}
	if withHoldings && p.HoldingsTracked() {
		resp.NFTs = toNFTs(p.NFTHoldings)
	}
	return resp
}

func toSnapshot(s *domain.Snapshot) SnapshotResponse {
	rows := make([]SnapshotRowJSON, len(s.Rows))
	for i, r := range s.Rows {
		rows[i] = SnapshotRowJSON{
			Rank:          r.Rank,
			Address:       r.Address,
			DisplayName:   r.DisplayName,
			NFTCount:      r.NFTCount,
			ActivityScore: r.ActivityScore,
		}
	}
	return SnapshotResponse{ID: s.ID, TakenAt: s.TakenAt, SortKey: s.SortKey.String(), Rows: rows}
}
