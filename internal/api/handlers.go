package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"castboard/internal/board"
	"castboard/internal/domain"
	"castboard/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	maxBodyBytes        = 1 << 16
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status:        "running",
		StartedAt:     s.started.UTC(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Participants:  s.board.Len(),
	}
	if s.reconciler != nil {
		st := s.reconciler.Status()
		resp.Reconcile = &st
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// leaderboard handles GET /leaderboard?sort=&order=.
func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	key := domain.SortByNFTCount
	if raw := q.Get("sort"); raw != "" {
		parsed, err := domain.ParseSortKey(raw)
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		key = parsed
	}

	view, ascending, err := s.board.View(key, q.Get("order"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rows := make([]ParticipantResponse, len(view))
	for i, p := range view {
		rows[i] = NewParticipantResponse(p, false)
	}
	order := board.OrderDesc
	if ascending {
		order = board.OrderAsc
	}
	s.writeJSON(w, http.StatusOK, LeaderboardResponse{
		Sort:         key.String(),
		Order:        order,
		Count:        len(rows),
		Participants: rows,
	})
}

// addParticipant handles POST /participants.
func (s *Server) addParticipant(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}
	input := req.value()
	if input == "" {
		s.fail(w, r, fmt.Errorf("%w: input is required", errBadRequest))
		return
	}

	p, err := s.board.Add(r.Context(), input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, NewParticipantResponse(p, true))
}

// refreshParticipant handles POST /participants/{address}/refresh.
func (s *Server) refreshParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := s.board.Refresh(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewParticipantResponse(p, true))
}

// removeParticipant handles DELETE /participants/{address}.
func (s *Server) removeParticipant(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if err := s.board.Remove(r.Context(), address); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// holdings handles GET /participants/{address}/nfts from the cached copy.
func (s *Server) holdings(w http.ResponseWriter, r *http.Request) {
	p, tracked, err := s.board.Holdings(mux.Vars(r)["address"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := HoldingsResponse{
		Address:  p.Address,
		NFTCount: p.NFTCount,
		Tracked:  tracked,
		NFTs:     toNFTs(p.NFTHoldings),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// history handles GET /participants/{address}/history?limit=.
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		s.writeError(w, r, http.StatusNotImplemented, "snapshots_disabled", "snapshot storage is not configured")
		return
	}
	addr, err := domain.NormalizeAddress(mux.Vars(r)["address"])
	if err != nil {
		s.fail(w, r, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			s.fail(w, r, fmt.Errorf("%w: limit must be between 1 and %d", errBadRequest, maxHistoryLimit))
			return
		}
		limit = n
	}

	points, err := s.snapshots.History(r.Context(), addr, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]RankPointResponse, len(points))
	for i, p := range points {
		out[i] = RankPointResponse{
			SnapshotID:    p.SnapshotID,
			TakenAt:       p.TakenAt,
			Rank:          p.Rank,
			NFTCount:      p.NFTCount,
			ActivityScore: p.ActivityScore,
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// reconcile handles POST /reconcile and returns the applied diff.
func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		s.writeError(w, r, http.StatusNotImplemented, "reconcile_disabled", "reconciliation is not configured")
		return
	}
	diff, err := s.reconciler.Reconcile(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, diff)
}

// latestSnapshot handles GET /snapshots/latest.
func (s *Server) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		s.writeError(w, r, http.StatusNotImplemented, "snapshots_disabled", "snapshot storage is not configured")
		return
	}
	snap, err := s.snapshots.Latest(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, r, http.StatusNotFound, "not_found", "no snapshot has been taken yet")
			return
		}
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSnapshot(snap))
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed for this endpoint")
}

// fail classifies err and writes the matching error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestID(r)).Str("code", code).Msg("request failed")
	}
	s.writeError(w, r, status, code, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Code:      code,
		Message:   message,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}
