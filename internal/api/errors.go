package api

import (
	"context"
	"errors"
	"net/http"

	"castboard/internal/board"
	"castboard/internal/domain"
	"castboard/internal/enrichment"
	"castboard/internal/identity"
	"castboard/internal/leaderboard"
	"castboard/internal/ledger"
	"castboard/internal/storage"
)

// errBadRequest marks malformed request input.
var errBadRequest = errors.New("bad request")

// classify maps a service error onto an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidParticipant),
		errors.Is(err, board.ErrInvalidOrder):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, identity.ErrIdentityNotFound):
		return http.StatusNotFound, "identity_not_found"
	case errors.Is(err, identity.ErrIdentityServiceUnavailable):
		return http.StatusBadGateway, "identity_unavailable"
	case errors.Is(err, enrichment.ErrEnrichmentUnavailable):
		return http.StatusBadGateway, "enrichment_unavailable"
	case errors.Is(err, leaderboard.ErrDuplicateParticipant):
		return http.StatusConflict, "duplicate_participant"
	case errors.Is(err, ledger.ErrWriteRejected):
		return http.StatusConflict, "ledger_rejected"
	case errors.Is(err, leaderboard.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrReadOnly):
		return http.StatusServiceUnavailable, "ledger_read_only"
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, "ledger_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
