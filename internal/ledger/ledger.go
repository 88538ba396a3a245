// Package ledger defines the authoritative participant record and its
// on-chain implementation.
package ledger

import (
	"context"
	"errors"

	"castboard/internal/domain"
)

var (
	// ErrLedgerUnavailable is returned when the ledger cannot be read or written.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrReadOnly is returned by writes on a ledger opened without signing credentials.
	ErrReadOnly = errors.New("ledger is read-only")

	// ErrWriteRejected is returned when the ledger refuses a write, e.g. a reverted transaction.
	ErrWriteRejected = errors.New("ledger write rejected")
)

// Reader returns the authoritative set of active participants.
type Reader interface {
	ActiveParticipants(ctx context.Context) ([]domain.LedgerEntry, error)
}

// Writer mutates the authoritative set. Each call returns once the change is durable.
type Writer interface {
	AddParticipant(ctx context.Context, address, name string) error
	UpdateParticipant(ctx context.Context, address string, nftCount, activityScore int) error
	RemoveParticipant(ctx context.Context, address string) error
}

// Ledger is a readable and writable participant record.
type Ledger interface {
	Reader
	Writer
}
