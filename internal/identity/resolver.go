// Package identity maps user-entered handles to wallet addresses.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"castboard/internal/domain"
)

var (
	// ErrIdentityNotFound is returned when a handle has no verified address.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrIdentityServiceUnavailable is returned when the identity service fails or times out.
	ErrIdentityServiceUnavailable = errors.New("identity service unavailable")
)

// Directory looks up the verified addresses for a handle.
// An unknown handle yields an empty list and no error.
type Directory interface {
	VerifiedAddresses(ctx context.Context, handle string) ([]string, error)
}

// Resolver turns an address-or-handle input into a wallet address.
type Resolver struct {
	dir    Directory
	logger zerolog.Logger
}

// NewResolver creates a resolver backed by dir.
func NewResolver(dir Directory, logger zerolog.Logger) *Resolver {
	return &Resolver{dir: dir, logger: logger}
}

// Resolve returns input unchanged when it is already an address.
// Otherwise input is treated as a handle and the first verified address is returned.
// Resolve does not retry; the directory's client owns retry policy.
func (r *Resolver) Resolve(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if domain.IsAddress(input) {
		return input, nil
	}
	handle := strings.TrimPrefix(input, "@")
	if handle == "" {
		return "", fmt.Errorf("%w: empty handle", ErrIdentityNotFound)
	}

	addrs, err := r.dir.VerifiedAddresses(ctx, handle)
	if err != nil {
		r.logger.Warn().Err(err).Str("handle", handle).Msg("identity lookup failed")
		return "", fmt.Errorf("%w: %v", ErrIdentityServiceUnavailable, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrIdentityNotFound, handle)
	}

	addr := strings.TrimSpace(addrs[0])
	if !domain.IsAddress(addr) {
		return "", fmt.Errorf("%w: directory returned invalid address %q for %s", ErrIdentityServiceUnavailable, addr, handle)
	}
	return addr, nil
}
