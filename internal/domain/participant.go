package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Domain validation errors.
var (
	// ErrInvalidAddress is returned when a value is not a 0x-prefixed 20-byte hex address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidParticipant is returned when a participant violates its invariants.
	ErrInvalidParticipant = errors.New("invalid participant")
)

// Participant is the canonical unit of ranking.
// Keyed by Address in the leaderboard and in the ledger.
type Participant struct {
	Address       string       // lowercase 0x-prefixed hex, primary key
	DisplayName   string       // handle if resolved from one, else the address
	NFTCount      int          // owned NFTs as of last fetch
	NFTHoldings   []NFTSummary // nil when elided (summary-only or ledger-derived)
	ActivityScore int          // recent social actions
	LastUpdated   time.Time    // last successful enrichment or ledger correction
}

// NFTSummary is the normalized view of one owned token.
type NFTSummary struct {
	ContractAddress string
	Title           string
	MediaURL        string // empty if the index had no media
	Description     string
}

// HoldingsTracked reports whether NFTHoldings carries the full holding list.
func (p *Participant) HoldingsTracked() bool {
	return p.NFTHoldings != nil
}

// Validate checks participant invariants.
func (p *Participant) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil", ErrInvalidParticipant)
	}
	if !IsAddress(p.Address) || p.Address != strings.ToLower(p.Address) {
		return fmt.Errorf("%w: address %q is not a lowercase hex address", ErrInvalidParticipant, p.Address)
	}
	if p.DisplayName == "" {
		return fmt.Errorf("%w: empty display name", ErrInvalidParticipant)
	}
	if p.NFTCount < 0 || p.ActivityScore < 0 {
		return fmt.Errorf("%w: negative metric (nft=%d, activity=%d)", ErrInvalidParticipant, p.NFTCount, p.ActivityScore)
	}
	if p.HoldingsTracked() && len(p.NFTHoldings) != p.NFTCount {
		return fmt.Errorf("%w: nft count %d does not match %d holdings", ErrInvalidParticipant, p.NFTCount, len(p.NFTHoldings))
	}
	if p.LastUpdated.IsZero() {
		return fmt.Errorf("%w: missing last updated time", ErrInvalidParticipant)
	}
	return nil
}

// Clone returns a deep copy.
func (p *Participant) Clone() *Participant {
	c := *p
	if p.NFTHoldings != nil {
		c.NFTHoldings = make([]NFTSummary, len(p.NFTHoldings))
		copy(c.NFTHoldings, p.NFTHoldings)
	}
	return &c
}

// Summary returns a copy with holdings elided.
func (p *Participant) Summary() *Participant {
	c := *p
	c.NFTHoldings = nil
	return &c
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	if len(s) != 2+2*common.AddressLength {
		return false
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	return common.IsHexAddress(s)
}

// NormalizeAddress validates s and returns its lowercase form.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !IsAddress(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return strings.ToLower(common.HexToAddress(s).Hex()), nil
}
