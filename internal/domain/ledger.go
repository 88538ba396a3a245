package domain

import "time"

// LedgerEntry is one participant as recorded by the authoritative ledger.
type LedgerEntry struct {
	Address       string // lowercase hex
	Name          string // display name stored on the ledger, may be empty
	NFTCount      int
	ActivityScore int
}

// DisplayName returns the stored name, falling back to the address.
func (e LedgerEntry) DisplayName() string {
	if e.Name == "" {
		return e.Address
	}
	return e.Name
}

// ToParticipant derives a participant from ledger values.
// Holdings are elided; the ledger only carries counts.
func (e LedgerEntry) ToParticipant(now time.Time) *Participant {
	return &Participant{
		Address:       e.Address,
		DisplayName:   e.DisplayName(),
		NFTCount:      e.NFTCount,
		ActivityScore: e.ActivityScore,
		LastUpdated:   now,
	}
}

// Matches reports whether p already carries the ledger's values.
func (e LedgerEntry) Matches(p *Participant) bool {
	return p.DisplayName == e.DisplayName() &&
		p.NFTCount == e.NFTCount &&
		p.ActivityScore == e.ActivityScore
}
