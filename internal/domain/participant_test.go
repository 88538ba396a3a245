package domain

import (
	"errors"
	"testing"
	"time"
)

const testAddr = "0xabc0000000000000000000000000000000000123"

func validParticipant() *Participant {
	return &Participant{
		Address:       testAddr,
		DisplayName:   "alice",
		NFTCount:      2,
		NFTHoldings:   []NFTSummary{{ContractAddress: "0x1"}, {ContractAddress: "0x2"}},
		ActivityScore: 7,
		LastUpdated:   time.Unix(1700000000, 0),
	}
}

func TestIsAddress(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{testAddr, true},
		{"0xABC0000000000000000000000000000000000123", true},
		{"abc0000000000000000000000000000000000123", false},
		{"0xabc", false},
		{"0xzzz0000000000000000000000000000000000123", false},
		{"alice", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsAddress(tt.in); got != tt.want {
			t.Errorf("IsAddress(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress(" 0xABC0000000000000000000000000000000000123 ")
	if err != nil {
		t.Fatalf("NormalizeAddress: %v", err)
	}
	if got != testAddr {
		t.Errorf("got %s, want %s", got, testAddr)
	}

	_, err = NormalizeAddress("alice")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestParticipant_Validate(t *testing.T) {
	if err := validParticipant().Validate(); err != nil {
		t.Fatalf("valid participant rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(p *Participant)
	}{
		{"uppercase address", func(p *Participant) { p.Address = "0xABC0000000000000000000000000000000000123" }},
		{"bad address", func(p *Participant) { p.Address = "alice" }},
		{"empty name", func(p *Participant) { p.DisplayName = "" }},
		{"negative activity", func(p *Participant) { p.ActivityScore = -1 }},
		{"count mismatch", func(p *Participant) { p.NFTCount = 3 }},
		{"zero time", func(p *Participant) { p.LastUpdated = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParticipant()
			tt.mutate(p)
			if err := p.Validate(); !errors.Is(err, ErrInvalidParticipant) {
				t.Errorf("expected ErrInvalidParticipant, got %v", err)
			}
		})
	}
}

func TestParticipant_ElidedHoldingsSkipCountCheck(t *testing.T) {
	p := validParticipant().Summary()
	p.NFTCount = 40
	if err := p.Validate(); err != nil {
		t.Errorf("summary participant rejected: %v", err)
	}
}

func TestParticipant_CloneIsDeep(t *testing.T) {
	p := validParticipant()
	c := p.Clone()
	c.NFTHoldings[0].Title = "changed"
	if p.NFTHoldings[0].Title == "changed" {
		t.Error("clone shares holdings with original")
	}
}

func TestLedgerEntry_ToParticipant(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e := LedgerEntry{Address: testAddr, NFTCount: 4, ActivityScore: 9}

	p := e.ToParticipant(now)
	if p.DisplayName != testAddr {
		t.Errorf("expected address as display name, got %s", p.DisplayName)
	}
	if p.HoldingsTracked() {
		t.Error("ledger-derived participant should have elided holdings")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("ledger-derived participant invalid: %v", err)
	}
	if !e.Matches(p) {
		t.Error("entry should match its own participant")
	}
}

func TestParseSortKey(t *testing.T) {
	tests := map[string]SortKey{
		"nftCount":      SortByNFTCount,
		"activity":      SortByActivity,
		"activityScore": SortByActivity,
		"username":      SortByDisplayName,
		"displayName":   SortByDisplayName,
	}
	for in, want := range tests {
		got, err := ParseSortKey(in)
		if err != nil {
			t.Errorf("ParseSortKey(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseSortKey(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseSortKey("rank"); err == nil {
		t.Error("expected error for unknown key")
	}
}
