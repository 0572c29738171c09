package models

import (
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
)

// Participant is what is known about where an identity receives private messages.
type Participant struct {
	Pubkey        string          `json:"pubkey"`
	DerivedRelays []string        `json:"derivedRelays"`
	BlockedRelays []string        `json:"blockedRelays"`
	LastFetched   nostr.Timestamp `json:"lastFetched"`
	DisplayName   string          `json:"displayName,omitempty"`
}

// IsStale reports whether the participant's relays were resolved more than ttl ago.
func (p Participant) IsStale(ttl time.Duration, now time.Time) bool {
	return now.Sub(p.LastFetched.Time()) > ttl
}
