package models

import nostr "github.com/nbd-wtf/go-nostr"

// RelayMode controls how discovery relays are combined with a user's own lists.
type RelayMode string

const (
	// RelayModeDiscovery queries only the configured discovery relays.
	RelayModeDiscovery RelayMode = "discovery"
	// RelayModeHybrid queries the user's preferred tier plus the discovery relays.
	RelayModeHybrid RelayMode = "hybrid"
	// RelayModeStrictOutbox queries only the user's preferred tier once one exists.
	RelayModeStrictOutbox RelayMode = "strict_outbox"
)

// Valid reports whether m is one of the known modes.
func (m RelayMode) Valid() bool {
	switch m {
	case RelayModeDiscovery, RelayModeHybrid, RelayModeStrictOutbox:
		return true
	}
	return false
}

// RelayEntry is a single "r" tag of a NIP-65 relay list.
type RelayEntry struct {
	URL   string `json:"url"`
	Read  bool   `json:"read"`
	Write bool   `json:"write"`
}

// RelayLists holds every relay list an identity has published.
type RelayLists struct {
	DMInbox   []string        `json:"dmInbox"`   // kind 10050
	ReadWrite []RelayEntry    `json:"readWrite"` // kind 10002
	Blocked   []string        `json:"blocked"`   // kind 10006
	Name      string          `json:"name,omitempty"`
	FetchedAt nostr.Timestamp `json:"fetchedAt"`
}

// ReadRelays returns the read-marked entries of the NIP-65 list.
func (l RelayLists) ReadRelays() []string {
	out := make([]string, 0, len(l.ReadWrite))
	for _, r := range l.ReadWrite {
		if r.Read {
			out = append(out, r.URL)
		}
	}
	return out
}

// RelayInfo is the health record of a single relay.
type RelayInfo struct {
	LastQuerySucceeded bool    `json:"lastQuerySucceeded"`
	LastQueryError     *string `json:"lastQueryError"`
	IsBlocked          bool    `json:"isBlocked"`
}
