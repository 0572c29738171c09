package domain

import (
	"context"

	"github.com/Shugur-Network/dmsync/internal/models"
	nostr "github.com/nbd-wtf/go-nostr"
)

// RelayQuerier executes a one-shot query against a single relay.
type RelayQuerier interface {
	// QueryRelay returns the stored events matching filters. truncated is true
	// when any filter yielded at least limit events.
	QueryRelay(ctx context.Context, url string, filters nostr.Filters, limit int) (events []nostr.Event, truncated bool, err error)
}

// Decrypter holds the user's secret and opens payloads addressed to them.
type Decrypter interface {
	// DecryptNIP44 opens a versioned NIP-44 payload exchanged with counterparty.
	DecryptNIP44(ctx context.Context, counterparty, ciphertext string) (string, error)

	// DecryptNIP04 opens a legacy NIP-04 payload exchanged with counterparty.
	DecryptNIP04(ctx context.Context, counterparty, ciphertext string) (string, error)
}

// RelayListFetcher bulk-fetches published relay lists for a set of identities.
type RelayListFetcher interface {
	FetchRelayLists(ctx context.Context, discovery []string, pubkeys []string) (map[string]models.RelayLists, error)
}

// SnapshotCache persists one snapshot per identity.
type SnapshotCache interface {
	// Load returns false when nothing usable is stored for pubkey.
	Load(ctx context.Context, pubkey string) (*models.Snapshot, bool)
	Save(ctx context.Context, pubkey string, snap *models.Snapshot) error
}
