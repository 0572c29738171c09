// Package participants keeps track of where each conversation participant
// receives private messages.
package participants

import (
	"sort"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/Shugur-Network/dmsync/internal/models"
	"github.com/Shugur-Network/dmsync/internal/relays"
)

// Build resolves a participant from its published lists. lists may be nil
// when nothing was found, in which case the discovery relays are used.
func Build(pubkey string, lists *models.RelayLists, myBlocked []string, mode models.RelayMode, discovery []string, now time.Time) models.Participant {
	var l models.RelayLists
	if lists != nil {
		l = *lists
	}
	return models.Participant{
		Pubkey:        pubkey,
		DerivedRelays: relays.DeriveRelaySet(l, myBlocked, mode, discovery),
		BlockedRelays: unionSorted(myBlocked, l.Blocked),
		LastFetched:   nostr.Timestamp(now.Unix()),
		DisplayName:   l.Name,
	}
}

// BuildMap resolves every pubkey, looking its lists up in listsByPubkey.
func BuildMap(pubkeys []string, listsByPubkey map[string]models.RelayLists, myBlocked []string, mode models.RelayMode, discovery []string, now time.Time) map[string]models.Participant {
	out := make(map[string]models.Participant, len(pubkeys))
	for _, pk := range pubkeys {
		var lists *models.RelayLists
		if l, ok := listsByPubkey[pk]; ok {
			lists = &l
		}
		out[pk] = Build(pk, lists, myBlocked, mode, discovery, now)
	}
	return out
}

// Merge returns existing updated with incoming. An incoming record replaces
// an existing one only when it was resolved later.
func Merge(existing, incoming map[string]models.Participant) map[string]models.Participant {
	out := make(map[string]models.Participant, len(existing)+len(incoming))
	for pk, p := range existing {
		out[pk] = p
	}
	for pk, p := range incoming {
		cur, ok := out[pk]
		if ok && p.LastFetched <= cur.LastFetched {
			continue
		}
		if ok && p.DisplayName == "" {
			p.DisplayName = cur.DisplayName
		}
		out[pk] = p
	}
	return out
}

// Stale returns the sorted pubkeys whose relays were resolved more than ttl ago.
func Stale(participants map[string]models.Participant, ttl time.Duration, now time.Time) []string {
	var out []string
	for pk, p := range participants {
		if p.IsStale(ttl, now) {
			out = append(out, pk)
		}
	}
	sort.Strings(out)
	return out
}

// NewPubkeys returns the sorted, unique entries of found that are not in existing.
func NewPubkeys(found []string, existing map[string]models.Participant) []string {
	seen := make(map[string]struct{}, len(found))
	var out []string
	for _, pk := range found {
		if _, ok := existing[pk]; ok {
			continue
		}
		if _, dup := seen[pk]; dup {
			continue
		}
		seen[pk] = struct{}{}
		out = append(out, pk)
	}
	sort.Strings(out)
	return out
}

func unionSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[relays.Normalize(s)] = struct{}{}
	}
	for _, s := range b {
		set[relays.Normalize(s)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
