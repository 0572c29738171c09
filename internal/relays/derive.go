package relays

import (
	"github.com/Shugur-Network/dmsync/internal/models"
)

// DeriveRelaySet returns the ordered relays to query for an identity.
//
// The preferred tier is the DM inbox list, then the read-marked NIP-65
// entries, then the discovery relays. Discovery mode always uses the
// discovery relays, hybrid appends them after the preferred tier and strict
// outbox uses the preferred tier alone. Blocked relays never appear.
func DeriveRelaySet(lists models.RelayLists, blocked []string, mode models.RelayMode, discovery []string) []string {
	exclude := make(map[string]struct{}, len(blocked)+len(lists.Blocked))
	for _, b := range blocked {
		exclude[Normalize(b)] = struct{}{}
	}
	for _, b := range lists.Blocked {
		exclude[Normalize(b)] = struct{}{}
	}

	tier := preferredTier(lists, exclude)

	var out []string
	switch mode {
	case models.RelayModeDiscovery:
		out = appendUnique(nil, discovery, exclude)
	case models.RelayModeStrictOutbox:
		if len(tier) == 0 {
			out = appendUnique(nil, discovery, exclude)
		} else {
			out = tier
		}
	default:
		out = appendUnique(tier, discovery, exclude)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// preferredTier returns the first non-empty list after blocked relays are removed.
func preferredTier(lists models.RelayLists, exclude map[string]struct{}) []string {
	if tier := appendUnique(nil, lists.DMInbox, exclude); len(tier) > 0 {
		return tier
	}
	return appendUnique(nil, lists.ReadRelays(), exclude)
}

func appendUnique(dst, src []string, exclude map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(dst)+len(src))
	for _, u := range dst {
		seen[u] = struct{}{}
	}
	for _, raw := range src {
		u := Normalize(raw)
		if u == "" {
			continue
		}
		if _, blocked := exclude[u]; blocked {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		dst = append(dst, u)
	}
	return dst
}
