package relays

import (
	"sort"

	"github.com/Shugur-Network/dmsync/internal/models"
)

// BuildRelayToUsersMap inverts the participants' derived relays. Each user
// list is sorted.
func BuildRelayToUsersMap(participants map[string]models.Participant) map[string][]string {
	out := make(map[string][]string)
	for pk, p := range participants {
		for _, r := range p.DerivedRelays {
			out[r] = append(out[r], pk)
		}
	}
	for r := range out {
		sort.Strings(out[r])
	}
	return out
}

// FilterNewRelayUserCombos returns the relays of relayUsers that are not in
// alreadyQueried, sorted.
func FilterNewRelayUserCombos(relayUsers map[string][]string, alreadyQueried []string) []string {
	queried := make(map[string]struct{}, len(alreadyQueried))
	for _, r := range alreadyQueried {
		queried[r] = struct{}{}
	}
	var out []string
	for r := range relayUsers {
		if _, ok := queried[r]; !ok {
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

// FindNewRelays returns the participants' relays that have not been queried
// for message history yet.
func FindNewRelays(participants map[string]models.Participant, alreadyQueried []string) []string {
	return FilterNewRelayUserCombos(BuildRelayToUsersMap(participants), alreadyQueried)
}
