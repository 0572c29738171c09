package conversations

import (
	"sort"
	"strings"

	"github.com/Shugur-Network/dmsync/internal/constants"
)

// ComputeID derives the conversation id of a participant set and subject.
// The set is sorted and deduplicated first, so every permutation of the same
// identities yields the same id. A single identity is its own id; larger sets
// become "group:" plus the comma-joined keys. A non-empty subject is appended
// after "#".
func ComputeID(pubkeys []string, subject string) string {
	keys := SortedUnique(pubkeys)

	var id string
	if len(keys) == 1 {
		id = keys[0]
	} else {
		id = constants.ConversationGroupPrefix + strings.Join(keys, ",")
	}
	if subject != "" {
		id += constants.ConversationSubjectSeparator + subject
	}
	return id
}

// ParseID splits an id produced by ComputeID back into its participants and subject.
func ParseID(id string) (pubkeys []string, subject string) {
	base := id
	if i := strings.Index(id, constants.ConversationSubjectSeparator); i >= 0 {
		base, subject = id[:i], id[i+len(constants.ConversationSubjectSeparator):]
	}
	if rest, ok := strings.CutPrefix(base, constants.ConversationGroupPrefix); ok {
		return strings.Split(rest, ","), subject
	}
	if base == "" {
		return nil, subject
	}
	return []string{base}, subject
}

// IsGroup reports whether id names a conversation with more than one identity.
func IsGroup(id string) bool {
	return strings.HasPrefix(id, constants.ConversationGroupPrefix)
}

// SortedUnique returns the distinct non-empty keys in ascending order.
func SortedUnique(keys []string) []string {
	set := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := set[k]; ok {
			continue
		}
		set[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
