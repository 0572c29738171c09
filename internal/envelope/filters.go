package envelope

import (
	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/Shugur-Network/dmsync/internal/constants"
)

// BuildMessageFilters returns the filters that retrieve every private message
// addressed to or sent by pubkey: gift wraps and legacy DMs tagged with the
// user, plus legacy DMs the user authored. A nil since means full history.
func BuildMessageFilters(pubkey string, since *nostr.Timestamp, limit int) nostr.Filters {
	filters := nostr.Filters{
		{
			Kinds: []int{constants.KindGiftWrap},
			Tags:  nostr.TagMap{constants.TagP: []string{pubkey}},
		},
		{
			Kinds: []int{constants.KindEncryptedDM},
			Tags:  nostr.TagMap{constants.TagP: []string{pubkey}},
		},
		{
			Kinds:   []int{constants.KindEncryptedDM},
			Authors: []string{pubkey},
		},
	}
	for i := range filters {
		filters[i].Since = since
		filters[i].Limit = limit
	}
	return filters
}
