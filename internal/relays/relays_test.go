package relays

import (
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"

	"github.com/Shugur-Network/dmsync/internal/constants"
	"github.com/Shugur-Network/dmsync/internal/models"
)

const me = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

var (
	r1 = "wss://r1.example.com"
	r2 = "wss://r2.example.com"
	r3 = "wss://r3.example.com"
	d1 = "wss://d1.example.com"
	d2 = "wss://d2.example.com"
)

func TestParseRelayLists(t *testing.T) {
	events := []nostr.Event{
		{PubKey: me, Kind: constants.KindRelayList, CreatedAt: 10, Tags: nostr.Tags{
			{"r", "wss://OLD.example.com"},
		}},
		{PubKey: me, Kind: constants.KindRelayList, CreatedAt: 20, Tags: nostr.Tags{
			{"r", r1, "read"},
			{"r", r2, "write"},
			{"r", r3},
			{"r", ""},
			{"p", "not-a-relay"},
		}},
		{PubKey: me, Kind: constants.KindDMRelays, CreatedAt: 15, Tags: nostr.Tags{
			{"relay", d1}, {"relay", d1 + "/"},
		}},
		{PubKey: me, Kind: constants.KindBlockedRelays, CreatedAt: 5, Tags: nostr.Tags{
			{"relay", d2},
		}},
		{PubKey: "someone-else", Kind: constants.KindDMRelays, CreatedAt: 99, Tags: nostr.Tags{
			{"relay", r2},
		}},
	}

	lists := ParseRelayLists(events, me)

	assert.Equal(t, []models.RelayEntry{
		{URL: r1, Read: true},
		{URL: r2, Write: true},
		{URL: r3, Read: true, Write: true},
	}, lists.ReadWrite)
	assert.Equal(t, []string{d1}, lists.DMInbox, "newest event wins and duplicates collapse")
	assert.Equal(t, []string{d2}, lists.Blocked)
	assert.Equal(t, nostr.Timestamp(20), lists.FetchedAt)
	assert.Equal(t, []string{r1, r3}, lists.ReadRelays())
}

func TestExtractBlockedRelaysIgnoresOtherKinds(t *testing.T) {
	assert.Nil(t, ExtractBlockedRelays(nil))
	assert.Nil(t, ExtractBlockedRelays(&nostr.Event{Kind: constants.KindDMRelays, Tags: nostr.Tags{{"relay", r1}}}))
}

func TestDeriveRelaySet(t *testing.T) {
	inboxAndRead := models.RelayLists{
		DMInbox:   []string{r1},
		ReadWrite: []models.RelayEntry{{URL: r2, Read: true, Write: true}},
	}
	readOnly := models.RelayLists{
		ReadWrite: []models.RelayEntry{{URL: r2, Read: true}, {URL: r3, Write: true}},
	}
	discovery := []string{d1}

	tests := []struct {
		name    string
		lists   models.RelayLists
		blocked []string
		mode    models.RelayMode
		want    []string
	}{
		{"hybrid inbox wins over read list", inboxAndRead, nil, models.RelayModeHybrid, []string{r1, d1}},
		{"strict inbox only", inboxAndRead, nil, models.RelayModeStrictOutbox, []string{r1}},
		{"discovery mode ignores lists", inboxAndRead, nil, models.RelayModeDiscovery, []string{d1}},
		{"read-marked entries are tier two", readOnly, nil, models.RelayModeStrictOutbox, []string{r2}},
		{"no lists falls back to discovery", models.RelayLists{}, nil, models.RelayModeStrictOutbox, []string{d1}},
		{"blocked inbox falls through", inboxAndRead, []string{r1}, models.RelayModeHybrid, []string{r2, d1}},
		{"blocked discovery removed", models.RelayLists{}, []string{d1}, models.RelayModeHybrid, []string{}},
		{"participant's own block list applies", models.RelayLists{DMInbox: []string{r1, r2}, Blocked: []string{r2}}, nil, models.RelayModeHybrid, []string{r1, d1}},
		{"duplicates collapse", models.RelayLists{DMInbox: []string{d1, r1}}, nil, models.RelayModeHybrid, []string{d1, r1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveRelaySet(tt.lists, tt.blocked, tt.mode, discovery)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveRelaySetIsPure(t *testing.T) {
	lists := models.RelayLists{DMInbox: []string{r1}}
	discovery := []string{d1, d2}
	a := DeriveRelaySet(lists, nil, models.RelayModeHybrid, discovery)
	b := DeriveRelaySet(lists, nil, models.RelayModeHybrid, discovery)
	assert.Equal(t, a, b)
	assert.Equal(t, []string{r1}, lists.DMInbox)
	assert.Equal(t, []string{d1, d2}, discovery)
}

func TestFindNewRelays(t *testing.T) {
	participants := map[string]models.Participant{
		"b": {Pubkey: "b", DerivedRelays: []string{r2, d1}},
		"a": {Pubkey: "a", DerivedRelays: []string{r1, d1}},
	}

	byRelay := BuildRelayToUsersMap(participants)
	assert.Equal(t, []string{"a", "b"}, byRelay[d1])
	assert.Equal(t, []string{"a"}, byRelay[r1])

	assert.Equal(t, []string{r1, r2}, FindNewRelays(participants, []string{d1}))
	assert.Empty(t, FindNewRelays(participants, []string{d1, r1, r2}))
}

func TestValidateURL(t *testing.T) {
	for _, ok := range []string{"wss://relay.damus.io", "ws://localhost:7777", "wss://nos.lol/"} {
		assert.NoError(t, ValidateURL(ok), ok)
	}
	for _, bad := range []string{"https://relay.damus.io", "wss://", "relay.damus.io", "wss://bad host", "wss://a$b.com"} {
		assert.Error(t, ValidateURL(bad), bad)
	}

	entries := ParseRelayEntries(nostr.Event{Kind: constants.KindRelayList, Tags: nostr.Tags{
		{"r", "wss://a$b.example.com"},
		{"r", r1},
	}})
	assert.Equal(t, []models.RelayEntry{{URL: r1, Read: true, Write: true}}, entries)
}
