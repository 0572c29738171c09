package conversations

import (
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shugur-Network/dmsync/internal/envelope"
	"github.com/Shugur-Network/dmsync/internal/models"
)

const (
	a = "aaaa"
	b = "bbbb"
	c = "cccc"
)

func TestComputeIDIsPermutationInvariant(t *testing.T) {
	want := "group:aaaa,bbbb,cccc"
	for _, set := range [][]string{
		{a, b, c}, {a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a},
		{c, c, a, b, a}, {"", b, a, c},
	} {
		assert.Equal(t, want, ComputeID(set, ""), "%v", set)
	}

	assert.Equal(t, a, ComputeID([]string{a, a}, ""), "self conversation")
	assert.Equal(t, "group:aaaa,bbbb#lunch", ComputeID([]string{b, a}, "lunch"))
	assert.NotEqual(t, ComputeID([]string{a, b}, "x"), ComputeID([]string{a, b}, "y"))
}

func TestParseID(t *testing.T) {
	keys, subject := ParseID("group:aaaa,bbbb#lunch#2")
	assert.Equal(t, []string{a, b}, keys)
	assert.Equal(t, "lunch#2", subject)

	keys, subject = ParseID(a)
	assert.Equal(t, []string{a}, keys)
	assert.Empty(t, subject)

	assert.True(t, IsGroup("group:aaaa,bbbb"))
	assert.False(t, IsGroup(a))
}

func unwrapped(id string, at nostr.Timestamp, protocol models.Protocol, participants ...string) envelope.Unwrapped {
	return envelope.Unwrapped{ID: id, Protocol: protocol, Content: "text " + id, CreatedAt: at, Participants: participants}
}

func TestNormalize(t *testing.T) {
	u := unwrapped("m1", 5, models.ProtocolNIP17, b, a)
	u.WrapperID = "w1"
	u.Subject = "s"

	m := Normalize(u)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "w1", m.GiftWrapID)
	assert.Equal(t, "group:aaaa,bbbb#s", m.ConversationID)
	assert.Equal(t, nostr.Timestamp(5), m.CreatedAt)
}

func TestDedupe(t *testing.T) {
	existing := []models.Message{{ID: "1"}, {ID: "2"}}
	incoming := []models.Message{{ID: "2"}, {ID: "3"}, {ID: "3"}, {ID: "4"}}
	fresh := Dedupe(existing, incoming)
	require.Len(t, fresh, 2)
	assert.Equal(t, "3", fresh[0].ID)
	assert.Equal(t, "4", fresh[1].ID)
}

func TestMergeIsIdempotentAndOrdered(t *testing.T) {
	snap := models.NewSnapshot()
	batch := NormalizeAll([]envelope.Unwrapped{
		unwrapped("m3", 30, models.ProtocolNIP17, a, b),
		unwrapped("m1", 10, models.ProtocolNIP04, b, a),
		unwrapped("m2", 10, models.ProtocolNIP04, a, b),
		unwrapped("self", 5, models.ProtocolNIP17, a),
	})

	assert.Equal(t, 4, Merge(snap, batch))
	conv := "group:aaaa,bbbb"
	msgs := snap.ConversationMessages(conv)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})

	c, ok := snap.Conversation(conv)
	require.True(t, ok)
	assert.Equal(t, []string{a, b}, c.ParticipantPubkeys)
	assert.Equal(t, nostr.Timestamp(30), c.LastActivity)
	assert.True(t, c.HasNIP04)
	assert.True(t, c.HasNIP17)

	snap.MarkRead(conv, 20)

	assert.Zero(t, Merge(snap, batch), "second merge adds nothing")
	assert.Len(t, snap.ConversationMessages(conv), 3)
	assert.Equal(t, 4, snap.MessageCount())

	Merge(snap, NormalizeAll([]envelope.Unwrapped{unwrapped("m4", 40, models.ProtocolNIP17, a, b)}))
	c, _ = snap.Conversation(conv)
	assert.Equal(t, nostr.Timestamp(20), c.LastReadAt, "read mark survives merges")
	assert.Equal(t, nostr.Timestamp(40), c.LastActivity)
	assert.True(t, c.Unread())
	assert.Equal(t, nostr.Timestamp(40), LatestActivity(snap))
}

func TestMergeOrderIndependent(t *testing.T) {
	batch := NormalizeAll([]envelope.Unwrapped{
		unwrapped("x", 2, models.ProtocolNIP17, a, c),
		unwrapped("y", 1, models.ProtocolNIP17, c, a),
		unwrapped("z", 2, models.ProtocolNIP17, a, c),
	})
	reversed := []models.Message{batch[2], batch[1], batch[0]}

	s1, s2 := models.NewSnapshot(), models.NewSnapshot()
	Merge(s1, batch)
	Merge(s2, reversed)
	assert.Equal(t, s1.Messages, s2.Messages)
	assert.Equal(t, s1.Conversations, s2.Conversations)
}
