package conversations

import (
	"sort"

	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/Shugur-Network/dmsync/internal/envelope"
	"github.com/Shugur-Network/dmsync/internal/models"
)

// Normalize turns an unwrapped envelope into a stored message.
func Normalize(u envelope.Unwrapped) models.Message {
	return models.Message{
		ID:             u.ID,
		Event:          u.Inner,
		Content:        u.Content,
		ConversationID: ComputeID(u.Participants, u.Subject),
		Protocol:       u.Protocol,
		GiftWrapID:     u.WrapperID,
		CreatedAt:      u.CreatedAt,
	}
}

// NormalizeAll normalizes a batch.
func NormalizeAll(batch []envelope.Unwrapped) []models.Message {
	out := make([]models.Message, 0, len(batch))
	for _, u := range batch {
		out = append(out, Normalize(u))
	}
	return out
}

// Dedupe returns the incoming messages whose id is neither in existing nor
// earlier in incoming.
func Dedupe(existing, incoming []models.Message) []models.Message {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, m := range existing {
		seen[m.ID] = struct{}{}
	}
	out := make([]models.Message, 0, len(incoming))
	for _, m := range incoming {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Merge folds messages into snap and returns how many were new. Each
// conversation's list stays sorted by createdAt then id, so the result does
// not depend on arrival order. Merging the same batch again adds nothing.
func Merge(snap *models.Snapshot, messages []models.Message) int {
	snap.EnsureMaps()

	byConversation := make(map[string][]models.Message)
	for _, m := range messages {
		byConversation[m.ConversationID] = append(byConversation[m.ConversationID], m)
	}

	added := 0
	for convID, incoming := range byConversation {
		existing := snap.Messages[convID]
		fresh := Dedupe(existing, incoming)
		if len(fresh) == 0 {
			continue
		}
		added += len(fresh)

		merged := make([]models.Message, 0, len(existing)+len(fresh))
		merged = append(merged, existing...)
		merged = append(merged, fresh...)
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Before(merged[j]) })
		snap.Messages[convID] = merged

		snap.Conversations[convID] = updateConversation(snap.Conversations[convID], convID, fresh)
	}
	return added
}

func updateConversation(c models.Conversation, convID string, fresh []models.Message) models.Conversation {
	if c.ID == "" {
		c.ID = convID
		c.ParticipantPubkeys, c.Subject = ParseID(convID)
	}
	for _, m := range fresh {
		if m.CreatedAt > c.LastActivity {
			c.LastActivity = m.CreatedAt
		}
		switch m.Protocol {
		case models.ProtocolNIP04:
			c.HasNIP04 = true
		case models.ProtocolNIP17:
			c.HasNIP17 = true
		}
	}
	return c
}

// LatestActivity returns the newest message timestamp in snap.
func LatestActivity(snap *models.Snapshot) nostr.Timestamp {
	var latest nostr.Timestamp
	for _, c := range snap.Conversations {
		if c.LastActivity > latest {
			latest = c.LastActivity
		}
	}
	return latest
}
