package models

import nostr "github.com/nbd-wtf/go-nostr"

// Protocol identifies the wire protocol a message arrived with.
type Protocol string

const (
	ProtocolNIP04 Protocol = "nip04"
	ProtocolNIP17 Protocol = "nip17"
)

// Message is a decrypted private message.
//
// ID is the id of the innermost content (the rumor for NIP-17), while
// GiftWrapID is the id of the outer transport envelope, if any.
type Message struct {
	ID             string          `json:"id"`
	Event          nostr.Event     `json:"event"`
	Content        string          `json:"content"`
	ConversationID string          `json:"conversationId"`
	Protocol       Protocol        `json:"protocol"`
	GiftWrapID     string          `json:"giftWrapId,omitempty"`
	CreatedAt      nostr.Timestamp `json:"createdAt"`
}

// Before orders messages chronologically, falling back to the id so that the
// order never depends on arrival order.
func (m Message) Before(o Message) bool {
	if m.CreatedAt != o.CreatedAt {
		return m.CreatedAt < o.CreatedAt
	}
	return m.ID < o.ID
}
