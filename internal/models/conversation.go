package models

import nostr "github.com/nbd-wtf/go-nostr"

// Conversation is a thread identified by its participant set and subject.
type Conversation struct {
	ID                 string          `json:"id"`
	ParticipantPubkeys []string        `json:"participantPubkeys"`
	Subject            string          `json:"subject"`
	LastActivity       nostr.Timestamp `json:"lastActivity"`
	LastReadAt         nostr.Timestamp `json:"lastReadAt"`
	HasNIP04           bool            `json:"hasNIP04"`
	HasNIP17           bool            `json:"hasNIP17"`
}

// Unread reports whether activity happened after the last read mark.
func (c Conversation) Unread() bool {
	return c.LastActivity > c.LastReadAt
}
