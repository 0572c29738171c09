package models

import (
	"sort"

	nostr "github.com/nbd-wtf/go-nostr"
)

// SyncState tracks what has been retrieved so far for an identity.
type SyncState struct {
	LastCacheTime     *nostr.Timestamp `json:"lastCacheTime"`
	QueriedRelays     []string         `json:"queriedRelays"`
	QueryLimitReached bool             `json:"queryLimitReached"`
}

// HasQueried reports whether url is already in the queried set.
func (s SyncState) HasQueried(url string) bool {
	for _, r := range s.QueriedRelays {
		if r == url {
			return true
		}
	}
	return false
}

// AddQueried appends relays not already present, keeping the set sorted.
func (s *SyncState) AddQueried(urls ...string) {
	seen := make(map[string]struct{}, len(s.QueriedRelays)+len(urls))
	for _, r := range s.QueriedRelays {
		seen[r] = struct{}{}
	}
	for _, u := range urls {
		if _, ok := seen[u]; ok || u == "" {
			continue
		}
		seen[u] = struct{}{}
		s.QueriedRelays = append(s.QueriedRelays, u)
	}
	sort.Strings(s.QueriedRelays)
}

// Snapshot is the persisted synchronization state of one identity.
type Snapshot struct {
	Participants   map[string]Participant  `json:"participants"`
	Conversations  map[string]Conversation `json:"conversations"`
	Messages       map[string][]Message    `json:"messages"`
	SyncState      SyncState               `json:"syncState"`
	EndpointHealth map[string]RelayInfo    `json:"endpointHealth"`
}

// SnapshotKeys are the top-level keys a persisted snapshot must carry.
var SnapshotKeys = []string{"participants", "conversations", "messages", "syncState", "endpointHealth"}

// NewSnapshot returns an empty snapshot with every map allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Participants:   make(map[string]Participant),
		Conversations:  make(map[string]Conversation),
		Messages:       make(map[string][]Message),
		SyncState:      SyncState{QueriedRelays: []string{}},
		EndpointHealth: make(map[string]RelayInfo),
	}
}

// EnsureMaps allocates nil maps, e.g. after decoding a snapshot with null values.
func (s *Snapshot) EnsureMaps() {
	if s.Participants == nil {
		s.Participants = make(map[string]Participant)
	}
	if s.Conversations == nil {
		s.Conversations = make(map[string]Conversation)
	}
	if s.Messages == nil {
		s.Messages = make(map[string][]Message)
	}
	if s.EndpointHealth == nil {
		s.EndpointHealth = make(map[string]RelayInfo)
	}
	if s.SyncState.QueriedRelays == nil {
		s.SyncState.QueriedRelays = []string{}
	}
}

// Conversation returns the conversation with the given id.
func (s *Snapshot) Conversation(id string) (Conversation, bool) {
	c, ok := s.Conversations[id]
	return c, ok
}

// ConversationMessages returns the chronologically ordered messages of a conversation.
func (s *Snapshot) ConversationMessages(conversationID string) []Message {
	return s.Messages[conversationID]
}

// MessageByID looks a message up across all conversations.
func (s *Snapshot) MessageByID(id string) (Message, bool) {
	for _, msgs := range s.Messages {
		for _, m := range msgs {
			if m.ID == id {
				return m, true
			}
		}
	}
	return Message{}, false
}

// HasEnvelope reports whether a stored message arrived in the envelope id.
// Legacy messages share their id with their envelope.
func (s *Snapshot) HasEnvelope(id string) bool {
	for _, msgs := range s.Messages {
		for _, m := range msgs {
			if m.GiftWrapID == id || (m.GiftWrapID == "" && m.ID == id) {
				return true
			}
		}
	}
	return false
}

// EnvelopeIDs lists the envelope id of every stored message.
func (s *Snapshot) EnvelopeIDs() []string {
	out := make([]string, 0, s.MessageCount())
	for _, msgs := range s.Messages {
		for _, m := range msgs {
			if m.GiftWrapID != "" {
				out = append(out, m.GiftWrapID)
			} else {
				out = append(out, m.ID)
			}
		}
	}
	return out
}

// SortedConversations returns all conversations, most recently active first.
func (s *Snapshot) SortedConversations() []Conversation {
	out := make([]Conversation, 0, len(s.Conversations))
	for _, c := range s.Conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity != out[j].LastActivity {
			return out[i].LastActivity > out[j].LastActivity
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MarkRead moves the read mark of a conversation forward. It never moves it back.
func (s *Snapshot) MarkRead(conversationID string, at nostr.Timestamp) bool {
	c, ok := s.Conversations[conversationID]
	if !ok {
		return false
	}
	if at > c.LastReadAt {
		c.LastReadAt = at
		s.Conversations[conversationID] = c
	}
	return true
}

// MessageCount returns the number of stored messages.
func (s *Snapshot) MessageCount() int {
	n := 0
	for _, msgs := range s.Messages {
		n += len(msgs)
	}
	return n
}
