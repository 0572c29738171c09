package models

import (
	"strings"

	"github.com/nbd-wtf/go-nostr/nip19"
)

// DisplayName returns the best human label for pubkey: the profile name when
// known, otherwise a shortened npub.
func (s *Snapshot) DisplayName(pubkey string) string {
	if p, ok := s.Participants[pubkey]; ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return ShortNpub(pubkey)
}

// ShortNpub renders pubkey as "npub1abc...wxyz". Keys that cannot be encoded
// are returned unchanged.
func ShortNpub(pubkey string) string {
	npub, err := nip19.EncodePublicKey(pubkey)
	if err != nil || len(npub) < 12 {
		return pubkey
	}
	return npub[:8] + "..." + npub[len(npub)-4:]
}

// SearchMessages returns messages whose plaintext contains query, ignoring case.
func (s *Snapshot) SearchMessages(query string) []Message {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []Message
	for _, c := range s.SortedConversations() {
		for _, m := range s.Messages[c.ID] {
			if strings.Contains(strings.ToLower(m.Content), q) {
				out = append(out, m)
			}
		}
	}
	return out
}

// SearchConversations matches query against subjects and participant names.
func (s *Snapshot) SearchConversations(query string) []Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []Conversation
	for _, c := range s.SortedConversations() {
		if strings.Contains(strings.ToLower(c.Subject), q) {
			out = append(out, c)
			continue
		}
		for _, pk := range c.ParticipantPubkeys {
			if strings.Contains(strings.ToLower(s.DisplayName(pk)), q) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
