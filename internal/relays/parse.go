// Package relays resolves which relays to query for an identity from the
// relay lists it publishes.
package relays

import (
	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/Shugur-Network/dmsync/internal/constants"
	"github.com/Shugur-Network/dmsync/internal/models"
)

// ListKinds are the replaceable event kinds that carry relay lists.
var ListKinds = []int{constants.KindRelayList, constants.KindDMRelays, constants.KindBlockedRelays}

// Normalize canonicalizes a relay URL. Values that cannot be normalized are
// returned unchanged.
func Normalize(url string) string {
	if n := nostr.NormalizeURL(url); n != "" {
		return n
	}
	return url
}

// ParseRelayLists builds the relay lists of pubkey from a set of events.
// Events by other authors are ignored and the newest event of each kind wins.
func ParseRelayLists(events []nostr.Event, pubkey string) models.RelayLists {
	newest := make(map[int]nostr.Event, len(ListKinds))
	for _, evt := range events {
		if evt.PubKey != pubkey {
			continue
		}
		if cur, ok := newest[evt.Kind]; !ok || evt.CreatedAt > cur.CreatedAt {
			newest[evt.Kind] = evt
		}
	}

	var lists models.RelayLists
	var fetchedAt nostr.Timestamp
	if evt, ok := newest[constants.KindDMRelays]; ok {
		lists.DMInbox = relayTagURLs(evt, constants.TagRelay)
		fetchedAt = max(fetchedAt, evt.CreatedAt)
	}
	if evt, ok := newest[constants.KindRelayList]; ok {
		lists.ReadWrite = ParseRelayEntries(evt)
		fetchedAt = max(fetchedAt, evt.CreatedAt)
	}
	if evt, ok := newest[constants.KindBlockedRelays]; ok {
		lists.Blocked = ExtractBlockedRelays(&evt)
		fetchedAt = max(fetchedAt, evt.CreatedAt)
	}
	lists.FetchedAt = fetchedAt
	return lists
}

// ParseRelayEntries reads the "r" tags of a NIP-65 list. A tag without a
// marker means the relay is used for both reading and writing.
func ParseRelayEntries(evt nostr.Event) []models.RelayEntry {
	var out []models.RelayEntry
	seen := make(map[string]int)
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != constants.TagR || tag[1] == "" {
			continue
		}
		url := Normalize(tag[1])
		if ValidateURL(url) != nil {
			continue
		}
		entry := models.RelayEntry{URL: url, Read: true, Write: true}
		if len(tag) >= 3 {
			switch tag[2] {
			case constants.MarkerRead:
				entry.Write = false
			case constants.MarkerWrite:
				entry.Read = false
			}
		}
		if i, dup := seen[entry.URL]; dup {
			out[i].Read = out[i].Read || entry.Read
			out[i].Write = out[i].Write || entry.Write
			continue
		}
		seen[entry.URL] = len(out)
		out = append(out, entry)
	}
	return out
}

// ExtractBlockedRelays reads the "relay" tags of a kind 10006 list.
func ExtractBlockedRelays(evt *nostr.Event) []string {
	if evt == nil || evt.Kind != constants.KindBlockedRelays {
		return nil
	}
	return relayTagURLs(*evt, constants.TagRelay)
}

func relayTagURLs(evt nostr.Event, name string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != name || tag[1] == "" {
			continue
		}
		url := Normalize(tag[1])
		if ValidateURL(url) != nil {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, url)
	}
	return out
}
