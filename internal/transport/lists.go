package transport

import (
	"context"
	"encoding/json"

	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/Shugur-Network/dmsync/internal/constants"
	"github.com/Shugur-Network/dmsync/internal/models"
	"github.com/Shugur-Network/dmsync/internal/relays"
)

// listKinds are fetched together for each batch of authors.
var listKinds = append([]int{constants.KindProfile}, relays.ListKinds...)

type profile struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// ListFetcher resolves relay lists and profile names from discovery relays.
type ListFetcher struct {
	client *Client
}

// NewListFetcher creates a fetcher over client.
func NewListFetcher(client *Client) *ListFetcher {
	return &ListFetcher{client: client}
}

// FetchRelayLists fetches the newest relay lists and profile of every pubkey.
// Pubkeys that published nothing are absent from the result.
func (f *ListFetcher) FetchRelayLists(ctx context.Context, discovery []string, pubkeys []string) (map[string]models.RelayLists, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ListFetchTimeout)
	defer cancel()

	filter := nostr.Filter{Kinds: listKinds, Authors: pubkeys}
	events, err := f.client.QueryMany(ctx, discovery, nostr.Filters{filter}, 0)
	if err != nil {
		return nil, err
	}
	return groupLists(events, pubkeys), nil
}

func groupLists(events []nostr.Event, pubkeys []string) map[string]models.RelayLists {
	byAuthor := make(map[string][]nostr.Event, len(pubkeys))
	for _, evt := range events {
		byAuthor[evt.PubKey] = append(byAuthor[evt.PubKey], evt)
	}

	out := make(map[string]models.RelayLists, len(byAuthor))
	for _, pk := range pubkeys {
		evts, ok := byAuthor[pk]
		if !ok {
			continue
		}
		lists := relays.ParseRelayLists(evts, pk)
		lists.Name = profileName(evts)
		out[pk] = lists
	}
	return out
}

// profileName returns display_name, else name, of the newest kind 0 event.
func profileName(events []nostr.Event) string {
	var newest *nostr.Event
	for i := range events {
		if events[i].Kind != constants.KindProfile {
			continue
		}
		if newest == nil || events[i].CreatedAt > newest.CreatedAt {
			newest = &events[i]
		}
	}
	if newest == nil {
		return ""
	}
	var p profile
	if err := json.Unmarshal([]byte(newest.Content), &p); err != nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}
