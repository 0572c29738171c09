package participants

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shugur-Network/dmsync/internal/models"
)

const (
	d1 = "wss://d1.example.com"
	r1 = "wss://r1.example.com"
	r2 = "wss://r2.example.com"
	x1 = "wss://blocked.example.com"
)

type fakeFetcher struct {
	mu      sync.Mutex
	lists   map[string]models.RelayLists
	failFor map[string]bool
	batches [][]string
}

func (f *fakeFetcher) FetchRelayLists(_ context.Context, _ []string, pubkeys []string) (map[string]models.RelayLists, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), pubkeys...))
	out := make(map[string]models.RelayLists)
	for _, pk := range pubkeys {
		if f.failFor[pk] {
			return nil, errors.New("relay unreachable")
		}
		if l, ok := f.lists[pk]; ok {
			out[pk] = l
		}
	}
	return out, nil
}

func settings() models.Settings {
	return models.Settings{
		DiscoveryRelays: []string{d1},
		RelayMode:       models.RelayModeHybrid,
		RelayTTL:        time.Hour,
		ListBatchSize:   2,
	}
}

func TestBuild(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	lists := &models.RelayLists{DMInbox: []string{r1, x1}, Blocked: []string{r2}, Name: "Bob"}

	p := Build("b", lists, []string{x1}, models.RelayModeHybrid, []string{d1}, now)

	assert.Equal(t, []string{r1, d1}, p.DerivedRelays)
	assert.Equal(t, []string{x1, r2}, p.BlockedRelays)
	assert.Equal(t, nostr.Timestamp(now.Unix()), p.LastFetched)
	assert.Equal(t, "Bob", p.DisplayName)
	for _, b := range p.BlockedRelays {
		assert.NotContains(t, p.DerivedRelays, b)
	}

	fallback := Build("c", nil, nil, models.RelayModeStrictOutbox, []string{d1}, now)
	assert.Equal(t, []string{d1}, fallback.DerivedRelays)
}

func TestMergeIsFreshnessGuarded(t *testing.T) {
	existing := map[string]models.Participant{
		"a": {Pubkey: "a", DerivedRelays: []string{r1}, LastFetched: 100, DisplayName: "Alice"},
		"b": {Pubkey: "b", DerivedRelays: []string{r1}, LastFetched: 100},
	}
	incoming := map[string]models.Participant{
		"a": {Pubkey: "a", DerivedRelays: []string{r2}, LastFetched: 200},
		"b": {Pubkey: "b", DerivedRelays: []string{r2}, LastFetched: 50},
		"c": {Pubkey: "c", DerivedRelays: []string{d1}, LastFetched: 10},
	}

	merged := Merge(existing, incoming)

	assert.Equal(t, []string{r2}, merged["a"].DerivedRelays)
	assert.Equal(t, "Alice", merged["a"].DisplayName, "display name survives a refresh without a profile")
	assert.Equal(t, []string{r1}, merged["b"].DerivedRelays, "older data never replaces newer")
	assert.Contains(t, merged, "c")
	assert.Equal(t, []string{r1}, existing["a"].DerivedRelays, "inputs are not mutated")
}

func TestStaleAndNewPubkeys(t *testing.T) {
	now := time.Unix(10_000, 0)
	ps := map[string]models.Participant{
		"old":   {LastFetched: nostr.Timestamp(now.Add(-2 * time.Hour).Unix())},
		"fresh": {LastFetched: nostr.Timestamp(now.Add(-time.Minute).Unix())},
	}
	assert.Equal(t, []string{"old"}, Stale(ps, time.Hour, now))
	assert.Equal(t, []string{"a", "z"}, NewPubkeys([]string{"z", "old", "a", "z"}, ps))
}

func TestDirectoryResolveBatches(t *testing.T) {
	f := &fakeFetcher{lists: map[string]models.RelayLists{
		"a": {DMInbox: []string{r1}},
		"c": {ReadWrite: []models.RelayEntry{{URL: r2, Read: true}}},
	}}
	now := time.Unix(5000, 0)
	d := NewDirectory(f).WithClock(func() time.Time { return now })

	got := d.Resolve(context.Background(), []string{"a", "b", "c"}, nil, settings())

	require.Len(t, got, 3)
	assert.Equal(t, []string{r1, d1}, got["a"].DerivedRelays)
	assert.Equal(t, []string{d1}, got["b"].DerivedRelays, "no lists means discovery")
	assert.Equal(t, []string{r2, d1}, got["c"].DerivedRelays)

	sizes := make([]int, 0, len(f.batches))
	for _, b := range f.batches {
		sizes = append(sizes, len(b))
	}
	sort.Ints(sizes)
	assert.Equal(t, []int{1, 2}, sizes)
}

func TestDirectoryRefreshStale(t *testing.T) {
	now := time.Unix(100_000, 0)
	old := nostr.Timestamp(now.Add(-2 * time.Hour).Unix())
	current := map[string]models.Participant{
		"b":     {Pubkey: "b", DerivedRelays: []string{d1}, LastFetched: old},
		"down":  {Pubkey: "down", DerivedRelays: []string{r1}, LastFetched: old},
		"fresh": {Pubkey: "fresh", DerivedRelays: []string{r1}, LastFetched: nostr.Timestamp(now.Unix())},
	}
	f := &fakeFetcher{
		lists:   map[string]models.RelayLists{"b": {DMInbox: []string{r2}}},
		failFor: map[string]bool{"down": true},
	}
	s := settings()
	s.ListBatchSize = 1
	d := NewDirectory(f).WithClock(func() time.Time { return now })

	merged, refreshed := d.RefreshStale(context.Background(), current, nil, s)

	assert.Equal(t, []string{"b"}, refreshed)
	assert.Equal(t, []string{r2, d1}, merged["b"].DerivedRelays)
	assert.Equal(t, nostr.Timestamp(now.Unix()), merged["b"].LastFetched)
	assert.Equal(t, current["down"], merged["down"], "failed fetch keeps the old record")
	assert.Equal(t, current["fresh"], merged["fresh"])
}
