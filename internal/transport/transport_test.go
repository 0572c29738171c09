package transport

import (
	"context"
	"fmt"
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shugur-Network/dmsync/internal/constants"
	"github.com/Shugur-Network/dmsync/internal/envelope"
	"github.com/Shugur-Network/dmsync/internal/limiter"
)

const (
	me  = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	bob = "7e7e9c42a91bfef19fa929e5fda1b72e0ebc1a4c1141673e2794234d86addf4e"
)

type fakeConn struct {
	events []*nostr.Event
	err    error
	closed bool
}

func (c *fakeConn) QuerySync(context.Context, nostr.Filter) ([]*nostr.Event, error) {
	return c.events, c.err
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func dialer(conns map[string]*fakeConn) Dialer {
	return func(_ context.Context, url string) (Conn, error) {
		c, ok := conns[url]
		if !ok {
			return nil, fmt.Errorf("dial %s: connection refused", url)
		}
		return c, nil
	}
}

func TestQueryRelay(t *testing.T) {
	conn := &fakeConn{events: []*nostr.Event{
		{ID: "w1", Kind: constants.KindGiftWrap, PubKey: bob, Tags: nostr.Tags{{"p", me}}, CreatedAt: 10},
		{ID: "d1", Kind: constants.KindEncryptedDM, PubKey: bob, Tags: nostr.Tags{{"p", me}}, CreatedAt: 11},
		{ID: "n1", Kind: 1, PubKey: bob, CreatedAt: 12},
		nil,
	}}
	c := NewClient(dialer(map[string]*fakeConn{"wss://a": conn}), limiter.NewKeyedPacer(0, 0))

	events, truncated, err := c.QueryRelay(context.Background(), "wss://a", envelope.BuildMessageFilters(me, nil, 10), 10)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.True(t, conn.closed)

	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"w1", "d1"}, ids, "non-matching events are dropped, duplicates across filters collapse")

	_, truncated, err = c.QueryRelay(context.Background(), "wss://a", envelope.BuildMessageFilters(me, nil, 2), 2)
	require.NoError(t, err)
	assert.True(t, truncated)

	_, _, err = c.QueryRelay(context.Background(), "wss://missing", nil, 10)
	assert.Error(t, err)
}

func TestQueryRelayError(t *testing.T) {
	c := NewClient(dialer(map[string]*fakeConn{"wss://a": {err: fmt.Errorf("closed")}}), nil)
	_, _, err := c.QueryRelay(context.Background(), "wss://a", envelope.BuildMessageFilters(me, nil, 10), 10)
	assert.Error(t, err)
}

func TestListFetcher(t *testing.T) {
	lists := &fakeConn{events: []*nostr.Event{
		{ID: "1", PubKey: bob, Kind: constants.KindDMRelays, CreatedAt: 5, Tags: nostr.Tags{{"relay", "wss://inbox.example.com"}}},
		{ID: "2", PubKey: bob, Kind: constants.KindProfile, CreatedAt: 3, Content: `{"name":"bob"}`},
		{ID: "3", PubKey: bob, Kind: constants.KindProfile, CreatedAt: 4, Content: `{"name":"bob","display_name":"Bobby"}`},
		{ID: "4", PubKey: me, Kind: constants.KindRelayList, CreatedAt: 6, Tags: nostr.Tags{{"r", "wss://rw.example.com", "read"}}},
	}}
	f := NewListFetcher(NewClient(dialer(map[string]*fakeConn{"wss://d1": lists}), nil))

	got, err := f.FetchRelayLists(context.Background(), []string{"wss://d1", "wss://down"}, []string{me, bob, "ffff"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, []string{"wss://inbox.example.com"}, got[bob].DMInbox)
	assert.Equal(t, "Bobby", got[bob].Name)
	assert.Equal(t, nostr.Timestamp(5), got[bob].FetchedAt)
	assert.Equal(t, []string{"wss://rw.example.com"}, got[me].ReadRelays())
	assert.Empty(t, got[me].Name)

	_, err = f.FetchRelayLists(context.Background(), []string{"wss://down"}, []string{me})
	assert.Error(t, err, "fails when no relay answered")
}

func TestProfileName(t *testing.T) {
	assert.Empty(t, profileName(nil))
	assert.Empty(t, profileName([]nostr.Event{{Kind: constants.KindProfile, Content: "not json"}}))
	assert.Equal(t, "n", profileName([]nostr.Event{{Kind: constants.KindProfile, Content: `{"name":"n"}`}}))
}
