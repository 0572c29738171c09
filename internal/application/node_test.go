package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shugur-Network/dmsync/internal/config"
	"github.com/Shugur-Network/dmsync/internal/constants"
	"github.com/Shugur-Network/dmsync/internal/engine"
	"github.com/Shugur-Network/dmsync/internal/identity"
	"github.com/Shugur-Network/dmsync/internal/models"
	"github.com/Shugur-Network/dmsync/internal/transport"
)

const discovery = "wss://d1.example.com"

type relayConn struct {
	events []*nostr.Event
}

func (c relayConn) QuerySync(_ context.Context, f nostr.Filter) ([]*nostr.Event, error) {
	var out []*nostr.Event
	for _, e := range c.events {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c relayConn) Close() error { return nil }

func dialer(relays map[string][]*nostr.Event) transport.Dialer {
	return func(_ context.Context, url string) (transport.Conn, error) {
		events, ok := relays[url]
		if !ok {
			return nil, fmt.Errorf("dial %s: connection refused", url)
		}
		return relayConn{events: events}, nil
	}
}

type recorder struct {
	mu    sync.Mutex
	snaps []*models.Snapshot
}

func (r *recorder) NotifySynced(snap *models.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func testConfig(secret string) *config.Config {
	return &config.Config{
		Identity: config.IdentityConfig{SecretKey: secret},
		Sync: config.SyncConfig{
			DiscoveryRelays: []string{discovery},
			RelayMode:       string(models.RelayModeHybrid),
			RelayTTL:        24 * time.Hour,
			QueryLimit:      100,
			QueryTimeout:    2 * time.Second,
			FuzzWindow:      48 * time.Hour,
			CacheMaxAge:     720 * time.Hour,
			ListBatchSize:   50,
			UnwrapWorkers:   2,
		},
		Cache:  config.CacheConfig{Backend: "memory"},
		Server: config.ServerConfig{ShutdownTimeout: time.Second},
	}
}

func legacyDM(t *testing.T, from *identity.Keys, to, text string, at nostr.Timestamp) *nostr.Event {
	t.Helper()
	content, err := from.EncryptNIP04(to, text)
	require.NoError(t, err)
	evt := &nostr.Event{Kind: constants.KindEncryptedDM, CreatedAt: at, Tags: nostr.Tags{{"p", to}}, Content: content}
	require.NoError(t, from.Sign(evt))
	return evt
}

func TestNodeSync(t *testing.T) {
	secret := nostr.GeneratePrivateKey()
	me, err := identity.NewKeys(secret)
	require.NoError(t, err)
	bob, err := identity.Generate()
	require.NoError(t, err)

	relays := map[string][]*nostr.Event{
		discovery: {
			legacyDM(t, bob, me.PublicKey(), "hi", 100),
			legacyDM(t, me, bob.PublicKey(), "hello bob", 200),
		},
	}
	node, err := build(NewNodeBuilder(context.Background(), testConfig(secret)).WithDialer(dialer(relays)))
	require.NoError(t, err)
	defer node.Shutdown()

	assert.Nil(t, node.Snapshot())
	assert.True(t, node.LastSync().IsZero())

	rec := &recorder{}
	node.AddNotifier(rec)

	rep, err := node.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.ModeCold, rep.Mode)
	assert.Equal(t, 2, rep.NewMessages)
	assert.Same(t, rep.Snapshot, node.Snapshot())
	assert.Same(t, rep, node.LastReport())
	assert.False(t, node.LastSync().IsZero())
	require.Len(t, rec.snaps, 1)
	assert.Equal(t, 2, rec.snaps[0].MessageCount())
	assert.Contains(t, rep.Snapshot.Participants, bob.PublicKey())

	cached, ok := node.CachedSnapshot(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, cached.MessageCount())

	snap, err := node.Resync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.MessageCount(), "warm resync does not duplicate messages")
	assert.Equal(t, engine.ModeWarm, node.LastReport().Mode)
	assert.Len(t, rec.snaps, 2)
}

func TestBuildIdentity(t *testing.T) {
	secret := nostr.GeneratePrivateKey()
	other, err := identity.Generate()
	require.NoError(t, err)

	cfg := testConfig("")
	_, err = build(NewNodeBuilder(context.Background(), cfg))
	assert.Error(t, err, "secret key is required")

	cfg = testConfig(secret)
	cfg.Identity.PublicKey = other.PublicKey()
	_, err = build(NewNodeBuilder(context.Background(), cfg))
	assert.ErrorContains(t, err, "does not belong")

	cfg = testConfig(secret)
	cfg.Cache.Backend = "nope"
	_, err = build(NewNodeBuilder(context.Background(), cfg))
	assert.ErrorContains(t, err, "unknown cache backend")
}
