package identity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	generatorHex  = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	generatorNpub = "npub10xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqpkge6d"
)

func TestParsePubkey(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"hex", generatorHex, generatorHex, false},
		{"upper hex", strings.ToUpper(generatorHex), generatorHex, false},
		{"npub", generatorNpub, generatorHex, false},
		{"short", "abcd", "", true},
		{"not hex", strings.Repeat("z", 64), "", true},
		{"not on curve", strings.Repeat("f", 64), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePubkey(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.True(t, ValidatePubkey(generatorHex))
	assert.False(t, ValidatePubkey(""))
}

func TestLoadSecretKey(t *testing.T) {
	keys, err := Generate()
	require.NoError(t, err)

	nsec, err := nip19.EncodePrivateKey(keys.secret)
	require.NoError(t, err)

	t.Run("inline nsec", func(t *testing.T) {
		sk, err := LoadSecretKey(nsec, "")
		require.NoError(t, err)
		assert.Equal(t, keys.secret, sk)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key")
		require.NoError(t, os.WriteFile(path, []byte(keys.secret+"\n"), 0o600))
		sk, err := LoadSecretKey("", path)
		require.NoError(t, err)
		assert.Equal(t, keys.secret, sk)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := LoadSecretKey("", "")
		assert.Error(t, err)
	})

	t.Run("traversal", func(t *testing.T) {
		_, err := LoadSecretKey("", "../../etc/key")
		assert.Error(t, err)
	})
}

func TestDecryptRoundTrip(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)
	bob, err := Generate()
	require.NoError(t, err)
	ctx := context.Background()

	ct, err := alice.EncryptNIP44(bob.PublicKey(), "hi bob")
	require.NoError(t, err)
	pt, err := bob.DecryptNIP44(ctx, alice.PublicKey(), ct)
	require.NoError(t, err)
	assert.Equal(t, "hi bob", pt)

	ct, err = bob.EncryptNIP04(alice.PublicKey(), "legacy hello")
	require.NoError(t, err)
	pt, err = alice.DecryptNIP04(ctx, bob.PublicKey(), ct)
	require.NoError(t, err)
	assert.Equal(t, "legacy hello", pt)

	eve, err := Generate()
	require.NoError(t, err)
	_, err = eve.DecryptNIP44(ctx, alice.PublicKey(), ct)
	assert.Error(t, err, "wrong key or scheme must fail")

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = bob.DecryptNIP44(canceled, alice.PublicKey(), ct)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNpub(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)
	got, err := ParsePubkey(k.Npub())
	require.NoError(t, err)
	assert.Equal(t, k.PublicKey(), got)
}

func TestSharedKeyCacheIsBounded(t *testing.T) {
	me, err := Generate()
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < sharedKeyCacheSize+10; i++ {
		sender, err := Generate()
		require.NoError(t, err)
		ct, err := sender.EncryptNIP44(me.PublicKey(), "one-off")
		require.NoError(t, err)
		_, err = me.DecryptNIP44(ctx, sender.PublicKey(), ct)
		require.NoError(t, err)
	}
	assert.Equal(t, sharedKeyCacheSize, me.convKeys.Len())
	assert.Zero(t, me.sharedKeys.Len())
}
