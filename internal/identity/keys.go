package identity

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	lru "github.com/hashicorp/golang-lru/v2"
	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/nbd-wtf/go-nostr/nip44"
)

// ParsePubkey accepts a hex key or an npub and returns the lowercase hex form.
// The key must be a valid x-only secp256k1 point.
func ParsePubkey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "npub1") {
		prefix, value, err := nip19.Decode(s)
		if err != nil {
			return "", fmt.Errorf("decode npub: %w", err)
		}
		if prefix != "npub" {
			return "", fmt.Errorf("expected npub, got %s", prefix)
		}
		s, _ = value.(string)
	}
	return normalizePubkey(s)
}

// ValidatePubkey reports whether s is a valid lowercase-insensitive hex pubkey.
func ValidatePubkey(s string) bool {
	_, err := normalizePubkey(s)
	return err == nil
}

func normalizePubkey(s string) (string, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("public key is not valid hex: %w", err)
	}
	if len(b) != 32 {
		return "", fmt.Errorf("public key must be 32 bytes when decoded, got %d", len(b))
	}
	if _, err := schnorr.ParsePubKey(b); err != nil {
		return "", fmt.Errorf("public key is not on the curve: %w", err)
	}
	return strings.ToLower(s), nil
}

// ParseSecretKey accepts a hex key or an nsec and returns the hex form.
func ParseSecretKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "nsec1") {
		prefix, value, err := nip19.Decode(s)
		if err != nil {
			return "", fmt.Errorf("decode nsec: %w", err)
		}
		if prefix != "nsec" {
			return "", fmt.Errorf("expected nsec, got %s", prefix)
		}
		s, _ = value.(string)
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return "", fmt.Errorf("secret key must be 64 hex characters")
	}
	return strings.ToLower(s), nil
}

// LoadSecretKey returns the inline key if set, otherwise reads it from path.
func LoadSecretKey(inline, path string) (string, error) {
	if inline != "" {
		return ParseSecretKey(inline)
	}
	if path == "" {
		return "", fmt.Errorf("no secret key configured")
	}

	cleanedPath := filepath.Clean(path)
	if strings.Contains(cleanedPath, "..") {
		return "", fmt.Errorf("invalid path: directory traversal detected")
	}
	content, err := os.ReadFile(cleanedPath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret key file: %w", err)
	}
	return ParseSecretKey(string(content))
}

// sharedKeyCacheSize bounds each per-counterparty key cache. Every gift wrap
// is signed by a fresh ephemeral key, so entries are mostly used once.
const sharedKeyCacheSize = 1024

// Keys is a local key pair. It implements the decryption capability used by
// the sync engine and caches the most recently used shared secrets.
type Keys struct {
	secret string
	public string

	convKeys   *lru.Cache[string, [32]byte]
	sharedKeys *lru.Cache[string, []byte]
}

// NewKeys derives the key pair of a hex or nsec secret key.
func NewKeys(secret string) (*Keys, error) {
	sk, err := ParseSecretKey(secret)
	if err != nil {
		return nil, err
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	convKeys, err := lru.New[string, [32]byte](sharedKeyCacheSize)
	if err != nil {
		return nil, err
	}
	sharedKeys, err := lru.New[string, []byte](sharedKeyCacheSize)
	if err != nil {
		return nil, err
	}
	return &Keys{
		secret:     sk,
		public:     pk,
		convKeys:   convKeys,
		sharedKeys: sharedKeys,
	}, nil
}

// Generate creates a fresh random key pair.
func Generate() (*Keys, error) {
	return NewKeys(nostr.GeneratePrivateKey())
}

// PublicKey returns the hex public key.
func (k *Keys) PublicKey() string { return k.public }

// Npub returns the bech32 public key.
func (k *Keys) Npub() string {
	npub, _ := nip19.EncodePublicKey(k.public)
	return npub
}

// Sign signs evt with the secret key.
func (k *Keys) Sign(evt *nostr.Event) error {
	return evt.Sign(k.secret)
}

func (k *Keys) conversationKey(counterparty string) ([32]byte, error) {
	if ck, ok := k.convKeys.Get(counterparty); ok {
		return ck, nil
	}
	ck, err := nip44.GenerateConversationKey(counterparty, k.secret)
	if err != nil {
		return ck, err
	}
	k.convKeys.Add(counterparty, ck)
	return ck, nil
}

func (k *Keys) sharedSecret(counterparty string) ([]byte, error) {
	if ss, ok := k.sharedKeys.Get(counterparty); ok {
		return ss, nil
	}
	ss, err := nip04.ComputeSharedSecret(counterparty, k.secret)
	if err != nil {
		return nil, err
	}
	k.sharedKeys.Add(counterparty, ss)
	return ss, nil
}

// DecryptNIP44 opens a NIP-44 payload exchanged with counterparty.
func (k *Keys) DecryptNIP44(ctx context.Context, counterparty, ciphertext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ck, err := k.conversationKey(counterparty)
	if err != nil {
		return "", fmt.Errorf("conversation key: %w", err)
	}
	return nip44.Decrypt(ciphertext, ck)
}

// DecryptNIP04 opens a NIP-04 payload exchanged with counterparty.
func (k *Keys) DecryptNIP04(ctx context.Context, counterparty, ciphertext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ss, err := k.sharedSecret(counterparty)
	if err != nil {
		return "", fmt.Errorf("shared secret: %w", err)
	}
	return nip04.Decrypt(ciphertext, ss)
}

// EncryptNIP44 encrypts plaintext for counterparty.
func (k *Keys) EncryptNIP44(counterparty, plaintext string) (string, error) {
	ck, err := k.conversationKey(counterparty)
	if err != nil {
		return "", err
	}
	return nip44.Encrypt(plaintext, ck)
}

// EncryptNIP04 encrypts plaintext for counterparty with the legacy scheme.
func (k *Keys) EncryptNIP04(counterparty, plaintext string) (string, error) {
	ss, err := k.sharedSecret(counterparty)
	if err != nil {
		return "", err
	}
	return nip04.Encrypt(plaintext, ss)
}
