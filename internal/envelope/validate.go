package envelope

import (
	"encoding/base64"
	"fmt"
	"strings"

	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/Shugur-Network/dmsync/internal/constants"
)

const (
	nip44Version2 = 2
	nip44Nonce    = 32 // bytes
)

// ValidateGiftWrap checks the outer structure of a kind 1059 event before any
// decryption is attempted.
func ValidateGiftWrap(evt *nostr.Event) error {
	if evt.Kind != constants.KindGiftWrap {
		return fmt.Errorf("invalid event kind for gift wrap: %d", evt.Kind)
	}
	recipients := 0
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == constants.TagP {
			recipients++
			if !nostr.IsValid32ByteHex(tag[1]) {
				return fmt.Errorf("invalid recipient pubkey in gift wrap: %s", tag[1])
			}
		}
	}
	if recipients != 1 {
		return fmt.Errorf("gift wrap must have exactly one recipient")
	}
	if evt.CreatedAt == 0 {
		return fmt.Errorf("gift wrap must have created_at timestamp")
	}
	if !IsNIP44Payload(evt.Content) {
		return fmt.Errorf("invalid NIP-44 content in gift wrap")
	}
	return nil
}

// ValidateSeal checks a decrypted kind 13 seal. Seals carry no tags.
func ValidateSeal(evt *nostr.Event) error {
	if evt.Kind != constants.KindSeal {
		return fmt.Errorf("invalid event kind for seal: %d", evt.Kind)
	}
	if len(evt.Tags) != 0 {
		return fmt.Errorf("seal must not have tags")
	}
	if !IsNIP44Payload(evt.Content) {
		return fmt.Errorf("invalid NIP-44 content in seal")
	}
	return nil
}

// ValidateRumor checks a decrypted kind 14 or 15 rumor.
func ValidateRumor(evt *nostr.Event) error {
	if evt.Kind != constants.KindChatMessage && evt.Kind != constants.KindFileMessage {
		return fmt.Errorf("invalid event kind for private direct message: %d", evt.Kind)
	}
	if !nostr.IsValid32ByteHex(evt.PubKey) {
		return fmt.Errorf("invalid rumor author: %s", evt.PubKey)
	}
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == constants.TagP && !nostr.IsValid32ByteHex(tag[1]) {
			return fmt.Errorf("invalid pubkey in 'p' tag: %s", tag[1])
		}
	}
	return nil
}

// ValidateLegacyDM checks a kind 4 event and its "<ciphertext>?iv=<iv>" content.
func ValidateLegacyDM(evt *nostr.Event) error {
	if evt.Kind != constants.KindEncryptedDM {
		return fmt.Errorf("invalid event kind for encrypted direct message: %d", evt.Kind)
	}
	hasRecipient := false
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == constants.TagP {
			if !nostr.IsValid32ByteHex(tag[1]) {
				return fmt.Errorf("invalid pubkey in 'p' tag: %s", tag[1])
			}
			hasRecipient = true
		}
	}
	if !hasRecipient {
		return fmt.Errorf("encrypted direct message must have at least one 'p' tag")
	}

	ciphertext, iv, ok := strings.Cut(evt.Content, "?iv=")
	if !ok || ciphertext == "" || iv == "" {
		return fmt.Errorf("encrypted direct message content must be '<ciphertext>?iv=<iv>'")
	}
	if _, err := base64.StdEncoding.DecodeString(ciphertext); err != nil {
		return fmt.Errorf("invalid base64 ciphertext")
	}
	if _, err := base64.StdEncoding.DecodeString(iv); err != nil {
		return fmt.Errorf("invalid base64 iv")
	}
	return nil
}

// IsNIP44Payload reports whether content looks like a version 2 NIP-44 payload.
func IsNIP44Payload(content string) bool {
	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return false
	}
	return len(decoded) >= 1+nip44Nonce+32 && decoded[0] == nip44Version2
}
