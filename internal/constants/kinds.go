package constants

// Event kinds handled by the sync engine
const (
	// KindProfile is the kind-0 user metadata used for display names
	KindProfile = 0
	// KindEncryptedDM is the legacy NIP-04 direct message
	KindEncryptedDM = 4
	// KindSeal is the NIP-59 seal (rumor wrapped in NIP-44 encryption)
	KindSeal = 13
	// KindChatMessage is the NIP-17 chat rumor
	KindChatMessage = 14
	// KindFileMessage is the NIP-17 file rumor
	KindFileMessage = 15
	// KindGiftWrap is the NIP-59 gift wrap (seal wrapped with an ephemeral key)
	KindGiftWrap = 1059
	// KindBlockedRelays is the NIP-51 blocked relays list
	KindBlockedRelays = 10006
	// KindRelayList is the NIP-65 read/write relay list
	KindRelayList = 10002
	// KindDMRelays is the NIP-17 DM inbox relay list
	KindDMRelays = 10050
)

// Tag names
const (
	TagP       = "p"
	TagR       = "r"
	TagRelay   = "relay"
	TagSubject = "subject"
)

// NIP-65 relay markers
const (
	MarkerRead  = "read"
	MarkerWrite = "write"
)
