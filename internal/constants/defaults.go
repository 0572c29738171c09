package constants

import "time"

// Sync defaults
const (
	// DefaultFuzzWindow pulls the warm watermark back to cover NIP-59 timestamp jitter
	DefaultFuzzWindow = 48 * time.Hour
	// DefaultRelayTTL is how long a participant's resolved relays stay fresh
	DefaultRelayTTL = 24 * time.Hour
	// DefaultCacheMaxAge is the oldest snapshot a warm start will resume from
	DefaultCacheMaxAge  = 30 * 24 * time.Hour
	DefaultQueryLimit   = 1000
	DefaultQueryTimeout = 10 * time.Second

	// ListBatchSize is the number of authors per relay-list request
	ListBatchSize = 50
	// ListFetchTimeout bounds one relay-list batch
	ListFetchTimeout = 15 * time.Second

	// ConversationGroupPrefix marks ids derived from more than one identity
	ConversationGroupPrefix = "group:"
	// ConversationSubjectSeparator separates the participant part of an id from its subject
	ConversationSubjectSeparator = "#"
)

// DefaultDiscoveryRelays are used when no discovery relays are configured
var DefaultDiscoveryRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.primal.net",
}

// Service identity
const (
	ServiceName    = "dmsync"
	CacheKeyPrefix = "dmsync:snapshot:"
)
