package models

import "time"

// Settings configures a single bootstrap run.
type Settings struct {
	DiscoveryRelays []string
	RelayMode       RelayMode
	RelayTTL        time.Duration
	QueryLimit      int
	QueryTimeout    time.Duration
	FuzzWindow      time.Duration
	CacheMaxAge     time.Duration
	ListBatchSize   int
}
