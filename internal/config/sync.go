package config

import (
	"time"

	"github.com/Shugur-Network/dmsync/internal/models"
)

// SyncConfig holds the bootstrap settings.
type SyncConfig struct {
	DiscoveryRelays []string      `mapstructure:"DISCOVERY_RELAYS" json:"discovery_relays" validate:"required,min=1,dive,relay_url"`
	RelayMode       string        `mapstructure:"RELAY_MODE"       json:"relay_mode"       validate:"required,relay_mode"`
	RelayTTL        time.Duration `mapstructure:"RELAY_TTL"        json:"relay_ttl"        validate:"required,reasonable_duration"`
	QueryLimit      int           `mapstructure:"QUERY_LIMIT"      json:"query_limit"      validate:"required,min=1,max=10000"`
	QueryTimeout    time.Duration `mapstructure:"QUERY_TIMEOUT"    json:"query_timeout"    validate:"required,timeout_duration"`
	FuzzWindow      time.Duration `mapstructure:"FUZZ_WINDOW"      json:"fuzz_window"      validate:"window_duration"`
	CacheMaxAge     time.Duration `mapstructure:"CACHE_MAX_AGE"    json:"cache_max_age"    validate:"required,reasonable_duration"`
	ListBatchSize   int           `mapstructure:"LIST_BATCH_SIZE"  json:"list_batch_size"  validate:"required,min=1,max=500"`
	UnwrapWorkers   int           `mapstructure:"UNWRAP_WORKERS"   json:"unwrap_workers"   validate:"required,min=1,max=256"`
	RelayRate       float64       `mapstructure:"RELAY_RATE"       json:"relay_rate"       validate:"min=0"`
	RelayBurst      int           `mapstructure:"RELAY_BURST"      json:"relay_burst"      validate:"min=0,max=1000"`
	ResyncInterval  time.Duration `mapstructure:"RESYNC_INTERVAL"  json:"resync_interval"  validate:"omitempty,reasonable_duration"`
}

// Settings converts the section into the engine's per-run settings.
func (c SyncConfig) Settings() models.Settings {
	relays := make([]string, len(c.DiscoveryRelays))
	copy(relays, c.DiscoveryRelays)
	return models.Settings{
		DiscoveryRelays: relays,
		RelayMode:       models.RelayMode(c.RelayMode),
		RelayTTL:        c.RelayTTL,
		QueryLimit:      c.QueryLimit,
		QueryTimeout:    c.QueryTimeout,
		FuzzWindow:      c.FuzzWindow,
		CacheMaxAge:     c.CacheMaxAge,
		ListBatchSize:   c.ListBatchSize,
	}
}
