package engine

import (
	"github.com/Shugur-Network/dmsync/internal/constants"
	"github.com/Shugur-Network/dmsync/internal/domain"
	"github.com/Shugur-Network/dmsync/internal/errors"
	"github.com/Shugur-Network/dmsync/internal/identity"
	"github.com/Shugur-Network/dmsync/internal/models"
	"github.com/Shugur-Network/dmsync/internal/relays"
)

// WithDefaults fills zero fields of s with the package defaults.
func WithDefaults(s models.Settings) models.Settings {
	if s.RelayMode == "" {
		s.RelayMode = models.RelayModeHybrid
	}
	if s.RelayTTL == 0 {
		s.RelayTTL = constants.DefaultRelayTTL
	}
	if s.QueryLimit == 0 {
		s.QueryLimit = constants.DefaultQueryLimit
	}
	if s.QueryTimeout == 0 {
		s.QueryTimeout = constants.DefaultQueryTimeout
	}
	if s.FuzzWindow == 0 {
		s.FuzzWindow = constants.DefaultFuzzWindow
	}
	if s.CacheMaxAge == 0 {
		s.CacheMaxAge = constants.DefaultCacheMaxAge
	}
	if s.ListBatchSize == 0 {
		s.ListBatchSize = constants.ListBatchSize
	}
	relaysOut := make([]string, 0, len(s.DiscoveryRelays))
	for _, r := range s.DiscoveryRelays {
		relaysOut = append(relaysOut, relays.Normalize(r))
	}
	s.DiscoveryRelays = relaysOut
	return s
}

// ValidateRequest checks everything that can be checked without I/O and
// returns the canonical hex pubkey.
func ValidateRequest(pubkey string, dec domain.Decrypter, s models.Settings) (string, error) {
	if pubkey == "" {
		return "", errors.InvalidSettings("identity", "is required")
	}
	pk, err := identity.ParsePubkey(pubkey)
	if err != nil {
		return "", errors.InvalidSettings("identity", "is not a valid public key")
	}
	if dec == nil {
		return "", errors.InvalidSettings("decrypter", "is required")
	}
	if !s.RelayMode.Valid() {
		return "", errors.InvalidSettings("relay mode", "must be discovery, hybrid or strict_outbox")
	}
	if s.QueryLimit < 0 {
		return "", errors.InvalidSettings("query limit", "must be positive")
	}
	if s.QueryTimeout < 0 || s.RelayTTL < 0 || s.FuzzWindow < 0 || s.CacheMaxAge < 0 {
		return "", errors.InvalidSettings("durations", "must not be negative")
	}
	if s.ListBatchSize < 0 {
		return "", errors.InvalidSettings("list batch size", "must be positive")
	}
	for _, r := range s.DiscoveryRelays {
		if err := relays.ValidateURL(relays.Normalize(r)); err != nil {
			return "", errors.InvalidSettings("discovery relay "+r, err.Error())
		}
	}
	return pk, nil
}
