package config

// IdentityConfig names the user whose messages are synchronized.
//
// The public key may be given as hex or npub. The secret key (hex or nsec) is
// only needed to decrypt; it can also be read from SecretKeyFile.
type IdentityConfig struct {
	PublicKey     string `mapstructure:"PUBLIC_KEY"      json:"public_key"      validate:"omitempty,pubkey"`
	SecretKey     string `mapstructure:"SECRET_KEY"      json:"-"               validate:"omitempty,seckey"`
	SecretKeyFile string `mapstructure:"SECRET_KEY_FILE" json:"secret_key_file" validate:"omitempty"`
}
