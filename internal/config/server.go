package config

import "time"

// ServerConfig holds the HTTP API settings of the serve command.
type ServerConfig struct {
	Addr            string        `mapstructure:"ADDR"             json:"addr"             validate:"required,listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"READ_TIMEOUT"     json:"read_timeout"     validate:"required,timeout_duration"`
	WriteTimeout    time.Duration `mapstructure:"WRITE_TIMEOUT"    json:"write_timeout"    validate:"required,timeout_duration"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" json:"shutdown_timeout" validate:"required,timeout_duration"`
	RequestsPerMin  int           `mapstructure:"REQUESTS_PER_MIN" json:"requests_per_min" validate:"min=0,max=100000"`
}
