package config

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/Shugur-Network/dmsync/internal/constants"
	"github.com/Shugur-Network/dmsync/internal/logger"
	"github.com/Shugur-Network/dmsync/internal/models"
	"github.com/Shugur-Network/dmsync/internal/relays"
	validator "github.com/go-playground/validator/v10"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Version is set at runtime from build information
var Version = "dev"

var validate = validator.New()

var hostnameRE = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)

// CacheBackends lists the supported snapshot stores.
var CacheBackends = []string{"memory", "file", "sqlite", "postgres", "redis"}

// Config holds every sub‑config.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"  validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  validate:"required"`
	Identity IdentityConfig `mapstructure:"identity" validate:"required"`
	Sync     SyncConfig     `mapstructure:"sync"     validate:"required"`
	Cache    CacheConfig    `mapstructure:"cache"    validate:"required"`
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
}

func init() {
	registerCustomValidators()
	validate.RegisterStructValidation(performCrossFieldValidation, Config{})
}

// registerCustomValidators registers custom validation functions
func registerCustomValidators() {
	validators := map[string]validator.Func{
		"pubkey":        isPubkey,
		"seckey":        isSeckey,
		"relay_url":     isRelayURL,
		"listen_addr":   isListenAddr,
		"relay_mode":    func(fl validator.FieldLevel) bool { return models.RelayMode(fl.Field().String()).Valid() },
		"cache_backend": func(fl validator.FieldLevel) bool { return contains(CacheBackends, fl.Field().String()) },
		"log_level": func(fl validator.FieldLevel) bool {
			return contains([]string{"debug", "info", "warn", "error"}, fl.Field().String())
		},
		"log_format":          func(fl validator.FieldLevel) bool { return contains([]string{"console", "json"}, fl.Field().String()) },
		"timeout_duration":    durationBetween(time.Second, time.Hour),
		"reasonable_duration": durationBetween(time.Minute, 365*24*time.Hour),
		"window_duration":     durationBetween(0, 30*24*time.Hour),
	}
	for tag, fn := range validators {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			logger.Error("Failed to register validator", zap.String("tag", tag), zap.Error(err))
		}
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func durationBetween(lo, hi time.Duration) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(time.Duration)
		return ok && d >= lo && d <= hi
	}
}

// isPubkey accepts a 64-character hex key or an npub.
func isPubkey(fl validator.FieldLevel) bool {
	key := fl.Field().String()
	if strings.HasPrefix(key, "npub1") {
		prefix, _, err := nip19.Decode(key)
		return err == nil && prefix == "npub"
	}
	b, err := hex.DecodeString(key)
	return err == nil && len(b) == 32
}

// isSeckey accepts a 64-character hex key or an nsec.
func isSeckey(fl validator.FieldLevel) bool {
	key := fl.Field().String()
	if strings.HasPrefix(key, "nsec1") {
		prefix, _, err := nip19.Decode(key)
		return err == nil && prefix == "nsec"
	}
	b, err := hex.DecodeString(key)
	return err == nil && len(b) == 32
}

func isRelayURL(fl validator.FieldLevel) bool {
	return relays.ValidateURL(fl.Field().String()) == nil
}

// isListenAddr accepts ":port" or "host:port".
func isListenAddr(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}
	if host == "" || net.ParseIP(host) != nil {
		return true
	}
	return hostnameRE.MatchString(host)
}

// performCrossFieldValidation checks that the selected cache backend is configured.
func performCrossFieldValidation(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)

	switch cfg.Cache.Backend {
	case "file":
		if cfg.Cache.Dir == "" {
			sl.ReportError(cfg.Cache.Dir, "Dir", "Dir", "backend_requires", "file")
		}
	case "sqlite":
		if cfg.Cache.SQLitePath == "" {
			sl.ReportError(cfg.Cache.SQLitePath, "SQLitePath", "SQLitePath", "backend_requires", "sqlite")
		}
	case "postgres":
		if cfg.Cache.PostgresURL == "" {
			sl.ReportError(cfg.Cache.PostgresURL, "PostgresURL", "PostgresURL", "backend_requires", "postgres")
		}
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			sl.ReportError(cfg.Cache.Redis.Addr, "Addr", "Addr", "backend_requires", "redis")
		}
	}

	if cfg.Identity.SecretKey != "" && cfg.Identity.SecretKeyFile != "" {
		sl.ReportError(cfg.Identity.SecretKeyFile, "SecretKeyFile", "SecretKeyFile", "excluded_with_secret", "")
	}
}

/* ------------------------------------------------------------------ *
|  Public API                                                         |
* -------------------------------------------------------------------*/

// SetVersion sets the version from build information
func SetVersion(v string) {
	Version = v
}

// Load merges defaults → file (optional) → env vars, validates, and returns cfg.
func Load(path string, log *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DMSYNC") // DMSYNC_SYNC_RELAY_MODE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 1. defaults.yaml (embedded)
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	// 2. optional user file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("dmsync")
		v.AddConfigPath(".")
		if err := v.MergeInConfig(); err == nil && log != nil {
			log.Info("Loaded dmsync.yaml from current directory")
		}
	}

	// 3. env already merged by AutomaticEnv()

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	if err := initializeLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	if log != nil {
		log.Info("configuration loaded",
			zap.String("version", Version),
			zap.String("cache_backend", cfg.Cache.Backend),
			zap.String("relay_mode", cfg.Sync.RelayMode),
		)
	}
	return &cfg, nil
}

// Validate runs the struct and cross-field rules over cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// initializeLogger initializes the logger using the LoggingConfig
func initializeLogger(loggingConfig LoggingConfig) error {
	return logger.Init(
		logger.WithLevel(loggingConfig.Level),
		logger.WithFormat(loggingConfig.Format),
		logger.WithFile(loggingConfig.FilePath),
		logger.WithVersion(Version),
		logger.WithComponent(constants.ServiceName),
		logger.WithRotation(loggingConfig.MaxSize, loggingConfig.MaxBackups, loggingConfig.MaxAge),
	)
}

// formatValidationError converts validator errors into user-friendly messages
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		messages := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			messages = append(messages, getFieldErrorMessage(fieldError))
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}
	return fmt.Errorf("configuration validation failed: %w", err)
}

// getFieldErrorMessage returns a user-friendly error message for a field validation error
func getFieldErrorMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	value := fe.Value()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required but not provided", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", field, param, value)
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", field, param, value)
	case "startswith":
		return fmt.Sprintf("%s must start with %q (got: %v)", field, param, value)
	case "pubkey":
		return fmt.Sprintf("%s must be a 64-character hex key or an npub (got: %v)", field, value)
	case "seckey":
		return fmt.Sprintf("%s must be a 64-character hex key or an nsec", field)
	case "relay_url":
		return fmt.Sprintf("%s must be a ws:// or wss:// URL (got: %v)", field, value)
	case "relay_mode":
		return fmt.Sprintf("%s must be one of: discovery, hybrid, strict_outbox (got: %v)", field, value)
	case "cache_backend":
		return fmt.Sprintf("%s must be one of: %s (got: %v)", field, strings.Join(CacheBackends, ", "), value)
	case "listen_addr":
		return fmt.Sprintf("%s must be a listen address in format ':port' or 'host:port' (got: %v)", field, value)
	case "timeout_duration":
		return fmt.Sprintf("%s must be between 1 second and 1 hour (got: %v)", field, value)
	case "reasonable_duration":
		return fmt.Sprintf("%s must be between 1 minute and 365 days (got: %v)", field, value)
	case "window_duration":
		return fmt.Sprintf("%s must be between 0 and 30 days (got: %v)", field, value)
	case "log_level":
		return fmt.Sprintf("%s must be one of: debug, info, warn, error (got: %v)", field, value)
	case "log_format":
		return fmt.Sprintf("%s must be either 'console' or 'json' (got: %v)", field, value)
	case "backend_requires":
		return fmt.Sprintf("%s is required when the %s cache backend is selected", field, param)
	case "excluded_with_secret":
		return fmt.Sprintf("%s cannot be combined with an inline secret key", field)
	default:
		return fmt.Sprintf("%s validation failed: %s (got: %v)", field, fe.Tag(), value)
	}
}
