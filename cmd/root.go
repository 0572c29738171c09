package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Shugur-Network/dmsync/internal/config"
	"github.com/Shugur-Network/dmsync/internal/logger"
	"github.com/Shugur-Network/dmsync/internal/metrics"
)

var (
	cfgFile string         // Path to custom config file (optional)
	cfg     *config.Config // Global reference to loaded configuration
)

// rootCmd defines the main CLI command for dmsync
var rootCmd = &cobra.Command{
	Use:   "dmsync",
	Short: "dmsync synchronizes Nostr private messages",
	Long: `Retrieves, decrypts and groups the NIP-04 and NIP-17 private messages of one
identity from the relays its contacts actually use, and keeps a local snapshot.`,
	Example: `
  dmsync sync --config ./dmsync.yaml
  dmsync search "lunch" --refresh
  dmsync serve --addr 127.0.0.1:8089 --relay-mode strict_outbox`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}
		if err := applyFlags(cmd, cfg); err != nil {
			return err
		}
		if err := config.Validate(cfg); err != nil {
			return err
		}
		metrics.RegisterMetrics()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Shutdown()
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// applyFlags overrides configuration values with explicitly set flags.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
		if err := logger.UpdateLevel(cfg.Logging.Level); err != nil {
			return err
		}
	}
	if flags.Changed("pubkey") {
		cfg.Identity.PublicKey, _ = flags.GetString("pubkey")
	}
	if flags.Changed("secret-key-file") {
		cfg.Identity.SecretKeyFile, _ = flags.GetString("secret-key-file")
		cfg.Identity.SecretKey = ""
	}
	if flags.Changed("discovery") {
		cfg.Sync.DiscoveryRelays, _ = flags.GetStringSlice("discovery")
	}
	if flags.Changed("relay-mode") {
		cfg.Sync.RelayMode, _ = flags.GetString("relay-mode")
	}
	if flags.Changed("query-limit") {
		cfg.Sync.QueryLimit, _ = flags.GetInt("query-limit")
	}
	if flags.Changed("cache-backend") {
		cfg.Cache.Backend, _ = flags.GetString("cache-backend")
	}
	if flags.Changed("addr") {
		cfg.Server.Addr, _ = flags.GetString("addr")
	}
	return nil
}

// Execute runs the root command with the provided context
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")
	flags.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flags.String("pubkey", "", "Public key to synchronize (hex or npub)")
	flags.String("secret-key-file", "", "File holding the secret key (hex or nsec)")
	flags.StringSlice("discovery", nil, "Discovery relays (comma separated)")
	flags.String("relay-mode", "", "Relay mode: discovery, hybrid or strict_outbox")
	flags.Int("query-limit", 0, "Maximum events per relay query")
	flags.String("cache-backend", "", "Snapshot store: memory, file, sqlite, postgres or redis")

	rootCmd.AddCommand(newVersionCmd(), newSyncCmd(), newSearchCmd(), newServeCmd())
}
