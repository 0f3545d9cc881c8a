package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"pairing_bot/internal/infra/config"
	"pairing_bot/internal/infra/logger"
	"pairing_bot/internal/infra/storage"

	"github.com/spf13/cobra"
)

var (
	storeDriver string
	rootCmd     *cobra.Command
	addOnce     sync.Once

	// openStores is swapped in tests.
	openStores = func(ctx context.Context, cfg *config.AppConfig) (*storage.Stores, error) {
		return storage.Open(ctx, cfg, logger.Component("storage"))
	}
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "pairctl",
		Short: "Operator tool for the pairing bot",
		Long: `pairctl inspects and maintains the pairing bot's store.

It reads the same environment (and .env file) as the bot. Group chat ids are
negative, so pass them after "--", e.g. pairctl reset history -- -100123.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&storeDriver, "store", "", "Override STORE_DRIVER (postgres or memory)")
}

func addCommands() {
	addOnce.Do(func() {
		rootCmd.AddCommand(tenantsCmd)
		rootCmd.AddCommand(resetCmd)
		rootCmd.AddCommand(cycleCmd)
	})
}

// Execute runs the root command
func Execute(version string) error {
	addCommands()

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// loadStores reads configuration, sets up logging and opens the store.
func loadStores(ctx context.Context) (*config.AppConfig, *storage.Stores, error) {
	if storeDriver != "" {
		os.Setenv("STORE_DRIVER", storeDriver)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger.Init(cfg)

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, stores, nil
}
