// Package main is the castboard command: an NFT and social activity
// leaderboard kept in sync with an on-chain participant registry.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"castboard/internal/config"
	"castboard/internal/logging"
)

var (
	envFile       string
	logLevel      string
	ledgerBackend string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "castboard",
	Short: "NFT and Farcaster activity leaderboard",
	Long: `castboard ranks wallet owners by NFT holdings and recent Farcaster activity.

Participants are registered on a ledger (the CastBoard contract, a Postgres
table, or memory). The service enriches them from Neynar and Alchemy and keeps
a local leaderboard reconciled against the ledger.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a KEY=VALUE file loaded before the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&ledgerBackend, "ledger", "", "Ledger backend (contract, postgres, memory); overrides LEDGER_BACKEND")
}

// loadConfig parses the environment, applies flag overrides and builds the logger.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if envFile != "" {
		config.LoadEnvFile(envFile)
	}

	c, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		c.LogLevel = logLevel
	}
	if cmd.Flags().Changed("ledger") {
		c.LedgerBackend = ledgerBackend
	}
	if cmd.Flags().Changed("listen") {
		c.ListenAddr = listenAddr
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cfg = c
	logger = logging.New(os.Stderr, c.LogLevel, c.LogPretty)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
