// Package cli implements the veil-engine command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veilmarkets/market-engine/internal/config"
)

var (
	// Global flags
	configFile string
	envFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "veil-engine",
	Short: "Private prediction market engine",
	Long: `veil-engine serves AMM quotes, cached market snapshots and transaction
inputs for private prediction markets. Trades are priced by a constant-product
market maker over 2 to 4 outcomes; private transactions are funded by records
discovered through the user's wallet.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file path (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading VEIL_ variables")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFile, envFile)
}
