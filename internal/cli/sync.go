package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veilmarkets/market-engine/internal/logging"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh every configured market once and exit",
	Long: `Fetch chain.market_ids from the node, store the snapshots and record a
price point for each market whose reserves or status changed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Chain.MarketIDs) == 0 {
			return errors.New("chain.market_ids is empty")
		}
		logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

		st, closeStore, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		updated := newSyncer(cfg, st, logger).SyncOnce(cmd.Context())
		markets, err := st.ListMarkets(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d markets updated, %d stored\n", updated, len(cfg.Chain.MarketIDs), len(markets))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
