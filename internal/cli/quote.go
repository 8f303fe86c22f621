package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/veilmarkets/market-engine/internal/amm"
)

var (
	// Quote flags
	quoteReserves    []string
	quoteOutcome     int
	quoteAmount      uint64
	quoteSharesHeld  uint64
	quoteSlippage    string
	quoteProtocolBps uint64
	quoteCreatorBps  uint64
)

// quoteCmd represents the quote command group
var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a trade against literal reserves",
	Long: `Compute an AMM preview offline, without a node or a running server.
Reserves are given in micro-units, one per outcome:

  veil-engine quote buy --reserves 1000000,1000000 --outcome 1 --amount 100000`,
}

var quoteBuyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Preview a buy of --amount micro-credits",
	RunE: func(cmd *cobra.Command, _ []string) error {
		r, mm, slippage, err := quoteInputs()
		if err != nil {
			return err
		}
		return printQuote(cmd, r, mm.PreviewBuy(r, quoteOutcome, quoteAmount, slippage))
	},
}

var quoteSellCmd = &cobra.Command{
	Use:   "sell",
	Short: "Preview a sale paying out --amount micro-credits",
	RunE: func(cmd *cobra.Command, _ []string) error {
		r, mm, slippage, err := quoteInputs()
		if err != nil {
			return err
		}
		p := mm.PreviewSell(r, quoteOutcome, quoteAmount, quoteSharesHeld, slippage)
		if p.SharesNeeded == 0 {
			return fmt.Errorf("a payout of %d cannot be obtained from this pool", quoteAmount)
		}
		return printQuote(cmd, r, p)
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.AddCommand(quoteBuyCmd, quoteSellCmd)

	flags := quoteCmd.PersistentFlags()
	flags.StringSliceVar(&quoteReserves, "reserves", nil, "outcome reserves in micro-units, comma separated (2 to 4)")
	flags.IntVar(&quoteOutcome, "outcome", 1, "outcome to trade, 1-indexed")
	flags.Uint64Var(&quoteAmount, "amount", 0, "amount in (buy) or desired payout (sell), in micro-credits")
	flags.StringVar(&quoteSlippage, "slippage", "1", "slippage tolerance in percent")
	flags.Uint64Var(&quoteProtocolBps, "protocol-bps", amm.DefaultFees.ProtocolBps, "protocol fee in basis points")
	flags.Uint64Var(&quoteCreatorBps, "creator-bps", amm.DefaultFees.CreatorBps, "creator fee in basis points")
	quoteSellCmd.Flags().Uint64Var(&quoteSharesHeld, "shares-held", 0, "shares held; caps the sale when set")
	quoteCmd.MarkPersistentFlagRequired("reserves")
	quoteCmd.MarkPersistentFlagRequired("amount")
}

func quoteInputs() (amm.Reserves, *amm.MarketMaker, decimal.Decimal, error) {
	r, err := parseReserves(quoteReserves)
	if err != nil {
		return amm.Reserves{}, nil, decimal.Zero, err
	}
	if !r.ValidOutcome(quoteOutcome) {
		return amm.Reserves{}, nil, decimal.Zero, fmt.Errorf("outcome %d out of range 1..%d", quoteOutcome, r.NumOutcomes)
	}
	slippage, err := decimal.NewFromString(quoteSlippage)
	if err != nil {
		return amm.Reserves{}, nil, decimal.Zero, fmt.Errorf("invalid slippage %q: %w", quoteSlippage, err)
	}
	if !amm.ValidTolerance(slippage) {
		return amm.Reserves{}, nil, decimal.Zero, fmt.Errorf("slippage %s outside [0, 100)", slippage)
	}
	mm, err := amm.NewMarketMaker(amm.FeeSchedule{ProtocolBps: quoteProtocolBps, CreatorBps: quoteCreatorBps})
	if err != nil {
		return amm.Reserves{}, nil, decimal.Zero, err
	}
	return r, mm, slippage, nil
}

func parseReserves(values []string) (amm.Reserves, error) {
	if len(values) < amm.MinOutcomes || len(values) > amm.MaxOutcomes {
		return amm.Reserves{}, fmt.Errorf("need %d to %d reserves, got %d", amm.MinOutcomes, amm.MaxOutcomes, len(values))
	}
	balances := make([]uint64, len(values))
	for i, v := range values {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return amm.Reserves{}, fmt.Errorf("invalid reserve %q: %w", v, err)
		}
		balances[i] = n
	}
	return amm.NewReserves(balances...), nil
}

func printQuote(cmd *cobra.Command, r amm.Reserves, preview any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Prices  []decimal.Decimal `json:"prices"`
		Preview any               `json:"preview"`
	}{amm.Prices(r), preview})
}
