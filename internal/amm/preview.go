package amm

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// BuyPreview is the client-side estimate of a buy. The market program
// recomputes the trade authoritatively; MinSharesOut is what gets signed.
type BuyPreview struct {
	Outcome         int             `json:"outcome"`
	AmountIn        uint64          `json:"amount_in"`
	SharesOut       uint64          `json:"shares_out"`
	MinSharesOut    uint64          `json:"min_shares_out"`
	PriceImpact     decimal.Decimal `json:"price_impact"`
	Fees            Fees            `json:"fees"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
}

// SellPreview is the client-side estimate of a sale for a desired net payout.
type SellPreview struct {
	Outcome       int             `json:"outcome"`
	TokensDesired uint64          `json:"tokens_desired"`
	SharesNeeded  uint64          `json:"shares_needed"`
	GrossTokens   uint64          `json:"gross_tokens"`
	MinTokensOut  uint64          `json:"min_tokens_out"`
	MaxTokens     uint64          `json:"max_tokens"`
	PriceImpact   decimal.Decimal `json:"price_impact"`
	Fees          Fees            `json:"fees"`
}

// LiquidityPreview estimates an LP deposit or withdrawal.
type LiquidityPreview struct {
	AmountIn       uint64          `json:"amount_in,omitempty"`
	LPSharesIn     uint64          `json:"lp_shares_in,omitempty"`
	LPSharesOut    uint64          `json:"lp_shares_out,omitempty"`
	TokensOut      uint64          `json:"tokens_out,omitempty"`
	TotalLiquidity uint64          `json:"total_liquidity"`
	PoolShare      decimal.Decimal `json:"pool_share"`
}

// PreviewBuy bundles shares out, slippage bound, impact, fees and payout for
// a buy of amountIn.
func (m *MarketMaker) PreviewBuy(r Reserves, outcome int, amountIn uint64, slippagePct decimal.Decimal) BuyPreview {
	shares := m.BuySharesOut(r, outcome, amountIn)
	p := BuyPreview{
		Outcome:         outcome,
		AmountIn:        amountIn,
		SharesOut:       shares,
		MinSharesOut:    MinSharesOut(shares, slippagePct),
		PriceImpact:     m.BuyPriceImpact(r, outcome, amountIn),
		PotentialPayout: ToDisplay(shares),
	}
	if r.ValidOutcome(outcome) {
		p.Fees = m.fees.Fees(amountIn)
	}
	return p
}

// PreviewSell bundles the shares needed, the payout bound and the impact for
// receiving tokensDesired. sharesHeld caps the sale; when it is non-zero and
// smaller than what the payout requires, the preview is for selling all of
// sharesHeld instead.
func (m *MarketMaker) PreviewSell(r Reserves, outcome int, tokensDesired, sharesHeld uint64, slippagePct decimal.Decimal) SellPreview {
	p := SellPreview{Outcome: outcome}
	if sharesHeld > 0 {
		p.MaxTokens = m.MaxTokensDesired(r, outcome, sharesHeld)
		if tokensDesired > p.MaxTokens {
			tokensDesired = p.MaxTokens
		}
	}
	p.TokensDesired = tokensDesired
	p.SharesNeeded = m.SellSharesNeeded(r, outcome, tokensDesired)
	if p.SharesNeeded == 0 {
		return p
	}
	p.GrossTokens = m.SellGrossTokens(r, outcome, p.SharesNeeded)
	p.Fees = m.fees.Fees(p.GrossTokens)
	p.MinTokensOut = MinSharesOut(tokensDesired, slippagePct)
	p.PriceImpact = m.SellPriceImpact(r, outcome, tokensDesired)
	return p
}

// PreviewAddLiquidity estimates the LP shares minted for amountIn.
func PreviewAddLiquidity(r Reserves, totalLPShares, amountIn uint64) LiquidityPreview {
	total := r.Total()
	minted := LPSharesOut(amountIn, totalLPShares, total)
	return LiquidityPreview{
		AmountIn:       amountIn,
		LPSharesOut:    minted,
		TotalLiquidity: total,
		PoolShare:      PoolShare(minted, totalLPShares+minted),
	}
}

// PreviewRemoveLiquidity estimates the collateral redeemed for lpSharesIn.
func PreviewRemoveLiquidity(r Reserves, totalLPShares, lpSharesIn uint64) LiquidityPreview {
	total := r.Total()
	return LiquidityPreview{
		LPSharesIn:     lpSharesIn,
		TokensOut:      LPTokensOut(lpSharesIn, totalLPShares, total),
		TotalLiquidity: total,
		PoolShare:      PoolShare(lpSharesIn, totalLPShares),
	}
}

// Prices returns the implied probability of each active outcome, for
// display,
//
//	p_i = (1 / r_i) / Σ_j (1 / r_j)
//
// so a scarcer outcome reserve means a higher price. Prices sum to 1 up to
// rounding. A pool with an empty reserve prices every outcome equally.
//
// These are not execution prices. A buy of outcome o is charged at the
// marginal rate C / r_o per share before fees and slippage (see
// BuyPriceImpact); in a binary pool that rate is the odds p_o / (1 - p_o).
func Prices(r Reserves) []decimal.Decimal {
	active := r.Active()
	if len(active) == 0 {
		return nil
	}
	prices := make([]decimal.Decimal, len(active))

	degenerate := false
	for _, v := range active {
		if v == 0 {
			degenerate = true
			break
		}
	}
	if degenerate {
		even := one.DivRound(decimal.NewFromInt(int64(len(active))), PriceScale)
		for i := range prices {
			prices[i] = even
		}
		return prices
	}

	// 1/r_i normalised equals the product of the other reserves over the
	// sum of all such products; this stays in integers.
	weights := make([]*big.Int, len(active))
	sum := new(big.Int)
	for i := range active {
		w := big.NewInt(1)
		for j, v := range active {
			if j != i {
				w.Mul(w, bi(v))
			}
		}
		weights[i] = w
		sum.Add(sum, w)
	}
	for i, w := range weights {
		prices[i] = decBig(w).DivRound(decBig(sum), PriceScale)
	}
	return prices
}

// ToDisplay scales micro-units to display units.
func ToDisplay(micro uint64) decimal.Decimal {
	return dec(micro).Shift(-6)
}
