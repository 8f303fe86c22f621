// Package limits rejects quotes that would move a pool too far in one trade.
//
// Pools on private markets are thin and every trade settles on chain minutes
// after it is quoted. A single order that drains most of an outcome reserve or
// moves the price by tens of percent is almost always a mistake (wrong units,
// stale snapshot), so the service refuses to build the transaction.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/veilmarkets/market-engine/internal/amm"
)

var (
	// ErrPriceImpactExceeded is returned when a trade's price impact is above
	// the configured maximum.
	ErrPriceImpactExceeded = errors.New("limits: price impact limit exceeded")

	// ErrPoolShareExceeded is returned when a trade takes, or a deposit would
	// own, more of the pool than the configured maximum.
	ErrPoolShareExceeded = errors.New("limits: pool share limit exceeded")
)

var hundred = decimal.NewFromInt(100)

// TradeGuard enforces per-trade limits. Both limits are percentages; zero
// disables the corresponding check.
type TradeGuard struct {
	// MaxPriceImpact is the largest acceptable absolute price impact.
	MaxPriceImpact decimal.Decimal

	// MaxPoolShare bounds how much of the pool a single trade may take:
	// the share of the outcome reserve a buy drains, the share of total
	// liquidity a sale pays out, and the pool share a deposit ends up with.
	MaxPoolShare decimal.Decimal
}

// NewTradeGuard creates a guard. Negative limits are treated as disabled.
func NewTradeGuard(maxPriceImpact, maxPoolShare decimal.Decimal) *TradeGuard {
	if maxPriceImpact.IsNegative() {
		maxPriceImpact = decimal.Zero
	}
	if maxPoolShare.IsNegative() {
		maxPoolShare = decimal.Zero
	}
	return &TradeGuard{
		MaxPriceImpact: maxPriceImpact,
		MaxPoolShare:   maxPoolShare,
	}
}

// CheckBuy validates a buy preview against the reserves it was quoted on.
func (g *TradeGuard) CheckBuy(r amm.Reserves, p amm.BuyPreview) error {
	if err := g.checkImpact(p.PriceImpact); err != nil {
		return err
	}
	return g.checkShare(percentOf(p.SharesOut, r.Of(p.Outcome)))
}

// CheckSell validates a sell preview against the reserves it was quoted on.
func (g *TradeGuard) CheckSell(r amm.Reserves, p amm.SellPreview) error {
	if err := g.checkImpact(p.PriceImpact); err != nil {
		return err
	}
	return g.checkShare(percentOf(p.GrossTokens, r.Total()))
}

// CheckLiquidity validates a deposit preview quoted against totalLPShares
// outstanding. Withdrawals are never limited.
func (g *TradeGuard) CheckLiquidity(totalLPShares uint64, p amm.LiquidityPreview) error {
	if totalLPShares == 0 {
		// Bootstrap deposits own the whole pool by definition.
		return nil
	}
	return g.checkShare(p.PoolShare)
}

func (g *TradeGuard) checkImpact(impact decimal.Decimal) error {
	if g.MaxPriceImpact.IsPositive() && impact.Abs().GreaterThan(g.MaxPriceImpact) {
		return ErrPriceImpactExceeded
	}
	return nil
}

func (g *TradeGuard) checkShare(share decimal.Decimal) error {
	if g.MaxPoolShare.IsPositive() && share.GreaterThan(g.MaxPoolShare) {
		return ErrPoolShareExceeded
	}
	return nil
}

// percentOf returns part as a percentage of whole; an empty whole is 100%.
func percentOf(part, whole uint64) decimal.Decimal {
	if part == 0 {
		return decimal.Zero
	}
	if whole == 0 {
		return hundred
	}
	return decimal.NewFromUint64(part).Mul(hundred).Div(decimal.NewFromUint64(whole))
}
