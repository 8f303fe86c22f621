package amm

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// BuySharesOut returns the outcome shares received for paying amountIn:
//
//	a = amountIn - fees
//	sharesOut = floor(r_o * a / (C + a))
//
// A pool whose outcome reserve or complement is empty has no price; the net
// amount is returned 1:1 as a bootstrap.
func (m *MarketMaker) BuySharesOut(r Reserves, outcome int, amountIn uint64) uint64 {
	if amountIn == 0 || !r.ValidOutcome(outcome) {
		return 0
	}
	net := amountIn - m.fees.Fees(amountIn).TotalFees
	if net == 0 {
		return 0
	}

	own := r.Of(outcome)
	comp := r.complement(outcome)
	if own == 0 || comp.Sign() == 0 {
		return net
	}

	num := new(big.Int).Mul(bi(own), bi(net))
	den := new(big.Int).Add(comp, bi(net))
	return toUint64(num.Quo(num, den))
}

// BuyPriceImpact compares the marginal price before the trade (C / r_o) with
// the average price actually paid (amountIn / sharesOut), as a percentage.
// Positive means the price moved against the buyer. The fee is part of the
// price paid.
func (m *MarketMaker) BuyPriceImpact(r Reserves, outcome int, amountIn uint64) decimal.Decimal {
	shares := m.BuySharesOut(r, outcome, amountIn)
	own := r.Of(outcome)
	comp := r.complement(outcome)
	if shares == 0 || own == 0 || comp.Sign() == 0 {
		return decimal.Zero
	}

	// avg / marginal = (amountIn / shares) / (C / r_o) = amountIn*r_o / (shares*C)
	num := new(big.Int).Mul(bi(amountIn), bi(own))
	den := new(big.Int).Mul(bi(shares), comp)
	ratio := decBig(num).Div(decBig(den))
	return ratio.Sub(one).Mul(hundred).Round(ImpactScale)
}

// SellGrossTokens returns the collateral released by the pool, before fees,
// for selling shares of outcome: floor(C * shares / (r_o + shares)).
func (m *MarketMaker) SellGrossTokens(r Reserves, outcome int, shares uint64) uint64 {
	if shares == 0 || !r.ValidOutcome(outcome) {
		return 0
	}
	comp := r.complement(outcome)
	if comp.Sign() == 0 {
		return 0
	}
	num := new(big.Int).Mul(comp, bi(shares))
	den := new(big.Int).Add(bi(r.Of(outcome)), bi(shares))
	return toUint64(num.Quo(num, den))
}

// SellNetTokens returns grossTokens minus the fee.
func (m *MarketMaker) SellNetTokens(grossTokens uint64) uint64 {
	return grossTokens - m.fees.Fees(grossTokens).TotalFees
}

// minGrossForNet returns the smallest gross amount whose net-of-fee value is
// at least net, or 0 if no gross amount can reach it.
func (m *MarketMaker) minGrossForNet(net uint64) uint64 {
	keep := BpsDenominator - m.fees.TotalBps()
	if net == 0 || keep == 0 {
		return 0
	}
	g := toUint64(ceilDiv(new(big.Int).Mul(bi(net), big.NewInt(BpsDenominator)), bi(keep)))
	// The fee floors, so up to two smaller amounts may still clear net.
	for g > 1 && m.SellNetTokens(g-1) >= net {
		g--
	}
	return g
}

// SellSharesNeeded returns the fewest shares of outcome that must be sold to
// receive tokensDesired after fees. The fee is taken from the output, so the
// required gross is grossed up first:
//
//	G = min{g : g - fee(g) >= tokensDesired}
//	shares = ceil(r_o * G / (C - G))
//
// It returns 0 when tokensDesired cannot be paid out by the pool.
func (m *MarketMaker) SellSharesNeeded(r Reserves, outcome int, tokensDesired uint64) uint64 {
	if tokensDesired == 0 || !r.ValidOutcome(outcome) {
		return 0
	}
	gross := m.minGrossForNet(tokensDesired)
	own := r.Of(outcome)
	comp := r.complement(outcome)
	g := bi(gross)
	if gross == 0 || own == 0 || g.Cmp(comp) >= 0 {
		return 0
	}
	num := new(big.Int).Mul(bi(own), g)
	den := new(big.Int).Sub(comp, g)
	return toUint64(ceilDiv(num, den))
}

// SellPriceImpact compares the marginal price before the sale with the
// marginal price of the post-trade reserves, as a percentage. Positive means
// the price moved against the seller.
func (m *MarketMaker) SellPriceImpact(r Reserves, outcome int, tokensDesired uint64) decimal.Decimal {
	shares := m.SellSharesNeeded(r, outcome, tokensDesired)
	if shares == 0 {
		return decimal.Zero
	}
	gross := m.SellGrossTokens(r, outcome, shares)
	own := r.Of(outcome)
	comp := r.complement(outcome)

	compAfter := new(big.Int).Sub(comp, bi(gross))
	ownAfter := new(big.Int).Add(bi(own), bi(shares))

	// after / before = (C' / r_o') / (C / r_o) = C'*r_o / (r_o'*C)
	num := new(big.Int).Mul(compAfter, bi(own))
	den := new(big.Int).Mul(ownAfter, comp)
	ratio := decBig(num).Div(decBig(den))
	return one.Sub(ratio).Mul(hundred).Round(ImpactScale)
}

// MaxTokensDesired returns the most net collateral a holder of sharesHeld can
// receive by selling all of them. SellSharesNeeded of the result never
// exceeds sharesHeld.
func (m *MarketMaker) MaxTokensDesired(r Reserves, outcome int, sharesHeld uint64) uint64 {
	return m.SellNetTokens(m.SellGrossTokens(r, outcome, sharesHeld))
}

// MinSharesOut applies a slippage tolerance, given in percentage points, to
// sharesOut: floor(sharesOut * (100 - tolerancePct) / 100). The arithmetic is
// exact so the bound never rounds above what the program can satisfy.
func MinSharesOut(sharesOut uint64, tolerancePct decimal.Decimal) uint64 {
	if !tolerancePct.IsPositive() {
		return sharesOut
	}
	if tolerancePct.GreaterThanOrEqual(hundred) {
		return 0
	}
	v := dec(sharesOut).Mul(hundred.Sub(tolerancePct)).Shift(-2).Floor()
	return toUint64(v.BigInt())
}

// ValidTolerance reports whether a slippage tolerance lies in [0, 100).
// Anything at or above 100 would sign a bound of zero.
func ValidTolerance(tolerancePct decimal.Decimal) bool {
	return !tolerancePct.IsNegative() && tolerancePct.LessThan(hundred)
}

// BuySharesOut prices a buy under DefaultFees.
func BuySharesOut(r Reserves, outcome int, amountIn uint64) uint64 {
	return Default.BuySharesOut(r, outcome, amountIn)
}

// BuyPriceImpact prices a buy's impact under DefaultFees.
func BuyPriceImpact(r Reserves, outcome int, amountIn uint64) decimal.Decimal {
	return Default.BuyPriceImpact(r, outcome, amountIn)
}

// SellNetTokens deducts DefaultFees from grossTokens.
func SellNetTokens(grossTokens uint64) uint64 {
	return Default.SellNetTokens(grossTokens)
}

// SellSharesNeeded prices a sale under DefaultFees.
func SellSharesNeeded(r Reserves, outcome int, tokensDesired uint64) uint64 {
	return Default.SellSharesNeeded(r, outcome, tokensDesired)
}

// SellPriceImpact prices a sale's impact under DefaultFees.
func SellPriceImpact(r Reserves, outcome int, tokensDesired uint64) decimal.Decimal {
	return Default.SellPriceImpact(r, outcome, tokensDesired)
}

// MaxTokensDesired caps a full sale under DefaultFees.
func MaxTokensDesired(r Reserves, outcome int, sharesHeld uint64) uint64 {
	return Default.MaxTokensDesired(r, outcome, sharesHeld)
}
