package amm

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LPSharesOut returns the LP shares minted for depositing amountIn into a
// pool with totalLiquidity collateral and totalLPShares outstanding:
//
//	lpSharesOut = floor(amountIn * totalLPShares / totalLiquidity)
//
// The first deposit (no shares or no liquidity yet) mints 1:1.
func LPSharesOut(amountIn, totalLPShares, totalLiquidity uint64) uint64 {
	if amountIn == 0 {
		return 0
	}
	if totalLPShares == 0 || totalLiquidity == 0 {
		return amountIn
	}
	z := new(big.Int).Mul(bi(amountIn), bi(totalLPShares))
	return toUint64(z.Quo(z, bi(totalLiquidity)))
}

// LPTokensOut returns the collateral redeemed by burning lpSharesIn:
//
//	tokensOut = floor(lpSharesIn * totalLiquidity / totalLPShares)
//
// lpSharesIn is capped at totalLPShares.
func LPTokensOut(lpSharesIn, totalLPShares, totalLiquidity uint64) uint64 {
	if lpSharesIn == 0 || totalLPShares == 0 {
		return 0
	}
	if lpSharesIn > totalLPShares {
		lpSharesIn = totalLPShares
	}
	z := new(big.Int).Mul(bi(lpSharesIn), bi(totalLiquidity))
	return toUint64(z.Quo(z, bi(totalLPShares)))
}

// PoolShare returns the percentage of the pool owned by lpShares out of
// totalLPShares.
func PoolShare(lpShares, totalLPShares uint64) decimal.Decimal {
	if totalLPShares == 0 {
		return decimal.Zero
	}
	if lpShares > totalLPShares {
		lpShares = totalLPShares
	}
	return dec(lpShares).Mul(hundred).Div(dec(totalLPShares)).Round(ImpactScale)
}
