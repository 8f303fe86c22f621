// Package model defines the core domain types shared across the market engine.
// Amounts are integer micro-units; ratios use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/veilmarkets/market-engine/internal/amm"
)

// Market statuses.
const (
	StatusOpen      = "open"
	StatusClosed    = "closed"
	StatusResolved  = "resolved"
	StatusCancelled = "cancelled"
	StatusDisputed  = "disputed"
)

// Market is a cached snapshot of one market's on-chain state. The chain is
// authoritative; snapshots only feed quotes and are refreshed periodically.
type Market struct {
	ID             string       `json:"id" db:"id"`
	ProgramID      string       `json:"program_id" db:"program_id"`
	QuestionHash   string       `json:"question_hash" db:"question_hash"`
	Creator        string       `json:"creator" db:"creator"`
	Reserves       amm.Reserves `json:"reserves" db:"-"`
	TotalLPShares  uint64       `json:"total_lp_shares" db:"total_lp_shares"`
	TotalVolume    uint64       `json:"total_volume" db:"total_volume"`
	Status         string       `json:"status" db:"status"`
	WinningOutcome int          `json:"winning_outcome,omitempty" db:"winning_outcome"`
	Deadline       uint64       `json:"deadline,omitempty" db:"deadline"`
	FetchedAt      time.Time    `json:"fetched_at" db:"fetched_at"`
}

// Tradable reports whether the market accepts buys, sells and liquidity.
func (m *Market) Tradable() bool {
	return m.Status == StatusOpen
}

// MarketView is a snapshot with derived prices, as served to clients.
type MarketView struct {
	Market
	Prices         []decimal.Decimal `json:"prices"` // display probabilities, see amm.Prices
	TotalLiquidity uint64            `json:"total_liquidity"`
}

// NewMarketView derives prices and liquidity for m.
func NewMarketView(m Market) MarketView {
	return MarketView{
		Market:         m,
		Prices:         amm.Prices(m.Reserves),
		TotalLiquidity: m.Reserves.Total(),
	}
}

// PricePoint is an append-only observation of a market's implied prices,
// recorded each time a refreshed snapshot differs from the previous one.
type PricePoint struct {
	ID         string            `json:"id" db:"id"`
	MarketID   string            `json:"market_id" db:"market_id"`
	Reserves   amm.Reserves      `json:"reserves" db:"-"`
	Prices     []decimal.Decimal `json:"prices" db:"prices"`
	ObservedAt time.Time         `json:"observed_at" db:"observed_at"`
}
