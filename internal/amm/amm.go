// Package amm implements the constant-product automated market maker used by
// private prediction markets with 2 to 4 outcomes.
//
// A market holds one collateral reserve per outcome. Trading outcome o treats
// the pool as a two-sided constant product between the outcome's reserve r_o
// and the pooled complement C (the sum of every other active reserve):
//
//	k = r_o * C
//
// Buying pays net collateral into the complement side and takes shares from
// r_o. Selling is the exact inverse. A fee is deducted from the input on buys
// and from the output on sells.
//
// All amounts are unsigned integer micro-units. Intermediate products are
// computed with math/big so they cannot overflow, and every division floors
// in the pool's favour, matching the on-chain program. Ratios (price impact,
// implied prices, payouts) use shopspring/decimal, never float64.
//
// Functions here are pure and total: degenerate input (zero amounts, empty
// pools, unknown outcomes) yields a defined zero or identity result instead of
// an error, because they are recomputed on every keystroke.
package amm

import (
	"errors"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// MinOutcomes and MaxOutcomes bound Reserves.NumOutcomes.
	MinOutcomes = 2
	MaxOutcomes = 4

	// MicroPerUnit converts micro-units to display units.
	MicroPerUnit = 1_000_000
)

var (
	// ErrInvalidFeeSchedule is returned when the fee components add up to
	// more than 100%.
	ErrInvalidFeeSchedule = errors.New("amm: fee schedule exceeds 10000 bps")

	// ImpactScale is the number of decimal places kept for price impact.
	ImpactScale int32 = 4

	// PriceScale is the number of decimal places kept for implied prices.
	PriceScale int32 = 8

	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Reserves is a snapshot of a market's pooled collateral. Slots beyond
// NumOutcomes are ignored and read as zero.
type Reserves struct {
	Reserve1    uint64 `json:"reserve_1"`
	Reserve2    uint64 `json:"reserve_2"`
	Reserve3    uint64 `json:"reserve_3"`
	Reserve4    uint64 `json:"reserve_4"`
	NumOutcomes int    `json:"num_outcomes"`
}

// NewReserves builds a Reserves value from a slice of per-outcome balances.
// NumOutcomes is len(balances); extra balances beyond MaxOutcomes are dropped.
func NewReserves(balances ...uint64) Reserves {
	r := Reserves{NumOutcomes: len(balances)}
	for i, b := range balances {
		switch i {
		case 0:
			r.Reserve1 = b
		case 1:
			r.Reserve2 = b
		case 2:
			r.Reserve3 = b
		case 3:
			r.Reserve4 = b
		}
	}
	return r
}

// Valid reports whether NumOutcomes is within [MinOutcomes, MaxOutcomes].
func (r Reserves) Valid() bool {
	return r.NumOutcomes >= MinOutcomes && r.NumOutcomes <= MaxOutcomes
}

// ValidOutcome reports whether outcome (1-indexed) is active in this market.
func (r Reserves) ValidOutcome(outcome int) bool {
	return r.Valid() && outcome >= 1 && outcome <= r.NumOutcomes
}

// Of returns the reserve for outcome, or 0 if the outcome is not active.
func (r Reserves) Of(outcome int) uint64 {
	if !r.ValidOutcome(outcome) {
		return 0
	}
	switch outcome {
	case 1:
		return r.Reserve1
	case 2:
		return r.Reserve2
	case 3:
		return r.Reserve3
	default:
		return r.Reserve4
	}
}

// Active returns the reserves of the active outcomes in outcome order.
func (r Reserves) Active() []uint64 {
	if !r.Valid() {
		return nil
	}
	out := make([]uint64, r.NumOutcomes)
	for i := range out {
		out[i] = r.Of(i + 1)
	}
	return out
}

// Total returns the total liquidity across active outcomes, saturating at
// math.MaxUint64.
func (r Reserves) Total() uint64 {
	return toUint64(r.total())
}

func (r Reserves) total() *big.Int {
	sum := new(big.Int)
	for _, v := range r.Active() {
		sum.Add(sum, bi(v))
	}
	return sum
}

// complement returns the sum of every active reserve except outcome's.
func (r Reserves) complement(outcome int) *big.Int {
	sum := new(big.Int)
	for i, v := range r.Active() {
		if i+1 != outcome {
			sum.Add(sum, bi(v))
		}
	}
	return sum
}

// MarketMaker prices trades for a given fee schedule. It is stateless;
// reserves are passed as arguments, not stored.
type MarketMaker struct {
	fees FeeSchedule
}

// NewMarketMaker creates a market maker charging the given fee schedule.
func NewMarketMaker(fees FeeSchedule) (*MarketMaker, error) {
	if !fees.Valid() {
		return nil, ErrInvalidFeeSchedule
	}
	return &MarketMaker{fees: fees}, nil
}

// Default charges DefaultFees.
var Default = &MarketMaker{fees: DefaultFees}

// FeeSchedule returns the schedule this market maker charges.
func (m *MarketMaker) FeeSchedule() FeeSchedule {
	return m.fees
}

func bi(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// toUint64 clamps z into [0, MaxUint64].
func toUint64(z *big.Int) uint64 {
	if z.Sign() <= 0 {
		return 0
	}
	if !z.IsUint64() {
		return math.MaxUint64
	}
	return z.Uint64()
}

// ceilDiv returns ceil(num / den) for non-negative num and positive den.
func ceilDiv(num, den *big.Int) *big.Int {
	q, m := new(big.Int).QuoRem(num, den, new(big.Int))
	if m.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func dec(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(bi(v), 0)
}

func decBig(z *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(z, 0)
}
