package amm

import "math/big"

// BpsDenominator is the basis-point denominator (100% = 10000 bps).
const BpsDenominator = 10_000

// FeeSchedule splits the trading fee between the protocol treasury and the
// market creator. Both components are in basis points of the fee base.
type FeeSchedule struct {
	ProtocolBps uint64 `json:"protocol_bps" mapstructure:"protocol_bps"`
	CreatorBps  uint64 `json:"creator_bps" mapstructure:"creator_bps"`
}

// DefaultFees is the 2% fee charged by the market program: 1% protocol and
// 1% creator.
var DefaultFees = FeeSchedule{ProtocolBps: 100, CreatorBps: 100}

// TotalBps returns the combined fee rate.
func (s FeeSchedule) TotalBps() uint64 {
	return s.ProtocolBps + s.CreatorBps
}

// Valid reports whether the combined fee is at most 100%.
func (s FeeSchedule) Valid() bool {
	return s.ProtocolBps <= BpsDenominator &&
		s.CreatorBps <= BpsDenominator &&
		s.TotalBps() <= BpsDenominator
}

// Fees is the fee charged on a single trade.
type Fees struct {
	ProtocolFee uint64 `json:"protocol_fee"`
	CreatorFee  uint64 `json:"creator_fee"`
	TotalFees   uint64 `json:"total_fees"`
}

// Fees computes the fee on amount.
//
// TotalFees is floor(amount * total / 10000) and CreatorFee is
// floor(amount * creator / 10000). The rounding residual goes to the
// protocol, so ProtocolFee + CreatorFee == TotalFees always holds.
func (s FeeSchedule) Fees(amount uint64) Fees {
	if amount == 0 {
		return Fees{}
	}
	total := bpsOf(amount, s.TotalBps())
	creator := bpsOf(amount, s.CreatorBps)
	if creator > total {
		creator = total
	}
	return Fees{
		ProtocolFee: total - creator,
		CreatorFee:  creator,
		TotalFees:   total,
	}
}

// Fees computes the fee on amountIn under the market maker's schedule.
func (m *MarketMaker) Fees(amountIn uint64) Fees {
	return m.fees.Fees(amountIn)
}

// CalculateFees computes the fee on amountIn under DefaultFees.
func CalculateFees(amountIn uint64) Fees {
	return DefaultFees.Fees(amountIn)
}

// bpsOf returns floor(amount * bps / 10000).
func bpsOf(amount, bps uint64) uint64 {
	z := new(big.Int).Mul(bi(amount), bi(bps))
	return toUint64(z.Quo(z, big.NewInt(BpsDenominator)))
}
