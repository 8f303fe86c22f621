// Package txinput builds the ordered, typed input lists for market program
// transitions. A wallet executes a transition by name with exactly these
// inputs, in this order; the program recomputes every amount and rejects the
// transaction if a bound (minimum shares, minimum tokens) is not met.
package txinput

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veilmarkets/market-engine/internal/amm"
	"github.com/veilmarkets/market-engine/internal/contract"
	"github.com/veilmarkets/market-engine/internal/records"
)

// Transition names of the market program.
const (
	BuySharesPrivate  = "buy_shares_private"
	BuySharesPublic   = "buy_shares_public"
	SellShares        = "sell_shares"
	AddLiquidity      = "add_liquidity"
	RemoveLiquidity   = "remove_liquidity"
	RedeemShares      = "redeem_shares"
	ResolveMarket     = "resolve_market"
	DisputeResolution = "dispute_resolution"
)

var (
	ErrInvalidOutcome      = errors.New("txinput: outcome out of range")
	ErrZeroAmount          = errors.New("txinput: amount must be positive")
	ErrInsufficientRecord  = errors.New("txinput: credits record too small")
	ErrInsufficientShares  = errors.New("txinput: share record too small")
	ErrShareRecordMismatch = errors.New("txinput: share record is for another market or outcome")
)

// DefaultNetworkFee is the priority-free fee, in micro-credits, attached to
// market transitions.
const DefaultNetworkFee uint64 = 1_500_000

// Transaction is a transition call ready for a wallet to sign.
type Transaction struct {
	ID         string   `json:"id"`
	Program    string   `json:"program"`
	Function   string   `json:"function"`
	Inputs     []string `json:"inputs"`
	NetworkFee uint64   `json:"network_fee"`
	Private    bool     `json:"private"`
}

// Builder assembles transactions for one market program.
type Builder struct {
	program    string
	networkFee uint64
}

// NewBuilder creates a builder. A zero fee uses DefaultNetworkFee.
func NewBuilder(program string, networkFee uint64) *Builder {
	if networkFee == 0 {
		networkFee = DefaultNetworkFee
	}
	return &Builder{program: program, networkFee: networkFee}
}

// BuyParams describes a buy. Record is the credits record that pays for it;
// nil selects the public transition, which debits the public balance.
type BuyParams struct {
	MarketID     string
	Outcome      int
	AmountIn     uint64
	MinSharesOut uint64
	Record       *records.CreditsRecord
}

// Buy builds buy_shares_private, or buy_shares_public when no record is
// supplied:
//
//	private: market_id, outcome, amount_in, min_shares_out, credits_record
//	public:  market_id, outcome, amount_in, min_shares_out
func (b *Builder) Buy(p BuyParams) (*Transaction, error) {
	id, err := contract.ParseMarketID(p.MarketID)
	if err != nil {
		return nil, err
	}
	if err := checkOutcome(p.Outcome); err != nil {
		return nil, err
	}
	if p.AmountIn == 0 {
		return nil, ErrZeroAmount
	}

	inputs := []string{id, contract.U8(p.Outcome), contract.U128(p.AmountIn), contract.U128(p.MinSharesOut)}
	if p.Record == nil {
		return b.tx(BuySharesPublic, inputs, false), nil
	}
	if p.Record.AmountMicro < p.AmountIn {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientRecord, p.Record.AmountMicro, p.AmountIn)
	}
	return b.tx(BuySharesPrivate, append(inputs, p.Record.Plaintext), true), nil
}

// SellParams describes a sale for a desired net payout.
type SellParams struct {
	MarketID      string
	Outcome       int
	TokensDesired uint64
	MaxSharesUsed uint64
	Record        records.ShareRecord
}

// Sell builds sell_shares:
//
//	share_record, tokens_desired, max_shares_used
func (b *Builder) Sell(p SellParams) (*Transaction, error) {
	id, err := contract.ParseMarketID(p.MarketID)
	if err != nil {
		return nil, err
	}
	if err := checkShareRecord(p.Record, id, p.Outcome); err != nil {
		return nil, err
	}
	if p.TokensDesired == 0 || p.MaxSharesUsed == 0 {
		return nil, ErrZeroAmount
	}
	if p.Record.Quantity < p.MaxSharesUsed {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientShares, p.Record.Quantity, p.MaxSharesUsed)
	}
	inputs := []string{p.Record.Plaintext, contract.U128(p.TokensDesired), contract.U128(p.MaxSharesUsed)}
	return b.tx(SellShares, inputs, true), nil
}

// AddLiquidity builds add_liquidity:
//
//	market_id, amount, min_lp_shares, credits_record
func (b *Builder) AddLiquidity(marketID string, amount, minLPShares uint64, rec records.CreditsRecord) (*Transaction, error) {
	id, err := contract.ParseMarketID(marketID)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	if rec.AmountMicro < amount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientRecord, rec.AmountMicro, amount)
	}
	inputs := []string{id, contract.U128(amount), contract.U128(minLPShares), rec.Plaintext}
	return b.tx(AddLiquidity, inputs, true), nil
}

// RemoveLiquidity builds remove_liquidity:
//
//	market_id, lp_shares, min_tokens_out
func (b *Builder) RemoveLiquidity(marketID string, lpShares, minTokensOut uint64) (*Transaction, error) {
	id, err := contract.ParseMarketID(marketID)
	if err != nil {
		return nil, err
	}
	if lpShares == 0 {
		return nil, ErrZeroAmount
	}
	inputs := []string{id, contract.U128(lpShares), contract.U128(minTokensOut)}
	return b.tx(RemoveLiquidity, inputs, false), nil
}

// Redeem builds redeem_shares for a winning share record:
//
//	share_record
func (b *Builder) Redeem(marketID string, winningOutcome int, rec records.ShareRecord) (*Transaction, error) {
	id, err := contract.ParseMarketID(marketID)
	if err != nil {
		return nil, err
	}
	if err := checkShareRecord(rec, id, winningOutcome); err != nil {
		return nil, err
	}
	return b.tx(RedeemShares, []string{rec.Plaintext}, true), nil
}

// Resolve builds resolve_market:
//
//	market_id, winning_outcome
func (b *Builder) Resolve(marketID string, winningOutcome int) (*Transaction, error) {
	id, err := contract.ParseMarketID(marketID)
	if err != nil {
		return nil, err
	}
	if err := checkOutcome(winningOutcome); err != nil {
		return nil, err
	}
	return b.tx(ResolveMarket, []string{id, contract.U8(winningOutcome)}, false), nil
}

// Dispute builds dispute_resolution:
//
//	market_id, proposed_outcome, bond
func (b *Builder) Dispute(marketID string, proposedOutcome int, bond uint64) (*Transaction, error) {
	id, err := contract.ParseMarketID(marketID)
	if err != nil {
		return nil, err
	}
	if err := checkOutcome(proposedOutcome); err != nil {
		return nil, err
	}
	if bond == 0 {
		return nil, ErrZeroAmount
	}
	return b.tx(DisputeResolution, []string{id, contract.U8(proposedOutcome), contract.U128(bond)}, false), nil
}

func (b *Builder) tx(function string, inputs []string, private bool) *Transaction {
	return &Transaction{
		ID:         uuid.NewString(),
		Program:    b.program,
		Function:   function,
		Inputs:     inputs,
		NetworkFee: b.networkFee,
		Private:    private,
	}
}

func checkOutcome(outcome int) error {
	if outcome < 1 || outcome > amm.MaxOutcomes {
		return fmt.Errorf("%w: %d", ErrInvalidOutcome, outcome)
	}
	return nil
}

// checkShareRecord rejects a record for another outcome, or for another
// market when the record names one.
func checkShareRecord(rec records.ShareRecord, marketID string, outcome int) error {
	if err := checkOutcome(outcome); err != nil {
		return err
	}
	if rec.Outcome != outcome || (rec.MarketID != "" && rec.MarketID != marketID) {
		return ErrShareRecordMismatch
	}
	if rec.Quantity == 0 {
		return ErrInsufficientShares
	}
	return nil
}

// MaxSharesWithSlippage widens a sell's share budget by tolerancePct, rounded
// up, so the sale still goes through if the price moves against the seller.
// The result never exceeds held.
func MaxSharesWithSlippage(sharesNeeded, held uint64, tolerancePct decimal.Decimal) uint64 {
	if tolerancePct.IsNegative() {
		tolerancePct = decimal.Zero
	}
	needed := decimal.NewFromUint64(sharesNeeded)
	limit := needed.Add(needed.Mul(tolerancePct).Shift(-2).Ceil())
	if limit.GreaterThan(decimal.NewFromUint64(held)) {
		return held
	}
	return limit.BigInt().Uint64()
}
