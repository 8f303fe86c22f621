package txinput

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmarkets/market-engine/internal/records"
)

const program = "veiled_markets.aleo"

var creditsRec = records.CreditsRecord{
	Plaintext:   "{ owner: aleo1a.private, microcredits: 5000000u64.private, _nonce: 1group.public }",
	Owner:       "aleo1a",
	AmountMicro: 5_000_000,
}

func shareRec(market string, outcome int, qty uint64) records.ShareRecord {
	return records.ShareRecord{
		Plaintext: "{ owner: aleo1a.private, market_id: " + market + ".private, outcome: 1u8.private, quantity: 1u128.private }",
		Outcome:   outcome,
		Quantity:  qty,
		MarketID:  market,
	}
}

func TestBuyPrivate(t *testing.T) {
	b := NewBuilder(program, 0)
	rec := creditsRec
	tx, err := b.Buy(BuyParams{MarketID: "42", Outcome: 2, AmountIn: 100_000, MinSharesOut: 87_467, Record: &rec})
	require.NoError(t, err)

	assert.Equal(t, BuySharesPrivate, tx.Function)
	assert.Equal(t, program, tx.Program)
	assert.True(t, tx.Private)
	assert.Equal(t, DefaultNetworkFee, tx.NetworkFee)
	assert.Equal(t, []string{"42field", "2u8", "100000u128", "87467u128", rec.Plaintext}, tx.Inputs)
	_, err = uuid.Parse(tx.ID)
	assert.NoError(t, err)
}

func TestBuyPublicFallback(t *testing.T) {
	tx, err := NewBuilder(program, 250_000).Buy(BuyParams{MarketID: "42field", Outcome: 1, AmountIn: 10, MinSharesOut: 9})
	require.NoError(t, err)
	assert.Equal(t, BuySharesPublic, tx.Function)
	assert.False(t, tx.Private)
	assert.Equal(t, uint64(250_000), tx.NetworkFee)
	assert.Equal(t, []string{"42field", "1u8", "10u128", "9u128"}, tx.Inputs)
}

func TestBuyRejects(t *testing.T) {
	b := NewBuilder(program, 0)
	small := creditsRec
	small.AmountMicro = 99

	tests := []struct {
		name string
		p    BuyParams
		want error
	}{
		{"outcome zero", BuyParams{MarketID: "1", Outcome: 0, AmountIn: 1}, ErrInvalidOutcome},
		{"outcome five", BuyParams{MarketID: "1", Outcome: 5, AmountIn: 1}, ErrInvalidOutcome},
		{"zero amount", BuyParams{MarketID: "1", Outcome: 1}, ErrZeroAmount},
		{"record too small", BuyParams{MarketID: "1", Outcome: 1, AmountIn: 100, Record: &small}, ErrInsufficientRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Buy(tt.p)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := b.Buy(BuyParams{MarketID: "bogus", Outcome: 1, AmountIn: 1})
	assert.Error(t, err)
}

func TestSell(t *testing.T) {
	b := NewBuilder(program, 0)
	rec := shareRec("42field", 1, 90_000)

	tx, err := b.Sell(SellParams{MarketID: "42", Outcome: 1, TokensDesired: 50_000, MaxSharesUsed: 60_000, Record: rec})
	require.NoError(t, err)
	assert.Equal(t, SellShares, tx.Function)
	assert.Equal(t, []string{rec.Plaintext, "50000u128", "60000u128"}, tx.Inputs)

	_, err = b.Sell(SellParams{MarketID: "42", Outcome: 2, TokensDesired: 1, MaxSharesUsed: 1, Record: rec})
	assert.ErrorIs(t, err, ErrShareRecordMismatch)

	_, err = b.Sell(SellParams{MarketID: "43", Outcome: 1, TokensDesired: 1, MaxSharesUsed: 1, Record: rec})
	assert.ErrorIs(t, err, ErrShareRecordMismatch)

	_, err = b.Sell(SellParams{MarketID: "42", Outcome: 1, TokensDesired: 1, MaxSharesUsed: 90_001, Record: rec})
	assert.ErrorIs(t, err, ErrInsufficientShares)

	_, err = b.Sell(SellParams{MarketID: "42", Outcome: 1, MaxSharesUsed: 1, Record: rec})
	assert.ErrorIs(t, err, ErrZeroAmount)
}

func TestLiquidity(t *testing.T) {
	b := NewBuilder(program, 0)

	tx, err := b.AddLiquidity("7", 1_000_000, 990_000, creditsRec)
	require.NoError(t, err)
	assert.Equal(t, AddLiquidity, tx.Function)
	assert.Equal(t, []string{"7field", "1000000u128", "990000u128", creditsRec.Plaintext}, tx.Inputs)

	_, err = b.AddLiquidity("7", 6_000_000, 0, creditsRec)
	assert.ErrorIs(t, err, ErrInsufficientRecord)

	tx, err = b.RemoveLiquidity("7field", 500, 480)
	require.NoError(t, err)
	assert.Equal(t, RemoveLiquidity, tx.Function)
	assert.Equal(t, []string{"7field", "500u128", "480u128"}, tx.Inputs)

	_, err = b.RemoveLiquidity("7field", 0, 0)
	assert.ErrorIs(t, err, ErrZeroAmount)
}

func TestResolutionTransitions(t *testing.T) {
	b := NewBuilder(program, 0)

	tx, err := b.Resolve("9", 3)
	require.NoError(t, err)
	assert.Equal(t, ResolveMarket, tx.Function)
	assert.Equal(t, []string{"9field", "3u8"}, tx.Inputs)

	tx, err = b.Dispute("9", 2, 10_000_000)
	require.NoError(t, err)
	assert.Equal(t, DisputeResolution, tx.Function)
	assert.Equal(t, []string{"9field", "2u8", "10000000u128"}, tx.Inputs)

	_, err = b.Dispute("9", 2, 0)
	assert.ErrorIs(t, err, ErrZeroAmount)

	rec := shareRec("9field", 3, 1_000)
	tx, err = b.Redeem("9", 3, rec)
	require.NoError(t, err)
	assert.Equal(t, RedeemShares, tx.Function)
	assert.Equal(t, []string{rec.Plaintext}, tx.Inputs)

	_, err = b.Redeem("9", 1, rec)
	assert.ErrorIs(t, err, ErrShareRecordMismatch)
}

func TestMaxSharesWithSlippage(t *testing.T) {
	tests := []struct {
		needed, held uint64
		tol          string
		want         uint64
	}{
		{1_000, 10_000, "0", 1_000},
		{1_000, 10_000, "1", 1_010},
		{999, 10_000, "1", 1_009},
		{1_000, 1_005, "1", 1_005},
		{1_000, 10_000, "-5", 1_000},
		{0, 10, "50", 0},
	}
	for _, tt := range tests {
		got := MaxSharesWithSlippage(tt.needed, tt.held, decimal.RequireFromString(tt.tol))
		assert.Equal(t, tt.want, got, "needed=%d held=%d tol=%s", tt.needed, tt.held, tt.tol)
	}
}
