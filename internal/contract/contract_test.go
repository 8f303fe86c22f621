package contract

import (
	"errors"
	"testing"
)

const marketValue = `{
  id: 4821field,
  creator: aleo1qyzcreator.public,
  question_hash: 99field,
  num_outcomes: 3u8,
  status: 3u8,
  deadline: 1200000u64,
  winning_outcome: 2u8
}`

const poolValue = `{
  market_id: 4821field,
  reserve_1: 1000000u128,
  reserve_2: 500000u128,
  reserve_3: 1000000u128,
  reserve_4: 0u128,
  total_liquidity: 2500000u128,
  total_lp_shares: 2400000u128,
  total_volume: 730000u128
}`

func TestParseMarket_Valid(t *testing.T) {
	m, err := ParseMarket(marketValue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != "4821field" {
		t.Errorf("expected id=4821field, got %s", m.ID)
	}
	if m.Creator != "aleo1qyzcreator" {
		t.Errorf("expected creator=aleo1qyzcreator, got %s", m.Creator)
	}
	if m.NumOutcomes != 3 {
		t.Errorf("expected num_outcomes=3, got %d", m.NumOutcomes)
	}
	if m.Status != StatusResolved || StatusName(m.Status) != "resolved" {
		t.Errorf("expected resolved, got %d (%s)", m.Status, StatusName(m.Status))
	}
	if m.Deadline != 1_200_000 {
		t.Errorf("expected deadline=1200000, got %d", m.Deadline)
	}
	if m.WinningOutcome != 2 {
		t.Errorf("expected winning_outcome=2, got %d", m.WinningOutcome)
	}
	if m.QuestionHash != "99field" {
		t.Errorf("expected question_hash=99field, got %s", m.QuestionHash)
	}
}

func TestParseMarket_OptionalMembers(t *testing.T) {
	m, err := ParseMarket("{ id: 7field, num_outcomes: 2u8, status: 1u8 }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.WinningOutcome != 0 || m.Deadline != 0 || m.Creator != "" {
		t.Errorf("optional members should be zero, got %+v", m)
	}
}

func TestParseMarket_Invalid(t *testing.T) {
	tests := []struct {
		text string
		want error
	}{
		{"", ErrInvalidLiteral},
		{"id: 7field", ErrInvalidLiteral},
		{"{ }", ErrInvalidLiteral},
		{"{ inner: { a: 1u8 } }", ErrInvalidLiteral},
		{"{ num_outcomes: 2u8, status: 1u8 }", ErrMissingField},
		{"{ id: 7field, status: 1u8 }", ErrMissingField},
		{"{ id: 7field, num_outcomes: 5u8, status: 1u8 }", ErrInvalidValue},
		{"{ id: 7field, num_outcomes: 1u8, status: 1u8 }", ErrInvalidValue},
		{"{ id: abc, num_outcomes: 2u8, status: 1u8 }", ErrInvalidValue},
		{"{ id: 7field, num_outcomes: 2, status: 1u8 }", ErrInvalidValue},
		{"{ id: 7field, num_outcomes: 256u8, status: 1u8 }", ErrInvalidValue},
	}
	for _, tt := range tests {
		_, err := ParseMarket(tt.text)
		if !errors.Is(err, tt.want) {
			t.Errorf("ParseMarket(%q): expected %v, got %v", tt.text, tt.want, err)
		}
	}
}

func TestParsePool_Valid(t *testing.T) {
	p, err := ParsePool(poolValue, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.MarketID != "4821field" {
		t.Errorf("expected market_id=4821field, got %s", p.MarketID)
	}
	r := p.Reserves
	if r.NumOutcomes != 3 || r.Reserve1 != 1_000_000 || r.Reserve2 != 500_000 || r.Reserve3 != 1_000_000 {
		t.Errorf("unexpected reserves %+v", r)
	}
	if r.Total() != 2_500_000 {
		t.Errorf("expected total=2500000, got %d", r.Total())
	}
	if p.TotalLPShares != 2_400_000 {
		t.Errorf("expected total_lp_shares=2400000, got %d", p.TotalLPShares)
	}
	if p.TotalVolume != 730_000 {
		t.Errorf("expected total_volume=730000, got %d", p.TotalVolume)
	}
}

func TestParsePool_IgnoresInactiveReserves(t *testing.T) {
	p, err := ParsePool("{ reserve_1: 10u128, reserve_2: 20u128, reserve_3: 999u128, total_lp_shares: 30u128 }", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Reserves.Reserve3 != 0 || p.Reserves.Total() != 30 {
		t.Errorf("inactive reserve leaked: %+v", p.Reserves)
	}
}

func TestParsePool_Invalid(t *testing.T) {
	if _, err := ParsePool(poolValue, 5); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue for 5 outcomes, got %v", err)
	}
	if _, err := ParsePool("{ reserve_1: 10u128, total_lp_shares: 10u128 }", 2); !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField for missing reserve_2, got %v", err)
	}
	if _, err := ParsePool("{ reserve_1: 10u128, reserve_2: 10u128 }", 2); !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField for missing total_lp_shares, got %v", err)
	}
	huge := "{ reserve_1: 340282366920938463463374607431768211455u128, reserve_2: 1u128, total_lp_shares: 1u128 }"
	if _, err := ParsePool(huge, 2); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue for oversized u128, got %v", err)
	}
}

func TestParseMarketID(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"4821field", "4821field", true},
		{"4821", "4821field", true},
		{" 4821field.public ", "4821field", true},
		{"", "", false},
		{"field", "", false},
		{"0x12field", "", false},
		{"12group", "", false},
	}
	for _, tt := range tests {
		got, err := ParseMarketID(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("ParseMarketID(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("ParseMarketID(%q): expected error", tt.in)
		}
	}
}

func TestLiterals(t *testing.T) {
	if got := U8(3); got != "3u8" {
		t.Errorf("U8: got %s", got)
	}
	if got := U64(5_000_000); got != "5000000u64" {
		t.Errorf("U64: got %s", got)
	}
	if got := U128(18446744073709551615); got != "18446744073709551615u128" {
		t.Errorf("U128: got %s", got)
	}
}
