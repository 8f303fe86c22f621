// Package contract decodes the market program's on-chain mapping values and
// encodes transition inputs as typed literals.
//
// Mapping values are struct literals such as
//
//	{
//	  id: 4821field,
//	  creator: aleo1qyz...,
//	  num_outcomes: 3u8,
//	  status: 1u8
//	}
//
// and transition inputs are individual literals (2u8, 1500000u128, 4821field).
package contract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/veilmarkets/market-engine/internal/amm"
)

// Market status codes as stored on chain.
const (
	StatusOpen      uint8 = 1
	StatusClosed    uint8 = 2
	StatusResolved  uint8 = 3
	StatusCancelled uint8 = 4
	StatusDisputed  uint8 = 5
)

var statusNames = map[uint8]string{
	StatusOpen:      "open",
	StatusClosed:    "closed",
	StatusResolved:  "resolved",
	StatusCancelled: "cancelled",
	StatusDisputed:  "disputed",
}

// StatusName returns the lowercase name of an on-chain status code.
func StatusName(code uint8) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return "unknown"
}

// fieldRegex matches `name: value` members of a flat struct literal.
var fieldRegex = regexp.MustCompile(`([a-z_][a-z0-9_]*)\s*:\s*([^,{}\s]+)`)

// intRegex matches an unsigned integer literal: 1500000u128.private
var intRegex = regexp.MustCompile(`^(\d+)u(8|16|32|64|128)(?:\.(?:private|public))?$`)

// idRegex matches a field literal, with or without its type suffix.
var idRegex = regexp.MustCompile(`^(\d+)(field)?(?:\.(?:private|public))?$`)

var (
	ErrInvalidLiteral = errors.New("contract: invalid struct literal")
	ErrMissingField   = errors.New("contract: missing struct member")
	ErrInvalidValue   = errors.New("contract: invalid literal value")
)

// Struct is a decoded flat struct literal: member name to raw literal.
type Struct map[string]string

// ParseStruct decodes a flat struct literal. Nested structs are not used by
// the market program and are rejected.
func ParseStruct(text string) (Struct, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return nil, fmt.Errorf("%w: %.40q", ErrInvalidLiteral, trimmed)
	}
	inner := trimmed[1 : len(trimmed)-1]
	if strings.ContainsAny(inner, "{}") {
		return nil, fmt.Errorf("%w: nested struct", ErrInvalidLiteral)
	}

	s := Struct{}
	for _, m := range fieldRegex.FindAllStringSubmatch(inner, -1) {
		s[m[1]] = m[2]
	}
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: no members", ErrInvalidLiteral)
	}
	return s, nil
}

// Uint returns an unsigned integer member. u128 values must fit in 64 bits;
// every amount the market program stores does.
func (s Struct) Uint(name string) (uint64, error) {
	raw, ok := s[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	m := intRegex.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("%w: %s = %s", ErrInvalidValue, name, raw)
	}
	bits, _ := strconv.Atoi(m[2])
	if bits > 64 {
		bits = 64
	}
	v, err := strconv.ParseUint(m[1], 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s = %s", ErrInvalidValue, name, raw)
	}
	return v, nil
}

// Field returns a field-typed member in canonical form (4821field).
func (s Struct) Field(name string) (string, error) {
	raw, ok := s[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return ParseMarketID(raw)
}

// String returns a member's raw literal with any visibility suffix removed.
func (s Struct) String(name string) (string, error) {
	raw, ok := s[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	raw = strings.TrimSuffix(raw, ".private")
	return strings.TrimSuffix(raw, ".public"), nil
}

// MarketInfo is the decoded `markets` mapping value.
type MarketInfo struct {
	ID             string `json:"id"`
	Creator        string `json:"creator"`
	QuestionHash   string `json:"question_hash"`
	NumOutcomes    int    `json:"num_outcomes"`
	Status         uint8  `json:"status"`
	Deadline       uint64 `json:"deadline"`
	WinningOutcome int    `json:"winning_outcome"`
}

// ParseMarket decodes a `markets` mapping value. winning_outcome and deadline
// are optional; older deployments omit them.
func ParseMarket(text string) (*MarketInfo, error) {
	s, err := ParseStruct(text)
	if err != nil {
		return nil, err
	}

	id, err := s.Field("id")
	if err != nil {
		return nil, err
	}
	n, err := s.Uint("num_outcomes")
	if err != nil {
		return nil, err
	}
	if n < amm.MinOutcomes || n > amm.MaxOutcomes {
		return nil, fmt.Errorf("%w: num_outcomes = %d", ErrInvalidValue, n)
	}
	status, err := s.Uint("status")
	if err != nil {
		return nil, err
	}

	info := &MarketInfo{
		ID:          id,
		NumOutcomes: int(n),
		Status:      uint8(status),
	}
	info.Creator, _ = s.String("creator")
	if q, err := s.Field("question_hash"); err == nil {
		info.QuestionHash = q
	}
	if d, err := s.Uint("deadline"); err == nil {
		info.Deadline = d
	}
	if w, err := s.Uint("winning_outcome"); err == nil && int(w) <= info.NumOutcomes {
		info.WinningOutcome = int(w)
	}
	return info, nil
}

// PoolState is the decoded `amm_pools` mapping value.
type PoolState struct {
	MarketID      string       `json:"market_id"`
	Reserves      amm.Reserves `json:"reserves"`
	TotalLPShares uint64       `json:"total_lp_shares"`
	TotalVolume   uint64       `json:"total_volume"`
}

// ParsePool decodes an `amm_pools` mapping value for a market with
// numOutcomes outcomes. Reserves beyond numOutcomes are ignored.
func ParsePool(text string, numOutcomes int) (*PoolState, error) {
	if numOutcomes < amm.MinOutcomes || numOutcomes > amm.MaxOutcomes {
		return nil, fmt.Errorf("%w: %d outcomes", ErrInvalidValue, numOutcomes)
	}
	s, err := ParseStruct(text)
	if err != nil {
		return nil, err
	}

	values := make([]uint64, numOutcomes)
	for i := range values {
		v, err := s.Uint(fmt.Sprintf("reserve_%d", i+1))
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	r := amm.NewReserves(values...)

	lp, err := s.Uint("total_lp_shares")
	if err != nil {
		return nil, err
	}
	pool := &PoolState{Reserves: r, TotalLPShares: lp}
	if id, err := s.Field("market_id"); err == nil {
		pool.MarketID = id
	}
	if v, err := s.Uint("total_volume"); err == nil {
		pool.TotalVolume = v
	}
	return pool, nil
}

// ParseMarketID accepts a market id with or without its `field` suffix and
// returns the canonical form.
func ParseMarketID(id string) (string, error) {
	m := idRegex.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return "", fmt.Errorf("%w: market id %q", ErrInvalidValue, id)
	}
	return m[1] + "field", nil
}

// U8 formats a u8 literal.
func U8(v int) string { return strconv.Itoa(v) + "u8" }

// U64 formats a u64 literal.
func U64(v uint64) string { return strconv.FormatUint(v, 10) + "u64" }

// U128 formats a u128 literal.
func U128(v uint64) string { return strconv.FormatUint(v, 10) + "u128" }
