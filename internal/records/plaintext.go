// Package records locates spendable private records held by a user's wallet.
//
// Wallets expose records in different shapes: some return plaintext on
// request, some only ciphertext plus a separate decrypt call, some a list of
// plaintext strings. A Finder walks those capabilities in a fixed order and
// returns the first record whose plaintext passes a strict grammar. The
// grammar exists because wallets also return JSON status blobs that mention
// "owner" and amounts; feeding one of those into a transaction produces an
// input the prover rejects.
package records

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrNotRecord is returned when text is not a brace-delimited record.
	ErrNotRecord = errors.New("records: text is not a brace-delimited record")

	// ErrJSONShaped is returned for JSON objects ({"key": ...}); those are
	// wallet metadata, never record plaintext.
	ErrJSONShaped = errors.New("records: text is JSON metadata, not a record")

	ErrMissingOwner    = errors.New("records: record has no bare owner field")
	ErrMissingAmount   = errors.New("records: record has no bare amount field")
	ErrMissingOutcome  = errors.New("records: record has no bare outcome field")
	ErrMissingQuantity = errors.New("records: record has no bare quantity field")
	ErrInvalidNumber   = errors.New("records: numeric field out of range")
)

// Keys are bare (unquoted) identifiers preceded by the opening brace, a comma
// or whitespace. Values are Leo literals with a type suffix and an optional
// visibility: 5000000u64.private.
const (
	keyPrefix  = `(?:^|[\s{,])`
	intLiteral = `(\d+)u(?:8|16|32|64|128)`
	visibility = `(?:\.(?:private|public))?`
)

var (
	amountRe   = regexp.MustCompile(keyPrefix + `(?:microcredits|amount)\s*:\s*` + intLiteral + visibility)
	ownerRe    = regexp.MustCompile(keyPrefix + `owner\s*:\s*([0-9A-Za-z_]+)` + visibility)
	nonceRe    = regexp.MustCompile(keyPrefix + `_nonce\s*:\s*([^,}\s]+)`)
	outcomeRe  = regexp.MustCompile(keyPrefix + `outcome\s*:\s*` + intLiteral + visibility)
	quantityRe = regexp.MustCompile(keyPrefix + `quantity\s*:\s*` + intLiteral + visibility)
	marketIDRe = regexp.MustCompile(keyPrefix + `market_id\s*:\s*(\d+field)` + visibility)
)

// CreditsRecord is a parsed private credits record.
type CreditsRecord struct {
	Plaintext   string `json:"plaintext"`
	Owner       string `json:"owner"`
	AmountMicro uint64 `json:"amount_micro"`
	Nonce       string `json:"nonce,omitempty"`
}

// ShareRecord is a parsed private outcome-share record.
type ShareRecord struct {
	Plaintext string `json:"plaintext"`
	Outcome   int    `json:"outcome"`
	Quantity  uint64 `json:"quantity"`
	MarketID  string `json:"market_id,omitempty"`
	Owner     string `json:"owner,omitempty"`
}

// checkShape enforces the outer grammar shared by every record type: the
// text is wrapped in braces and the first token inside is not a quoted key.
func checkShape(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return "", ErrNotRecord
	}
	inner := strings.TrimLeft(trimmed[1:], " \t\r\n")
	if strings.HasPrefix(inner, `"`) {
		return "", ErrJSONShaped
	}
	return trimmed, nil
}

// ParseRecordPlaintext validates and parses a credits record plaintext such
// as:
//
//	{ owner: aleo1xyz.private, microcredits: 5000000u64.private, _nonce: 123group.public }
func ParseRecordPlaintext(text string) (CreditsRecord, error) {
	trimmed, err := checkShape(text)
	if err != nil {
		return CreditsRecord{}, err
	}
	owner := ownerRe.FindStringSubmatch(trimmed)
	if owner == nil {
		return CreditsRecord{}, ErrMissingOwner
	}
	amount := amountRe.FindStringSubmatch(trimmed)
	if amount == nil {
		return CreditsRecord{}, ErrMissingAmount
	}
	micro, err := strconv.ParseUint(amount[1], 10, 64)
	if err != nil {
		return CreditsRecord{}, fmt.Errorf("%w: amount %s", ErrInvalidNumber, amount[1])
	}

	rec := CreditsRecord{
		Plaintext:   trimmed,
		Owner:       owner[1],
		AmountMicro: micro,
	}
	if nonce := nonceRe.FindStringSubmatch(trimmed); nonce != nil {
		rec.Nonce = strings.TrimSuffix(strings.TrimSuffix(nonce[1], ".public"), ".private")
	}
	return rec, nil
}

// ParseShareRecord validates and parses an outcome-share record plaintext:
//
//	{ owner: aleo1xyz.private, market_id: 42field.private, outcome: 1u8.private, quantity: 250000u128.private, _nonce: 9group.public }
func ParseShareRecord(text string) (ShareRecord, error) {
	trimmed, err := checkShape(text)
	if err != nil {
		return ShareRecord{}, err
	}
	outcome := outcomeRe.FindStringSubmatch(trimmed)
	if outcome == nil {
		return ShareRecord{}, ErrMissingOutcome
	}
	quantity := quantityRe.FindStringSubmatch(trimmed)
	if quantity == nil {
		return ShareRecord{}, ErrMissingQuantity
	}

	o, err := strconv.ParseUint(outcome[1], 10, 8)
	if err != nil || o == 0 {
		return ShareRecord{}, fmt.Errorf("%w: outcome %s", ErrInvalidNumber, outcome[1])
	}
	q, err := strconv.ParseUint(quantity[1], 10, 64)
	if err != nil {
		return ShareRecord{}, fmt.Errorf("%w: quantity %s", ErrInvalidNumber, quantity[1])
	}

	rec := ShareRecord{
		Plaintext: trimmed,
		Outcome:   int(o),
		Quantity:  q,
	}
	if m := marketIDRe.FindStringSubmatch(trimmed); m != nil {
		rec.MarketID = m[1]
	}
	if m := ownerRe.FindStringSubmatch(trimmed); m != nil {
		rec.Owner = m[1]
	}
	return rec, nil
}
