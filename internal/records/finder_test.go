package records

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func credits(owner string, micro string) string {
	return "{ owner: " + owner + ".private, microcredits: " + micro + "u64.private, _nonce: 1group.public }"
}

func static(recs ...any) RecordLister {
	return RecordListerFunc(func(context.Context, string) ([]any, error) {
		return recs, nil
	})
}

func failing(err error) RecordLister {
	return RecordListerFunc(func(context.Context, string) ([]any, error) {
		return nil, err
	})
}

func TestFindCreditsRecordThreshold(t *testing.T) {
	f := NewFinder(Capabilities{
		PlaintextRecords: static(map[string]any{"plaintext": credits("aleo1a", "5000000")}),
	}, WithLogger(quietLogger()))

	rec, ok := f.FindCreditsRecord(context.Background(), 5_000_000)
	require.True(t, ok)
	assert.Equal(t, uint64(5_000_000), rec.AmountMicro)
	assert.Equal(t, "aleo1a", rec.Owner)

	_, ok = f.FindCreditsRecord(context.Background(), 5_000_001)
	assert.False(t, ok)
}

func TestFindCreditsRecordShortCircuits(t *testing.T) {
	decrypts := 0
	later := 0
	f := NewFinder(Capabilities{
		PlaintextRecords: static(credits("aleo1a", "9000000")),
		CiphertextRecords: RecordListerFunc(func(context.Context, string) ([]any, error) {
			later++
			return []any{map[string]any{"ciphertext": "record1x"}}, nil
		}),
		Decrypter: DecrypterFunc(func(context.Context, string) (string, error) {
			decrypts++
			return credits("aleo1b", "9000000"), nil
		}),
		RecordPlaintexts: RecordListerFunc(func(context.Context, string) ([]any, error) {
			later++
			return nil, nil
		}),
	}, WithLogger(quietLogger()))

	rec, ok := f.FindCreditsRecord(context.Background(), 1)
	require.True(t, ok)
	assert.Equal(t, "aleo1a", rec.Owner)
	assert.Zero(t, decrypts)
	assert.Zero(t, later)
}

func TestFindCreditsRecordFirstInArrayOrder(t *testing.T) {
	f := NewFinder(Capabilities{
		PlaintextRecords: static(
			credits("aleo1small", "10"),
			credits("aleo1first", "3000000"),
			credits("aleo1second", "8000000"),
		),
	}, WithLogger(quietLogger()))

	rec, ok := f.FindCreditsRecord(context.Background(), 2_000_000)
	require.True(t, ok)
	assert.Equal(t, "aleo1first", rec.Owner)
}

func TestFindCreditsRecordSkipsJSONMetadata(t *testing.T) {
	f := NewFinder(Capabilities{
		PlaintextRecords: static(map[string]any{
			"plaintext": `{"owner":"aleo1meta","microcredits":"9000000u64"}`,
			"status":    "unspent",
		}),
		RecordPlaintexts: static(credits("aleo1real", "9000000")),
	}, WithLogger(quietLogger()))

	rec, ok := f.FindCreditsRecord(context.Background(), 1_000_000)
	require.True(t, ok)
	assert.Equal(t, "aleo1real", rec.Owner)
}

func TestFindCreditsRecordFailingCapabilityFallsThrough(t *testing.T) {
	f := NewFinder(Capabilities{
		PlaintextRecords: failing(errors.New("wallet locked")),
		RecordPlaintexts: failing(errors.New("not supported")),
		Fallback:         static(credits("aleo1fallback", "4000000")),
	}, WithLogger(quietLogger()))

	rec, ok := f.FindCreditsRecord(context.Background(), 4_000_000)
	require.True(t, ok)
	assert.Equal(t, "aleo1fallback", rec.Owner)
}

func TestFindCreditsRecordSkipsSpentAndMalformed(t *testing.T) {
	f := NewFinder(Capabilities{
		PlaintextRecords: static(
			map[string]any{"plaintext": credits("aleo1spent", "9000000"), "spent": true},
			map[string]any{"plaintext": credits("aleo1status", "9000000"), "status": "Spent"},
			map[string]any{"plaintext": "{ owner: aleo1big.private, microcredits: 99999999999999999999999u128.private }"},
			"not a record",
			map[string]any{"data": credits("aleo1ok", "9000000"), "is_spent": false},
		),
	}, WithLogger(quietLogger()))

	rec, ok := f.FindCreditsRecord(context.Background(), 1)
	require.True(t, ok)
	assert.Equal(t, "aleo1ok", rec.Owner)
}

func TestFindCreditsRecordDecrypts(t *testing.T) {
	var seen []string
	f := NewFinder(Capabilities{
		CiphertextRecords: static(
			map[string]any{"recordCiphertext": "record1bad"},
			map[string]any{"recordCiphertext": "record1small"},
			map[string]any{"recordCiphertext": "record1big"},
			map[string]any{"recordCiphertext": "record1never"},
		),
		Decrypter: DecrypterFunc(func(_ context.Context, ct string) (string, error) {
			seen = append(seen, ct)
			switch ct {
			case "record1bad":
				return "", errors.New("user rejected")
			case "record1small":
				return credits("aleo1small", "100"), nil
			default:
				return credits("aleo1big", "7000000"), nil
			}
		}),
	}, WithLogger(quietLogger()))

	rec, ok := f.FindCreditsRecord(context.Background(), 1_000_000)
	require.True(t, ok)
	assert.Equal(t, "aleo1big", rec.Owner)
	assert.Equal(t, []string{"record1bad", "record1small", "record1big"}, seen)
}

func TestFindCreditsRecordCallTimeout(t *testing.T) {
	f := NewFinder(Capabilities{
		PlaintextRecords: RecordListerFunc(func(ctx context.Context, _ string) ([]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		RecordPlaintexts: static(credits("aleo1late", "1000000")),
	}, WithLogger(quietLogger()), WithCallTimeout(20*time.Millisecond))

	rec, ok := f.FindCreditsRecord(context.Background(), 1)
	require.True(t, ok)
	assert.Equal(t, "aleo1late", rec.Owner)
}

func TestFindCreditsRecordProgram(t *testing.T) {
	var program string
	f := NewFinder(Capabilities{
		PlaintextRecords: RecordListerFunc(func(_ context.Context, p string) ([]any, error) {
			program = p
			return nil, nil
		}),
	}, WithLogger(quietLogger()), WithCreditsProgram("credits_test.aleo"))

	_, ok := f.FindCreditsRecord(context.Background(), 1)
	assert.False(t, ok)
	assert.Equal(t, "credits_test.aleo", program)
}

func TestFindCreditsRecordExhausted(t *testing.T) {
	_, ok := NewFinder(Capabilities{}, WithLogger(quietLogger())).FindCreditsRecord(context.Background(), 1)
	assert.False(t, ok)

	called := false
	f := NewFinder(Capabilities{
		PlaintextRecords: RecordListerFunc(func(context.Context, string) ([]any, error) {
			called = true
			return []any{credits("aleo1a", "9")}, nil
		}),
	}, WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = f.FindCreditsRecord(ctx, 1)
	assert.False(t, ok)
	assert.False(t, called)
}

// --- Share records ---

func share(market, outcome, quantity string) string {
	return "{ owner: aleo1s.private, market_id: " + market + ".private, outcome: " + outcome +
		"u8.private, quantity: " + quantity + "u128.private, _nonce: 2group.public }"
}

func TestFindShareRecords(t *testing.T) {
	f := NewFinder(Capabilities{
		PlaintextRecords: static(
			share("42field", "1", "100"),
			share("42field", "2", "200"),
			share("7field", "1", "300"),
			map[string]any{"plaintext": share("42field", "1", "400"), "spent": true},
			share("42field", "1", "0"),
			share("42field", "1", "500"),
		),
		RecordPlaintexts: static(share("42field", "1", "999")),
	}, WithLogger(quietLogger()))

	got := f.FindShareRecords(context.Background(), ShareFilter{MarketID: "42field", Outcome: 1})
	require.Len(t, got, 2)
	assert.Equal(t, uint64(100), got[0].Quantity)
	assert.Equal(t, uint64(500), got[1].Quantity)

	got = f.FindShareRecords(context.Background(), ShareFilter{MarketID: "42field", Outcome: 1, MinQuantity: 600})
	require.Len(t, got, 1)
	assert.Equal(t, uint64(999), got[0].Quantity)

	assert.Empty(t, f.FindShareRecords(context.Background(), ShareFilter{MarketID: "1field"}))
}

func TestFindShareRecord(t *testing.T) {
	var program string
	f := NewFinder(Capabilities{
		PlaintextRecords: RecordListerFunc(func(_ context.Context, p string) ([]any, error) {
			program = p
			return []any{
				validCredits,
				share("42field", "2", "200"),
			}, nil
		}),
	}, WithLogger(quietLogger()), WithMarketProgram("markets_test.aleo"))

	rec, ok := f.FindShareRecord(context.Background(), ShareFilter{Outcome: 2})
	require.True(t, ok)
	assert.Equal(t, "42field", rec.MarketID)
	assert.Equal(t, "markets_test.aleo", program)

	_, ok = f.FindShareRecord(context.Background(), ShareFilter{Outcome: 3})
	assert.False(t, ok)
}
