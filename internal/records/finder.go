package records

import (
	"context"
	"log/slog"
	"time"

	"github.com/veilmarkets/market-engine/internal/metrics"
)

const (
	DefaultCreditsProgram = "credits.aleo"
	DefaultMarketProgram  = "veiled_markets.aleo"
)

// Strategy names, in cascade order.
const (
	StrategyPlaintextRecords = "plaintext_records"
	StrategyDecrypt          = "ciphertext_decrypt"
	StrategyRecordPlaintexts = "record_plaintexts"
	StrategyFallback         = "fallback"
)

// ShareFilter narrows a share-record search. Zero values match anything.
type ShareFilter struct {
	MarketID    string
	Outcome     int
	MinQuantity uint64
}

func (f ShareFilter) match(r ShareRecord) bool {
	if r.Quantity == 0 || r.Quantity < f.MinQuantity {
		return false
	}
	if f.Outcome != 0 && r.Outcome != f.Outcome {
		return false
	}
	if f.MarketID != "" && r.MarketID != "" && r.MarketID != f.MarketID {
		return false
	}
	return true
}

// Finder searches a wallet's records through an ordered cascade of
// strategies, one per available capability. A strategy runs only when every
// earlier strategy produced no match. Finder never returns an error: a
// failing capability is logged and treated as a miss.
type Finder struct {
	caps           Capabilities
	creditsProgram string
	marketProgram  string
	callTimeout    time.Duration
	logger         *slog.Logger
}

// Option configures a Finder.
type Option func(*Finder)

// WithCallTimeout bounds every individual capability call. Zero disables it.
func WithCallTimeout(d time.Duration) Option {
	return func(f *Finder) { f.callTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Finder) { f.logger = l }
}

func WithCreditsProgram(program string) Option {
	return func(f *Finder) { f.creditsProgram = program }
}

func WithMarketProgram(program string) Option {
	return func(f *Finder) { f.marketProgram = program }
}

// NewFinder returns a Finder over caps.
func NewFinder(caps Capabilities, opts ...Option) *Finder {
	f := &Finder{
		caps:           caps,
		creditsProgram: DefaultCreditsProgram,
		marketProgram:  DefaultMarketProgram,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FindCreditsRecord returns the first unspent credits record holding at least
// minMicro micro-credits.
func (f *Finder) FindCreditsRecord(ctx context.Context, minMicro uint64) (CreditsRecord, bool) {
	var found CreditsRecord
	ok := f.cascade(ctx, f.creditsProgram, creditsGrammar, func(text string) bool {
		rec, err := ParseRecordPlaintext(text)
		if err != nil {
			f.logger.Debug("skipping credits candidate", "err", err)
			return false
		}
		if rec.AmountMicro < minMicro {
			return false
		}
		found = rec
		return true
	})
	return found, ok
}

// FindShareRecords returns every unspent share record matching filter from
// the first strategy that yields any.
func (f *Finder) FindShareRecords(ctx context.Context, filter ShareFilter) []ShareRecord {
	var out []ShareRecord
	f.cascade(ctx, f.marketProgram, shareGrammar, func(text string) bool {
		rec, err := ParseShareRecord(text)
		if err != nil {
			f.logger.Debug("skipping share candidate", "err", err)
			return false
		}
		if filter.match(rec) {
			out = append(out, rec)
		}
		return false
	}, func() bool { return len(out) > 0 })
	return out
}

// FindShareRecord returns the first unspent share record matching filter.
func (f *Finder) FindShareRecord(ctx context.Context, filter ShareFilter) (ShareRecord, bool) {
	var found ShareRecord
	ok := f.cascade(ctx, f.marketProgram, shareGrammar, func(text string) bool {
		rec, err := ParseShareRecord(text)
		if err != nil {
			f.logger.Debug("skipping share candidate", "err", err)
			return false
		}
		if !filter.match(rec) {
			return false
		}
		found = rec
		return true
	})
	return found, ok
}

// visitFunc receives a candidate plaintext and reports whether the search
// should stop.
type visitFunc func(text string) bool

type strategy struct {
	name string
	run  func(ctx context.Context, program string, g grammar, visit visitFunc) (bool, error)
}

func (f *Finder) strategies() []strategy {
	var out []strategy
	if f.caps.PlaintextRecords != nil {
		out = append(out, strategy{StrategyPlaintextRecords, f.listing(f.caps.PlaintextRecords)})
	}
	if f.caps.CiphertextRecords != nil {
		out = append(out, strategy{StrategyDecrypt, f.decrypting})
	}
	if f.caps.RecordPlaintexts != nil {
		out = append(out, strategy{StrategyRecordPlaintexts, f.listing(f.caps.RecordPlaintexts)})
	}
	if f.caps.Fallback != nil {
		out = append(out, strategy{StrategyFallback, f.listing(f.caps.Fallback)})
	}
	return out
}

// cascade runs strategies in order until one stops the visit. An optional
// done func lets collecting searches stop after the first strategy that
// produced anything.
func (f *Finder) cascade(ctx context.Context, program string, g grammar, visit visitFunc, done ...func() bool) bool {
	start := time.Now()
	defer func() {
		metrics.RecordLookupDuration.WithLabelValues(g.name).Observe(time.Since(start).Seconds())
	}()

	for _, s := range f.strategies() {
		if ctx.Err() != nil {
			f.logger.Warn("record search cancelled", "kind", g.name, "err", ctx.Err())
			return false
		}
		stopped, err := s.run(ctx, program, g, visit)
		if err != nil {
			f.logger.Warn("record strategy failed", "kind", g.name, "strategy", s.name, "err", err)
			metrics.RecordLookups.WithLabelValues(g.name, s.name, "error").Inc()
			continue
		}
		if stopped || (len(done) > 0 && done[0]()) {
			f.logger.Debug("record found", "kind", g.name, "strategy", s.name)
			metrics.RecordLookups.WithLabelValues(g.name, s.name, "found").Inc()
			return true
		}
		metrics.RecordLookups.WithLabelValues(g.name, s.name, "empty").Inc()
	}
	f.logger.Info("no matching record", "kind", g.name, "program", program)
	return false
}

// call derives the context for a single capability call.
func (f *Finder) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.callTimeout)
}

// within runs fn under the per-call deadline. A wallet that ignores its
// context is abandoned once the deadline passes.
func within[T any](ctx context.Context, f *Finder, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := f.call(ctx)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-callCtx.Done():
		var zero T
		return zero, callCtx.Err()
	}
}

func (f *Finder) list(ctx context.Context, l RecordLister, program string) ([]any, error) {
	return within(ctx, f, func(ctx context.Context) ([]any, error) {
		return l.ListRecords(ctx, program)
	})
}

// listing builds a strategy that scans a record listing for plaintexts.
func (f *Finder) listing(l RecordLister) func(context.Context, string, grammar, visitFunc) (bool, error) {
	return func(ctx context.Context, program string, g grammar, visit visitFunc) (bool, error) {
		recs, err := f.list(ctx, l, program)
		if err != nil {
			return false, err
		}
		for i, rec := range recs {
			if isSpent(rec) {
				continue
			}
			text, ok := extractPlaintext(rec, g)
			if !ok {
				f.logger.Debug("record has no plaintext", "kind", g.name, "index", i)
				continue
			}
			if visit(text) {
				return true, nil
			}
		}
		return false, nil
	}
}

// decrypting scans ciphertext-only records, decrypting one at a time so the
// wallet is prompted no more often than needed. Records that already carry a
// plaintext are used without decrypting.
func (f *Finder) decrypting(ctx context.Context, program string, g grammar, visit visitFunc) (bool, error) {
	recs, err := f.list(ctx, f.caps.CiphertextRecords, program)
	if err != nil {
		return false, err
	}
	for i, rec := range recs {
		if isSpent(rec) {
			continue
		}
		if text, ok := extractPlaintext(rec, g); ok {
			if visit(text) {
				return true, nil
			}
			continue
		}
		ct := ciphertextOf(rec)
		if ct == "" || f.caps.Decrypter == nil {
			continue
		}
		text, err := f.decrypt(ctx, ct)
		if err != nil {
			f.logger.Debug("record decrypt failed", "kind", g.name, "index", i, "err", err)
			continue
		}
		if !g.marker.MatchString(text) {
			continue
		}
		if visit(text) {
			return true, nil
		}
	}
	return false, nil
}

func (f *Finder) decrypt(ctx context.Context, ciphertext string) (string, error) {
	return within(ctx, f, func(ctx context.Context) (string, error) {
		return f.caps.Decrypter.Decrypt(ctx, ciphertext)
	})
}
