// Package quote provides the HTTP handlers for market snapshots, AMM quotes
// and transaction-input assembly.
//
// Quotes are computed against the latest cached snapshot and are estimates
// only; the market program recomputes every trade. All ratios use
// shopspring/decimal, never float64.
package quote

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veilmarkets/market-engine/internal/amm"
	"github.com/veilmarkets/market-engine/internal/contract"
	"github.com/veilmarkets/market-engine/internal/limits"
	"github.com/veilmarkets/market-engine/internal/metrics"
	"github.com/veilmarkets/market-engine/internal/model"
	"github.com/veilmarkets/market-engine/internal/records"
	"github.com/veilmarkets/market-engine/internal/store"
	"github.com/veilmarkets/market-engine/internal/txinput"
)

// DefaultSlippagePct is applied when a request carries no slippage_pct.
var DefaultSlippagePct = decimal.NewFromInt(1)

// maxHistory caps GET .../history.
const maxHistory = 1000

// Service serves quotes from cached market snapshots. It holds no mutable
// state of its own; concurrent requests are independent.
type Service struct {
	store   store.Store
	mm      *amm.MarketMaker
	guard   *limits.TradeGuard
	finder  *records.Finder // nil when no wallet bridge is configured
	builder *txinput.Builder
	logger  *slog.Logger
}

// NewService creates a quote service. finder may be nil, in which case buys
// fall back to the public transition and record-backed operations are
// unavailable.
func NewService(st store.Store, mm *amm.MarketMaker, guard *limits.TradeGuard, finder *records.Finder, builder *txinput.Builder, logger *slog.Logger) *Service {
	if mm == nil {
		mm = amm.Default
	}
	if guard == nil {
		guard = limits.NewTradeGuard(decimal.Zero, decimal.Zero)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		mm:      mm,
		guard:   guard,
		finder:  finder,
		builder: builder,
		logger:  logger,
	}
}

// --- Request/Response types ---

// BuyRequest is the JSON body for quote/buy and tx/buy.
type BuyRequest struct {
	Outcome     int              `json:"outcome"`
	AmountIn    uint64           `json:"amount_in"`
	SlippagePct *decimal.Decimal `json:"slippage_pct,omitempty"`
}

// SellRequest is the JSON body for quote/sell and tx/sell. SharesHeld is
// only read by quote/sell; tx/sell uses the discovered record's quantity.
type SellRequest struct {
	Outcome       int              `json:"outcome"`
	TokensDesired uint64           `json:"tokens_desired"`
	SharesHeld    uint64           `json:"shares_held,omitempty"`
	SlippagePct   *decimal.Decimal `json:"slippage_pct,omitempty"`
}

// LiquidityRequest is the JSON body for the liquidity endpoints. Amount is
// read when adding, LPShares when removing.
type LiquidityRequest struct {
	Amount      uint64           `json:"amount,omitempty"`
	LPShares    uint64           `json:"lp_shares,omitempty"`
	SlippagePct *decimal.Decimal `json:"slippage_pct,omitempty"`
}

// OutcomeRequest is the JSON body for tx/redeem, tx/resolve and tx/dispute.
type OutcomeRequest struct {
	Outcome int    `json:"outcome"`
	Bond    uint64 `json:"bond,omitempty"`
}

// BuyQuote is returned from quote/buy.
type BuyQuote struct {
	QuoteID  string            `json:"quote_id"`
	MarketID string            `json:"market_id"`
	Prices   []decimal.Decimal `json:"prices"`
	amm.BuyPreview
}

// SellQuote is returned from quote/sell.
type SellQuote struct {
	QuoteID  string            `json:"quote_id"`
	MarketID string            `json:"market_id"`
	Prices   []decimal.Decimal `json:"prices"`
	amm.SellPreview
}

// LiquidityQuote is returned from quote/liquidity/add and .../remove.
type LiquidityQuote struct {
	QuoteID       string `json:"quote_id"`
	MarketID      string `json:"market_id"`
	TotalLPShares uint64 `json:"total_lp_shares"`
	amm.LiquidityPreview
}

// TxResponse pairs a quote with the transaction built from it.
type TxResponse struct {
	Quote       any                  `json:"quote,omitempty"`
	Transaction *txinput.Transaction `json:"transaction"`
}

// --- Market handlers ---

// ListMarkets handles GET /api/v1/markets
// Returns every cached market with implied prices, optionally filtered by
// ?status=<status>.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		s.logger.Error("list markets failed", "err", err)
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}

	status := r.URL.Query().Get("status")
	views := make([]model.MarketView, 0, len(markets))
	for _, m := range markets {
		if status != "" && m.Status != status {
			continue
		}
		views = append(views, model.NewMarketView(m))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMarket(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, model.NewMarketView(*m))
}

// GetMarketHistory handles GET /api/v1/markets/{marketID}/history
// Returns recorded price points, oldest first. ?limit=N keeps the last N.
func (s *Service) GetMarketHistory(w http.ResponseWriter, r *http.Request) {
	id, err := contract.ParseMarketID(chi.URLParam(r, "marketID"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit := maxHistory
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistory)
	}

	points, err := s.store.GetPriceHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("price history failed", "market_id", id, "err", err)
		writeError(w, "failed to get market history", http.StatusInternalServerError)
		return
	}
	if points == nil {
		points = []model.PricePoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

// --- Quote handlers ---

// QuoteBuy handles POST /api/v1/markets/{marketID}/quote/buy
func (s *Service) QuoteBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := s.tradableMarket(w, r)
	if !ok {
		return
	}
	q, ok := s.buyQuote(w, m, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// QuoteSell handles POST /api/v1/markets/{marketID}/quote/sell
func (s *Service) QuoteSell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := s.tradableMarket(w, r)
	if !ok {
		return
	}
	q, ok := s.sellQuote(w, m, req, req.SharesHeld)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// QuoteAddLiquidity handles POST /api/v1/markets/{marketID}/quote/liquidity/add
func (s *Service) QuoteAddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := s.tradableMarket(w, r)
	if !ok {
		return
	}
	q, ok := s.addLiquidityQuote(w, m, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// QuoteRemoveLiquidity handles POST /api/v1/markets/{marketID}/quote/liquidity/remove
func (s *Service) QuoteRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := s.loadMarket(w, r)
	if !ok {
		return
	}
	q, ok := s.removeLiquidityQuote(w, m, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// --- Transaction handlers ---

// TxBuy handles POST /api/v1/markets/{marketID}/tx/buy
// Quotes the buy, then looks for a credits record covering amount_in. With a
// record the private transition is built; without one the public transition
// is built instead.
func (s *Service) TxBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := s.tradableMarket(w, r)
	if !ok {
		return
	}
	q, ok := s.buyQuote(w, m, req)
	if !ok {
		return
	}

	params := txinput.BuyParams{
		MarketID:     m.ID,
		Outcome:      req.Outcome,
		AmountIn:     req.AmountIn,
		MinSharesOut: q.MinSharesOut,
	}
	if s.finder != nil {
		if rec, found := s.finder.FindCreditsRecord(r.Context(), req.AmountIn); found {
			params.Record = &rec
		}
	}
	if params.Record == nil {
		s.logger.Info("no credits record found, using public balance",
			"market_id", m.ID, "amount_in", req.AmountIn)
	}

	tx, err := s.builder.Buy(params)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logTx(tx, m.ID)
	writeJSON(w, http.StatusOK, TxResponse{Quote: q, Transaction: tx})
}

// TxSell handles POST /api/v1/markets/{marketID}/tx/sell
// Finds a share record that covers the sale and signs a share budget widened
// by the slippage tolerance.
func (s *Service) TxSell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := s.tradableMarket(w, r)
	if !ok {
		return
	}
	if !m.Reserves.ValidOutcome(req.Outcome) {
		writeError(w, "outcome out of range for this market", http.StatusBadRequest)
		return
	}
	if !checkSlippage(w, req.SlippagePct) {
		return
	}
	needed := s.mm.SellSharesNeeded(m.Reserves, req.Outcome, req.TokensDesired)
	if needed == 0 {
		writeError(w, "tokens_desired cannot be paid out by this pool", http.StatusBadRequest)
		return
	}
	if s.finder == nil {
		writeError(w, "no wallet bridge configured", http.StatusServiceUnavailable)
		return
	}
	rec, found := s.finder.FindShareRecord(r.Context(), records.ShareFilter{
		MarketID:    m.ID,
		Outcome:     req.Outcome,
		MinQuantity: needed,
	})
	if !found {
		writeError(w, "no share record covers "+strconv.FormatUint(needed, 10)+" shares", http.StatusUnprocessableEntity)
		return
	}

	q, ok := s.sellQuote(w, m, req, rec.Quantity)
	if !ok {
		return
	}
	tx, err := s.builder.Sell(txinput.SellParams{
		MarketID:      m.ID,
		Outcome:       req.Outcome,
		TokensDesired: q.TokensDesired,
		MaxSharesUsed: txinput.MaxSharesWithSlippage(q.SharesNeeded, rec.Quantity, slippage(req.SlippagePct)),
		Record:        rec,
	})
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logTx(tx, m.ID)
	writeJSON(w, http.StatusOK, TxResponse{Quote: q, Transaction: tx})
}

// TxAddLiquidity handles POST /api/v1/markets/{marketID}/tx/liquidity/add
// Deposits have no public variant, so a credits record is required.
func (s *Service) TxAddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := s.tradableMarket(w, r)
	if !ok {
		return
	}
	q, ok := s.addLiquidityQuote(w, m, req)
	if !ok {
		return
	}
	if s.finder == nil {
		writeError(w, "no wallet bridge configured", http.StatusServiceUnavailable)
		return
	}
	rec, found := s.finder.FindCreditsRecord(r.Context(), req.Amount)
	if !found {
		writeError(w, "no credits record covers "+strconv.FormatUint(req.Amount, 10), http.StatusUnprocessableEntity)
		return
	}

	minLP := amm.MinSharesOut(q.LPSharesOut, slippage(req.SlippagePct))
	tx, err := s.builder.AddLiquidity(m.ID, req.Amount, minLP, rec)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logTx(tx, m.ID)
	writeJSON(w, http.StatusOK, TxResponse{Quote: q, Transaction: tx})
}

// TxRemoveLiquidity handles POST /api/v1/markets/{marketID}/tx/liquidity/remove
func (s *Service) TxRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := s.loadMarket(w, r)
	if !ok {
		return
	}
	q, ok := s.removeLiquidityQuote(w, m, req)
	if !ok {
		return
	}

	minTokens := amm.MinSharesOut(q.TokensOut, slippage(req.SlippagePct))
	tx, err := s.builder.RemoveLiquidity(m.ID, req.LPShares, minTokens)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logTx(tx, m.ID)
	writeJSON(w, http.StatusOK, TxResponse{Quote: q, Transaction: tx})
}

// TxRedeem handles POST /api/v1/markets/{marketID}/tx/redeem
// The market must be resolved; the outcome defaults to the winning one.
func (s *Service) TxRedeem(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := s.loadMarket(w, r)
	if !ok {
		return
	}
	if m.Status != model.StatusResolved {
		writeError(w, "market is not resolved", http.StatusConflict)
		return
	}
	if req.Outcome == 0 {
		req.Outcome = m.WinningOutcome
	}
	if req.Outcome != m.WinningOutcome {
		writeError(w, "only the winning outcome can be redeemed", http.StatusBadRequest)
		return
	}
	if s.finder == nil {
		writeError(w, "no wallet bridge configured", http.StatusServiceUnavailable)
		return
	}
	rec, found := s.finder.FindShareRecord(r.Context(), records.ShareFilter{MarketID: m.ID, Outcome: req.Outcome})
	if !found {
		writeError(w, "no winning share record found", http.StatusUnprocessableEntity)
		return
	}

	tx, err := s.builder.Redeem(m.ID, req.Outcome, rec)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logTx(tx, m.ID)
	writeJSON(w, http.StatusOK, TxResponse{Transaction: tx})
}

// TxResolve handles POST /api/v1/markets/{marketID}/tx/resolve
// Only closed markets can be resolved.
func (s *Service) TxResolve(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := s.loadMarket(w, r)
	if !ok {
		return
	}
	if m.Status != model.StatusClosed {
		writeError(w, "market is not closed", http.StatusConflict)
		return
	}
	if !m.Reserves.ValidOutcome(req.Outcome) {
		writeError(w, "outcome out of range for this market", http.StatusBadRequest)
		return
	}

	tx, err := s.builder.Resolve(m.ID, req.Outcome)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logTx(tx, m.ID)
	writeJSON(w, http.StatusOK, TxResponse{Transaction: tx})
}

// TxDispute handles POST /api/v1/markets/{marketID}/tx/dispute
// Only resolved markets can be disputed, and only toward another outcome.
func (s *Service) TxDispute(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := s.loadMarket(w, r)
	if !ok {
		return
	}
	if m.Status != model.StatusResolved {
		writeError(w, "market is not resolved", http.StatusConflict)
		return
	}
	if !m.Reserves.ValidOutcome(req.Outcome) || req.Outcome == m.WinningOutcome {
		writeError(w, "proposed outcome must be a different valid outcome", http.StatusBadRequest)
		return
	}

	tx, err := s.builder.Dispute(m.ID, req.Outcome, req.Bond)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logTx(tx, m.ID)
	writeJSON(w, http.StatusOK, TxResponse{Transaction: tx})
}

// --- Internals ---

// loadMarket resolves {marketID} to a snapshot, writing 400/404 on failure.
func (s *Service) loadMarket(w http.ResponseWriter, r *http.Request) (*model.Market, bool) {
	id, err := contract.ParseMarketID(chi.URLParam(r, "marketID"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	m, err := s.store.GetMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "market not found", http.StatusNotFound)
		} else {
			s.logger.Error("load market failed", "market_id", id, "err", err)
			writeError(w, "failed to load market", http.StatusInternalServerError)
		}
		return nil, false
	}
	return m, true
}

// tradableMarket is loadMarket plus the open-status gate.
func (s *Service) tradableMarket(w http.ResponseWriter, r *http.Request) (*model.Market, bool) {
	m, ok := s.loadMarket(w, r)
	if !ok {
		return nil, false
	}
	if !m.Tradable() {
		writeError(w, "market is not open for trading", http.StatusConflict)
		return nil, false
	}
	return m, true
}

func (s *Service) buyQuote(w http.ResponseWriter, m *model.Market, req BuyRequest) (*BuyQuote, bool) {
	if !checkSlippage(w, req.SlippagePct) {
		return nil, false
	}
	if !m.Reserves.ValidOutcome(req.Outcome) {
		writeError(w, "outcome out of range for this market", http.StatusBadRequest)
		return nil, false
	}
	if req.AmountIn == 0 {
		writeError(w, "amount_in must be positive", http.StatusBadRequest)
		return nil, false
	}

	start := time.Now()
	p := s.mm.PreviewBuy(m.Reserves, req.Outcome, req.AmountIn, slippage(req.SlippagePct))
	observe("buy", start)

	if err := s.guard.CheckBuy(m.Reserves, p); err != nil {
		s.reject(w, err)
		return nil, false
	}
	return &BuyQuote{
		QuoteID:    uuid.NewString(),
		MarketID:   m.ID,
		Prices:     amm.Prices(m.Reserves),
		BuyPreview: p,
	}, true
}

func (s *Service) sellQuote(w http.ResponseWriter, m *model.Market, req SellRequest, sharesHeld uint64) (*SellQuote, bool) {
	if !checkSlippage(w, req.SlippagePct) {
		return nil, false
	}
	if !m.Reserves.ValidOutcome(req.Outcome) {
		writeError(w, "outcome out of range for this market", http.StatusBadRequest)
		return nil, false
	}
	if req.TokensDesired == 0 {
		writeError(w, "tokens_desired must be positive", http.StatusBadRequest)
		return nil, false
	}

	start := time.Now()
	p := s.mm.PreviewSell(m.Reserves, req.Outcome, req.TokensDesired, sharesHeld, slippage(req.SlippagePct))
	observe("sell", start)

	if p.SharesNeeded == 0 {
		writeError(w, "tokens_desired cannot be paid out by this pool", http.StatusBadRequest)
		return nil, false
	}
	if err := s.guard.CheckSell(m.Reserves, p); err != nil {
		s.reject(w, err)
		return nil, false
	}
	return &SellQuote{
		QuoteID:     uuid.NewString(),
		MarketID:    m.ID,
		Prices:      amm.Prices(m.Reserves),
		SellPreview: p,
	}, true
}

func (s *Service) addLiquidityQuote(w http.ResponseWriter, m *model.Market, req LiquidityRequest) (*LiquidityQuote, bool) {
	if !checkSlippage(w, req.SlippagePct) {
		return nil, false
	}
	if req.Amount == 0 {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return nil, false
	}

	start := time.Now()
	p := amm.PreviewAddLiquidity(m.Reserves, m.TotalLPShares, req.Amount)
	observe("add_liquidity", start)

	if p.LPSharesOut == 0 {
		writeError(w, "amount too small to mint LP shares", http.StatusBadRequest)
		return nil, false
	}
	if err := s.guard.CheckLiquidity(m.TotalLPShares, p); err != nil {
		s.reject(w, err)
		return nil, false
	}
	return &LiquidityQuote{
		QuoteID:          uuid.NewString(),
		MarketID:         m.ID,
		TotalLPShares:    m.TotalLPShares,
		LiquidityPreview: p,
	}, true
}

func (s *Service) removeLiquidityQuote(w http.ResponseWriter, m *model.Market, req LiquidityRequest) (*LiquidityQuote, bool) {
	if !checkSlippage(w, req.SlippagePct) {
		return nil, false
	}
	if req.LPShares == 0 {
		writeError(w, "lp_shares must be positive", http.StatusBadRequest)
		return nil, false
	}
	if req.LPShares > m.TotalLPShares {
		writeError(w, "lp_shares exceeds pool supply", http.StatusBadRequest)
		return nil, false
	}

	start := time.Now()
	p := amm.PreviewRemoveLiquidity(m.Reserves, m.TotalLPShares, req.LPShares)
	observe("remove_liquidity", start)

	return &LiquidityQuote{
		QuoteID:          uuid.NewString(),
		MarketID:         m.ID,
		TotalLPShares:    m.TotalLPShares,
		LiquidityPreview: p,
	}, true
}

// reject writes a trade guard rejection and counts it by rule.
func (s *Service) reject(w http.ResponseWriter, err error) {
	rule := "unknown"
	switch {
	case errors.Is(err, limits.ErrPriceImpactExceeded):
		rule = "price_impact"
	case errors.Is(err, limits.ErrPoolShareExceeded):
		rule = "pool_share"
	}
	metrics.TradeGuardRejections.WithLabelValues(rule).Inc()
	writeError(w, err.Error(), http.StatusConflict)
}

// logTx never logs inputs: private variants carry record plaintext.
func (s *Service) logTx(tx *txinput.Transaction, marketID string) {
	s.logger.Info("transaction built",
		"tx_id", tx.ID,
		"market_id", marketID,
		"function", tx.Function,
		"private", tx.Private,
	)
}

func observe(kind string, start time.Time) {
	metrics.QuotesTotal.WithLabelValues(kind).Inc()
	metrics.QuoteLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// checkSlippage rejects a tolerance outside [0, 100) percent.
func checkSlippage(w http.ResponseWriter, p *decimal.Decimal) bool {
	if p != nil && !amm.ValidTolerance(*p) {
		writeError(w, "slippage_pct must be at least 0 and below 100", http.StatusBadRequest)
		return false
	}
	return true
}

func slippage(p *decimal.Decimal) decimal.Decimal {
	if p == nil {
		return DefaultSlippagePct
	}
	return *p
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
