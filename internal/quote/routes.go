package quote

import "github.com/go-chi/chi/v5"

// Routes registers the market, quote and transaction endpoints on r, which
// is expected to be mounted at /api/v1.
func (s *Service) Routes(r chi.Router) {
	r.Get("/markets", s.ListMarkets)

	r.Route("/markets/{marketID}", func(r chi.Router) {
		r.Get("/", s.GetMarket)
		r.Get("/history", s.GetMarketHistory)

		r.Post("/quote/buy", s.QuoteBuy)
		r.Post("/quote/sell", s.QuoteSell)
		r.Post("/quote/liquidity/add", s.QuoteAddLiquidity)
		r.Post("/quote/liquidity/remove", s.QuoteRemoveLiquidity)

		r.Post("/tx/buy", s.TxBuy)
		r.Post("/tx/sell", s.TxSell)
		r.Post("/tx/liquidity/add", s.TxAddLiquidity)
		r.Post("/tx/liquidity/remove", s.TxRemoveLiquidity)
		r.Post("/tx/redeem", s.TxRedeem)
		r.Post("/tx/resolve", s.TxResolve)
		r.Post("/tx/dispute", s.TxDispute)
	})
}
