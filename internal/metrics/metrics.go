// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QuotesTotal counts quotes served, partitioned by kind (buy, sell,
	// add_liquidity, remove_liquidity).
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veil_quotes_total",
		Help: "Total number of AMM quotes computed",
	}, []string{"kind"})

	// QuoteLatency is the quote computation latency.
	QuoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "veil_quote_latency_seconds",
		Help:    "AMM quote latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// ActiveMarkets tracks the number of markets in the active state.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "veil_active_markets",
		Help: "Number of markets currently accepting trades",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "veil_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veil_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "veil_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// TradeGuardRejections counts quotes rejected by the trade guard, by rule.
	TradeGuardRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veil_trade_guard_rejections_total",
		Help: "Quotes rejected by the trade guard",
	}, []string{"rule"})

	// RecordLookups counts record discovery attempts per strategy and result
	// (found, empty, error).
	RecordLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veil_record_lookups_total",
		Help: "Record discovery attempts by strategy and result",
	}, []string{"kind", "strategy", "result"})

	// RecordLookupDuration tracks end-to-end discovery latency.
	RecordLookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "veil_record_lookup_duration_seconds",
		Help:    "Record discovery latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})

	// ChainSyncs counts market snapshot refreshes by result.
	ChainSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veil_chain_syncs_total",
		Help: "Market snapshot refreshes from the chain",
	}, []string{"result"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Label by route pattern, not raw path, to keep cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over connections that pass
// through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
