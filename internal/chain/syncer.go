package chain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/veilmarkets/market-engine/internal/amm"
	"github.com/veilmarkets/market-engine/internal/metrics"
	"github.com/veilmarkets/market-engine/internal/model"
	"github.com/veilmarkets/market-engine/internal/store"
)

// MarketSource fetches a fresh market snapshot.
type MarketSource interface {
	FetchMarket(ctx context.Context, id string) (*model.Market, error)
}

// maxConcurrentFetches bounds parallel node requests per refresh.
const maxConcurrentFetches = 4

// Syncer periodically refreshes market snapshots into a store. A failed
// fetch leaves the previous snapshot in place.
type Syncer struct {
	src      MarketSource
	st       store.Store
	ids      []string
	interval time.Duration
	logger   *slog.Logger

	// OnUpdate, if set, is called after a snapshot whose reserves or status
	// changed has been stored. It may be called concurrently.
	OnUpdate func(model.Market)

	mu   sync.Mutex
	last map[string]model.Market
}

// NewSyncer creates a syncer for the given market ids.
func NewSyncer(src MarketSource, st store.Store, ids []string, interval time.Duration, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		src:      src,
		st:       st,
		ids:      ids,
		interval: interval,
		logger:   logger,
		last:     make(map[string]model.Market),
	}
}

// Run refreshes immediately and then every interval until ctx is done.
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.Info("chain syncer started", "markets", len(s.ids), "interval", s.interval)
	s.SyncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("chain syncer stopped")
			return nil
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce refreshes every market once and returns how many were updated.
// Per-market failures are logged and counted, not returned.
func (s *Syncer) SyncOnce(ctx context.Context) int {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		updated int
	)
	g.SetLimit(maxConcurrentFetches)

	for _, id := range s.ids {
		g.Go(func() error {
			changed, err := s.syncMarket(ctx, id)
			if err != nil {
				metrics.ChainSyncs.WithLabelValues("error").Inc()
				s.logger.Warn("market refresh failed", "market_id", id, "err", err)
				return nil
			}
			result := "unchanged"
			if changed {
				result = "updated"
				mu.Lock()
				updated++
				mu.Unlock()
			}
			metrics.ChainSyncs.WithLabelValues(result).Inc()
			return nil
		})
	}
	g.Wait()

	s.refreshActiveGauge()
	return updated
}

func (s *Syncer) syncMarket(ctx context.Context, id string) (bool, error) {
	m, err := s.src.FetchMarket(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.st.UpsertMarket(ctx, m); err != nil {
		return false, err
	}

	s.mu.Lock()
	prev, seen := s.last[m.ID]
	s.last[m.ID] = *m
	s.mu.Unlock()

	if seen && prev.Reserves == m.Reserves && prev.Status == m.Status {
		return false, nil
	}

	point := &model.PricePoint{
		ID:         uuid.NewString(),
		MarketID:   m.ID,
		Reserves:   m.Reserves,
		Prices:     amm.Prices(m.Reserves),
		ObservedAt: m.FetchedAt,
	}
	if err := s.st.AppendPricePoint(ctx, point); err != nil {
		s.logger.Warn("price point not recorded", "market_id", m.ID, "err", err)
	}
	if s.OnUpdate != nil {
		s.OnUpdate(*m)
	}
	return true, nil
}

func (s *Syncer) refreshActiveGauge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := 0
	for _, m := range s.last {
		if m.Tradable() {
			active++
		}
	}
	metrics.ActiveMarkets.Set(float64(active))
}
