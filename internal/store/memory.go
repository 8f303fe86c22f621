package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/veilmarkets/market-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for tests and for
// deployments that re-read the chain on start instead of persisting.
type MemoryStore struct {
	mu      sync.RWMutex
	markets map[string]*model.Market
	history map[string][]model.PricePoint
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[string]*model.Market),
		history: make(map[string][]model.PricePoint),
	}
}

func (s *MemoryStore) UpsertMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *m
	s.markets[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool {
		if markets[i].FetchedAt.Equal(markets[j].FetchedAt) {
			return markets[i].ID < markets[j].ID
		}
		return markets[i].FetchedAt.After(markets[j].FetchedAt)
	})
	return markets, nil
}

func (s *MemoryStore) AppendPricePoint(_ context.Context, p *model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	cp.Prices = append(cp.Prices[:0:0], p.Prices...)
	s.history[p.MarketID] = append(s.history[p.MarketID], cp)
	return nil
}

func (s *MemoryStore) GetPriceHistory(_ context.Context, marketID string, limit int) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.history[marketID]
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	out := make([]model.PricePoint, len(points))
	copy(out, points)
	return out, nil
}
