package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilmarkets/market-engine/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache. Writes
// go to the primary store and refresh the cache; reads check Redis first then
// fall back to the primary. Redis errors never fail a request.
type CachedStore struct {
	primary Store
	rdb     redis.UniversalClient
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.UniversalClient, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) UpsertMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.UpsertMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	s.rdb.Del(ctx, listKey)
	return nil
}

func (s *CachedStore) AppendPricePoint(ctx context.Context, p *model.PricePoint) error {
	if err := s.primary.AppendPricePoint(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, historyKey(p.MarketID))
	return nil
}

// --- Read-through ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	data, err := s.rdb.Get(ctx, listKey).Bytes()
	if err == nil {
		var markets []model.Market
		if json.Unmarshal(data, &markets) == nil {
			return markets, nil
		}
	}

	markets, err := s.primary.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(markets); err == nil {
		s.rdb.Set(ctx, listKey, data, s.ttl)
	}
	return markets, nil
}

// GetPriceHistory caches only the full history; limited reads slice it.
func (s *CachedStore) GetPriceHistory(ctx context.Context, marketID string, limit int) ([]model.PricePoint, error) {
	var points []model.PricePoint
	data, err := s.rdb.Get(ctx, historyKey(marketID)).Bytes()
	if err != nil || json.Unmarshal(data, &points) != nil {
		points, err = s.primary.GetPriceHistory(ctx, marketID, 0)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(points); err == nil {
			s.rdb.Set(ctx, historyKey(marketID), data, s.ttl)
		}
	}
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points, nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

const listKey = "veil:markets"

func marketKey(id string) string  { return fmt.Sprintf("veil:market:%s", id) }
func historyKey(id string) string { return fmt.Sprintf("veil:history:%s", id) }
