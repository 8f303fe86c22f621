// Package store defines the persistence interface for market snapshots.
// Implementations include PostgreSQL (durable), Redis (read-through cache),
// and in-memory (for testing and chain-only deployments).
package store

import (
	"context"
	"errors"

	"github.com/veilmarkets/market-engine/internal/model"
)

// ErrNotFound is returned when a market has no stored snapshot.
var ErrNotFound = errors.New("store: market not found")

// Store is the persistence interface. The chain is the source of truth;
// everything stored here is a cache of it plus a derived price history.
type Store interface {
	// --- Market snapshots ---

	// UpsertMarket inserts or replaces a market snapshot.
	UpsertMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market snapshot by its id.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns every stored snapshot, newest fetch first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// --- Price history (append-only) ---

	// AppendPricePoint records an implied-price observation.
	AppendPricePoint(ctx context.Context, point *model.PricePoint) error

	// GetPriceHistory returns up to limit observations for a market, oldest
	// first. limit <= 0 returns all of them.
	GetPriceHistory(ctx context.Context, marketID string, limit int) ([]model.PricePoint, error)
}
