package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmarkets/market-engine/internal/amm"
	"github.com/veilmarkets/market-engine/internal/model"
	"github.com/veilmarkets/market-engine/internal/store"
)

func newNode(t *testing.T, values map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/program/veiled_markets.aleo/mapping/markets/500field" {
			http.Error(w, "node overloaded", http.StatusServiceUnavailable)
			return
		}
		v, ok := values[r.URL.Path]
		if !ok {
			io.WriteString(w, "null")
			return
		}
		io.WriteString(w, v)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const prefix = "/program/veiled_markets.aleo/mapping/"

func TestFetchMarket(t *testing.T) {
	srv := newNode(t, map[string]string{
		prefix + "markets/42field":   `"{\n  id: 42field,\n  creator: aleo1c,\n  question_hash: 77field.public,\n  num_outcomes: 2u8,\n  status: 1u8\n}"`,
		prefix + "amm_pools/42field": `"{ market_id: 42field, reserve_1: 1000000u128, reserve_2: 1000000u128, reserve_3: 0u128, reserve_4: 0u128, total_lp_shares: 2000000u128 }"`,
		prefix + "markets/43field":   `"{ id: 43field, num_outcomes: 2u8, status: 1u8 }"`,
	})
	c := NewClient(srv.URL+"/", "veiled_markets.aleo", 0)
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	m, err := c.FetchMarket(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42field", m.ID)
	assert.Equal(t, "veiled_markets.aleo", m.ProgramID)
	assert.Equal(t, "77field", m.QuestionHash)
	assert.Equal(t, amm.NewReserves(1_000_000, 1_000_000), m.Reserves)
	assert.Equal(t, uint64(2_000_000), m.TotalLPShares)
	assert.Equal(t, model.StatusOpen, m.Status)
	assert.Equal(t, fixed, m.FetchedAt)

	_, err = c.FetchMarket(context.Background(), "41field")
	assert.ErrorIs(t, err, ErrMarketNotFound)

	_, err = c.FetchMarket(context.Background(), "43field")
	assert.ErrorIs(t, err, ErrMarketNotFound, "market without a pool")

	_, err = c.FetchMarket(context.Background(), "500field")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	_, err = c.FetchMarket(context.Background(), "not-an-id")
	assert.Error(t, err)
}

// --- Syncer ---

type fakeSource struct {
	mu      sync.Mutex
	markets map[string]model.Market
	fail    map[string]bool
}

func (f *fakeSource) FetchMarket(_ context.Context, id string) (*model.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[id] {
		return nil, errors.New("node unreachable")
	}
	m, ok := f.markets[id]
	if !ok {
		return nil, ErrMarketNotFound
	}
	return &m, nil
}

func (f *fakeSource) set(m model.Market) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets[m.ID] = m
}

func snapshot(id string, r1, r2 uint64) model.Market {
	return model.Market{
		ID:        id,
		Reserves:  amm.NewReserves(r1, r2),
		Status:    model.StatusOpen,
		FetchedAt: time.Now().UTC(),
	}
}

func TestSyncOnce(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		markets: map[string]model.Market{
			"1field": snapshot("1field", 1_000_000, 1_000_000),
			"2field": snapshot("2field", 600_000, 400_000),
		},
		fail: map[string]bool{"3field": true},
	}
	st := store.NewMemoryStore()
	s := NewSyncer(src, st, []string{"1field", "2field", "3field"}, time.Minute,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	var mu sync.Mutex
	var published []string
	s.OnUpdate = func(m model.Market) {
		mu.Lock()
		published = append(published, m.ID)
		mu.Unlock()
	}

	assert.Equal(t, 2, s.SyncOnce(ctx))
	assert.ElementsMatch(t, []string{"1field", "2field"}, published)

	// Unchanged reserves store the snapshot but record no new price point.
	assert.Equal(t, 0, s.SyncOnce(ctx))
	hist, err := st.GetPriceHistory(ctx, "1field", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	src.set(snapshot("1field", 900_000, 1_100_000))
	assert.Equal(t, 1, s.SyncOnce(ctx))
	hist, err = st.GetPriceHistory(ctx, "1field", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[1].Prices[0].GreaterThan(hist[0].Prices[0]), "scarcer outcome should price higher")

	_, err = st.GetMarket(ctx, "3field")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncerRunStops(t *testing.T) {
	src := &fakeSource{markets: map[string]model.Market{"1field": snapshot("1field", 1, 1)}}
	s := NewSyncer(src, store.NewMemoryStore(), []string{"1field"}, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("syncer did not stop")
	}
}
