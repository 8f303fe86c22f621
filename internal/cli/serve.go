package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/veilmarkets/market-engine/internal/amm"
	"github.com/veilmarkets/market-engine/internal/chain"
	"github.com/veilmarkets/market-engine/internal/config"
	"github.com/veilmarkets/market-engine/internal/limits"
	"github.com/veilmarkets/market-engine/internal/logging"
	"github.com/veilmarkets/market-engine/internal/quote"
	"github.com/veilmarkets/market-engine/internal/records"
	"github.com/veilmarkets/market-engine/internal/store"
	"github.com/veilmarkets/market-engine/internal/txinput"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the market engine HTTP server",
	Long: `Start the market engine, which provides:
- market snapshots and price history
- buy, sell and liquidity quotes
- transaction inputs funded by discovered wallet records
- a WebSocket feed of refreshed markets
- Prometheus metrics and a health check`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	mm, err := amm.NewMarketMaker(cfg.Fees)
	if err != nil {
		return err
	}
	maxImpact, maxShare, err := cfg.Limits.Parse()
	if err != nil {
		return err
	}

	hub := quote.NewWSHub(logger)
	svc := quote.NewService(st, mm, limits.NewTradeGuard(maxImpact, maxShare), newFinder(cfg, logger),
		txinput.NewBuilder(cfg.Chain.MarketProgram, cfg.Chain.NetworkFee), logger)

	requestTimeout := requestTimeoutFor(cfg)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      newRouter(svc, hub, requestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })

	if len(cfg.Chain.MarketIDs) > 0 {
		syncer := newSyncer(cfg, st, logger)
		syncer.OnUpdate = hub.BroadcastMarket
		g.Go(func() error { return syncer.Run(gctx) })
	} else {
		logger.Warn("chain.market_ids not set, market snapshots will not be refreshed")
	}

	g.Go(func() error {
		logger.Info("market-engine listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down market-engine")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("market-engine stopped")
	return nil
}

// openStore selects Postgres when database.url is set, optionally fronted by
// a Redis cache, and the in-memory store otherwise. The returned func
// releases every connection.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.Database.URL == "" {
		if cfg.Redis.URL != "" {
			logger.Warn("redis.url ignored without database.url")
		}
		logger.Warn("database.url not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), func() {}, nil
	}

	var cleanup []func()
	closeAll := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	cleanup = append(cleanup, pool.Close)

	pg := store.NewPostgresStore(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("connected to PostgreSQL")

	var st store.Store = pg
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("invalid redis.url: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.Redis.TTL)
		logger.Info("Redis cache enabled", "ttl", cfg.Redis.TTL)
	}
	return st, closeAll, nil
}

// newFinder returns nil when no wallet bridge is configured.
func newFinder(cfg *config.Config, logger *slog.Logger) *records.Finder {
	if cfg.Wallet.Endpoint == "" {
		logger.Warn("wallet.endpoint not set, buys will use public balances")
		return nil
	}
	wallet := records.NewHTTPWallet(cfg.Wallet.Endpoint, cfg.Wallet.CallTimeout)
	return records.NewFinder(wallet.Capabilities(),
		records.WithCallTimeout(cfg.Wallet.CallTimeout),
		records.WithLogger(logger),
		records.WithCreditsProgram(cfg.Chain.CreditsProgram),
		records.WithMarketProgram(cfg.Chain.MarketProgram),
	)
}

func newSyncer(cfg *config.Config, st store.Store, logger *slog.Logger) *chain.Syncer {
	client := chain.NewClient(cfg.Chain.Endpoint, cfg.Chain.MarketProgram, cfg.Chain.RequestTimeout)
	return chain.NewSyncer(client, st, cfg.Chain.MarketIDs, cfg.Chain.PollInterval, logger)
}

// requestTimeoutFor leaves room for a full discovery cascade, which makes up
// to four bounded wallet calls.
func requestTimeoutFor(cfg *config.Config) time.Duration {
	return max(30*time.Second, 4*cfg.Wallet.CallTimeout+10*time.Second)
}
