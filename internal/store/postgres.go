package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilmarkets/market-engine/internal/amm"
	"github.com/veilmarkets/market-engine/internal/model"
)

// PostgresStore implements Store on PostgreSQL. Micro-unit amounts are u128
// on chain, so they are stored as NUMERIC and exchanged as text.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS markets (
	id              TEXT PRIMARY KEY,
	program_id      TEXT NOT NULL,
	question_hash   TEXT NOT NULL DEFAULT '',
	creator         TEXT NOT NULL DEFAULT '',
	num_outcomes    SMALLINT NOT NULL,
	reserve_1       NUMERIC(39,0) NOT NULL,
	reserve_2       NUMERIC(39,0) NOT NULL,
	reserve_3       NUMERIC(39,0) NOT NULL,
	reserve_4       NUMERIC(39,0) NOT NULL,
	total_lp_shares NUMERIC(39,0) NOT NULL,
	total_volume    NUMERIC(39,0) NOT NULL,
	status          TEXT NOT NULL,
	winning_outcome SMALLINT NOT NULL DEFAULT 0,
	deadline        NUMERIC(20,0) NOT NULL DEFAULT 0,
	fetched_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS price_points (
	id           TEXT PRIMARY KEY,
	market_id    TEXT NOT NULL,
	num_outcomes SMALLINT NOT NULL,
	reserve_1    NUMERIC(39,0) NOT NULL,
	reserve_2    NUMERIC(39,0) NOT NULL,
	reserve_3    NUMERIC(39,0) NOT NULL,
	reserve_4    NUMERIC(39,0) NOT NULL,
	prices       JSONB NOT NULL,
	observed_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS price_points_market_observed ON price_points (market_id, observed_at);
`

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertMarket(ctx context.Context, m *model.Market) error {
	r := m.Reserves
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, program_id, question_hash, creator, num_outcomes,
		                      reserve_1, reserve_2, reserve_3, reserve_4,
		                      total_lp_shares, total_volume, status, winning_outcome, deadline, fetched_at)
		 VALUES ($1, $2, $3, $4, $5,
		         $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC,
		         $10::NUMERIC, $11::NUMERIC, $12, $13, $14::NUMERIC, $15)
		 ON CONFLICT (id) DO UPDATE SET
		     program_id = EXCLUDED.program_id,
		     question_hash = EXCLUDED.question_hash,
		     creator = EXCLUDED.creator,
		     num_outcomes = EXCLUDED.num_outcomes,
		     reserve_1 = EXCLUDED.reserve_1,
		     reserve_2 = EXCLUDED.reserve_2,
		     reserve_3 = EXCLUDED.reserve_3,
		     reserve_4 = EXCLUDED.reserve_4,
		     total_lp_shares = EXCLUDED.total_lp_shares,
		     total_volume = EXCLUDED.total_volume,
		     status = EXCLUDED.status,
		     winning_outcome = EXCLUDED.winning_outcome,
		     deadline = EXCLUDED.deadline,
		     fetched_at = EXCLUDED.fetched_at`,
		m.ID, m.ProgramID, m.QuestionHash, m.Creator, r.NumOutcomes,
		u(r.Reserve1), u(r.Reserve2), u(r.Reserve3), u(r.Reserve4),
		u(m.TotalLPShares), u(m.TotalVolume), m.Status, m.WinningOutcome, u(m.Deadline), m.FetchedAt,
	)
	return err
}

const marketColumns = `id, program_id, question_hash, creator, num_outcomes,
	reserve_1::TEXT, reserve_2::TEXT, reserve_3::TEXT, reserve_4::TEXT,
	total_lp_shares::TEXT, total_volume::TEXT, status, winning_outcome, deadline::TEXT, fetched_at`

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY fetched_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) AppendPricePoint(ctx context.Context, p *model.PricePoint) error {
	prices, err := json.Marshal(p.Prices)
	if err != nil {
		return fmt.Errorf("encode prices: %w", err)
	}
	r := p.Reserves
	_, err = s.pool.Exec(ctx,
		`INSERT INTO price_points (id, market_id, num_outcomes, reserve_1, reserve_2, reserve_3, reserve_4, prices, observed_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::JSONB, $9)`,
		p.ID, p.MarketID, r.NumOutcomes,
		u(r.Reserve1), u(r.Reserve2), u(r.Reserve3), u(r.Reserve4),
		string(prices), p.ObservedAt,
	)
	return err
}

func (s *PostgresStore) GetPriceHistory(ctx context.Context, marketID string, limit int) ([]model.PricePoint, error) {
	// LIMIT NULL means no limit.
	var lim any
	if limit > 0 {
		lim = limit
	}
	// Newest N, returned oldest first.
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, num_outcomes,
		        reserve_1::TEXT, reserve_2::TEXT, reserve_3::TEXT, reserve_4::TEXT,
		        prices::TEXT, observed_at
		 FROM (
		     SELECT * FROM price_points WHERE market_id = $1
		     ORDER BY observed_at DESC
		     LIMIT $2::BIGINT
		 ) recent
		 ORDER BY observed_at`, marketID, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var r1, r2, r3, r4, prices string
		if err := rows.Scan(&p.ID, &p.MarketID, &p.Reserves.NumOutcomes,
			&r1, &r2, &r3, &r4, &prices, &p.ObservedAt); err != nil {
			return nil, err
		}
		p.Reserves.Reserve1, p.Reserves.Reserve2 = parseU(r1), parseU(r2)
		p.Reserves.Reserve3, p.Reserves.Reserve4 = parseU(r3), parseU(r4)
		if err := json.Unmarshal([]byte(prices), &p.Prices); err != nil {
			return nil, fmt.Errorf("decode prices: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// scanMarket reads one markets row from pgx.Row or pgx.Rows.
func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	var r1, r2, r3, r4, lp, vol, deadline string
	if err := row.Scan(&m.ID, &m.ProgramID, &m.QuestionHash, &m.Creator, &m.Reserves.NumOutcomes,
		&r1, &r2, &r3, &r4, &lp, &vol, &m.Status, &m.WinningOutcome, &deadline, &m.FetchedAt); err != nil {
		return nil, err
	}
	m.Reserves = amm.Reserves{
		Reserve1:    parseU(r1),
		Reserve2:    parseU(r2),
		Reserve3:    parseU(r3),
		Reserve4:    parseU(r4),
		NumOutcomes: m.Reserves.NumOutcomes,
	}
	m.TotalLPShares = parseU(lp)
	m.TotalVolume = parseU(vol)
	m.Deadline = parseU(deadline)
	return &m, nil
}

func u(v uint64) string { return strconv.FormatUint(v, 10) }

// parseU reads a NUMERIC text column; values beyond uint64 saturate.
func parseU(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return ^uint64(0)
		}
		return 0
	}
	return v
}
