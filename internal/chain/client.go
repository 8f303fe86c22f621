// Package chain reads market state from a chain node's REST API.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/veilmarkets/market-engine/internal/contract"
	"github.com/veilmarkets/market-engine/internal/model"
)

// Mapping names of the market program.
const (
	MappingMarkets = "markets"
	MappingPools   = "amm_pools"
)

// ErrMarketNotFound is returned when the program has no market with the id.
var ErrMarketNotFound = errors.New("chain: market not found")

// Client queries program mappings over HTTP:
//
//	GET {endpoint}/program/{program}/mapping/{mapping}/{key}
//
// The node answers with the value literal as a JSON string, or null when the
// key is absent.
type Client struct {
	endpoint   string
	program    string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a chain client for program. timeout bounds each request;
// zero means 10s.
func NewClient(endpoint, program string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		program:    program,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Program returns the market program id this client reads.
func (c *Client) Program() string { return c.program }

// Mapping returns the raw value stored under key, and false if absent.
func (c *Client) Mapping(ctx context.Context, mapping, key string) (string, bool, error) {
	u := fmt.Sprintf("%s/program/%s/mapping/%s/%s",
		c.endpoint, url.PathEscape(c.program), url.PathEscape(mapping), url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", false, fmt.Errorf("build mapping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("query node: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("node returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var value *string
	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		return "", false, fmt.Errorf("decode mapping %s[%s]: %w", mapping, key, err)
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

// FetchMarket reads a market and its pool and assembles a snapshot.
func (c *Client) FetchMarket(ctx context.Context, id string) (*model.Market, error) {
	id, err := contract.ParseMarketID(id)
	if err != nil {
		return nil, err
	}

	raw, ok, err := c.Mapping(ctx, MappingMarkets, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	info, err := contract.ParseMarket(raw)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", id, err)
	}

	raw, ok, err = c.Mapping(ctx, MappingPools, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s has no pool", ErrMarketNotFound, id)
	}
	pool, err := contract.ParsePool(raw, info.NumOutcomes)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", id, err)
	}

	return &model.Market{
		ID:             id,
		ProgramID:      c.program,
		QuestionHash:   info.QuestionHash,
		Creator:        info.Creator,
		Reserves:       pool.Reserves,
		TotalLPShares:  pool.TotalLPShares,
		TotalVolume:    pool.TotalVolume,
		Status:         contract.StatusName(info.Status),
		WinningOutcome: info.WinningOutcome,
		Deadline:       info.Deadline,
		FetchedAt:      c.now().UTC(),
	}, nil
}
