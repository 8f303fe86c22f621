// Package config loads the market engine configuration from defaults, an
// optional file, a .env file and VEIL_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veilmarkets/market-engine/internal/amm"
)

var (
	ErrInvalidPort      = errors.New("config: server.port must be between 1 and 65535")
	ErrInvalidLogFormat = errors.New("config: log.format must be json or text")
	ErrMissingEndpoint  = errors.New("config: chain.endpoint is required when chain.market_ids is set")
	ErrInvalidInterval  = errors.New("config: durations must be positive")
	ErrInvalidFees      = errors.New("config: fees exceed 10000 bps")
	ErrInvalidLimit     = errors.New("config: limits must be non-negative decimals")
)

// Config is the complete engine configuration.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Log      LogConfig       `mapstructure:"log"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Chain    ChainConfig     `mapstructure:"chain"`
	Wallet   WalletConfig    `mapstructure:"wallet"`
	Fees     amm.FeeSchedule `mapstructure:"fees"`
	Limits   LimitsConfig    `mapstructure:"limits"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Addr returns the listen address for Port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig selects the Postgres store. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig enables the snapshot cache in front of Postgres.
type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

type ChainConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	MarketProgram  string        `mapstructure:"market_program"`
	CreditsProgram string        `mapstructure:"credits_program"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MarketIDs      []string      `mapstructure:"market_ids"`
	NetworkFee     uint64        `mapstructure:"network_fee"`
}

// WalletConfig points at a wallet bridge. An empty endpoint disables record
// discovery; buys then use the public transition.
type WalletConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// LimitsConfig holds trade guard limits as decimal strings, in percent.
// Zero disables a limit.
type LimitsConfig struct {
	MaxPriceImpact string `mapstructure:"max_price_impact"`
	MaxPoolShare   string `mapstructure:"max_pool_share"`
}

// Parse returns both limits as decimals.
func (l LimitsConfig) Parse() (maxPriceImpact, maxPoolShare decimal.Decimal, err error) {
	if maxPriceImpact, err = parseLimit(l.MaxPriceImpact); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("max_price_impact: %w", err)
	}
	if maxPoolShare, err = parseLimit(l.MaxPoolShare); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("max_pool_share: %w", err)
	}
	return maxPriceImpact, maxPoolShare, nil
}

func parseLimit(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || v.IsNegative() {
		return decimal.Zero, ErrInvalidLimit
	}
	return v, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return ErrInvalidLogFormat
	}
	if len(c.Chain.MarketIDs) > 0 && c.Chain.Endpoint == "" {
		return ErrMissingEndpoint
	}
	if c.Chain.PollInterval <= 0 || c.Chain.RequestTimeout <= 0 || c.Redis.TTL <= 0 {
		return ErrInvalidInterval
	}
	if c.Wallet.CallTimeout < 0 {
		return ErrInvalidInterval
	}
	if !c.Fees.Valid() {
		return ErrInvalidFees
	}
	if _, _, err := c.Limits.Parse(); err != nil {
		return err
	}
	return nil
}
