package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmarkets/market-engine/internal/amm"
	"github.com/veilmarkets/market-engine/internal/records"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, records.DefaultMarketProgram, cfg.Chain.MarketProgram)
	assert.Equal(t, records.DefaultCreditsProgram, cfg.Chain.CreditsProgram)
	assert.Equal(t, 15*time.Second, cfg.Chain.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL)
	assert.Equal(t, amm.DefaultFees, cfg.Fees)
	assert.Empty(t, cfg.Chain.MarketIDs)
	assert.Empty(t, cfg.Wallet.Endpoint)

	impact, share, err := cfg.Limits.Parse()
	require.NoError(t, err)
	assert.True(t, impact.IsZero())
	assert.True(t, share.IsZero())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "engine.yaml", `
server:
  port: 9090
log:
  level: debug
  format: text
chain:
  endpoint: http://node:3030
  market_ids: ["1field", "2field"]
  poll_interval: 5s
fees:
  protocol_bps: 50
  creator_bps: 150
limits:
  max_price_impact: "7.5"
`)
	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, []string{"1field", "2field"}, cfg.Chain.MarketIDs)
	assert.Equal(t, 5*time.Second, cfg.Chain.PollInterval)
	assert.Equal(t, amm.FeeSchedule{ProtocolBps: 50, CreatorBps: 150}, cfg.Fees)

	impact, _, err := cfg.Limits.Parse()
	require.NoError(t, err)
	assert.True(t, impact.Equal(decimal.RequireFromString("7.5")))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VEIL_SERVER_PORT", "7070")
	t.Setenv("VEIL_CHAIN_ENDPOINT", "http://env-node")
	t.Setenv("VEIL_CHAIN_MARKET_IDS", "3field,4field")
	t.Setenv("VEIL_WALLET_CALL_TIMEOUT", "2s")

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "http://env-node", cfg.Chain.Endpoint)
	assert.Equal(t, []string{"3field", "4field"}, cfg.Chain.MarketIDs)
	assert.Equal(t, 2*time.Second, cfg.Wallet.CallTimeout)
}

func TestLoadDotEnv(t *testing.T) {
	// Registered so t.Setenv restores it after godotenv sets it.
	t.Setenv("VEIL_WALLET_ENDPOINT", "")
	os.Unsetenv("VEIL_WALLET_ENDPOINT")

	env := writeFile(t, "test.env", "VEIL_WALLET_ENDPOINT=http://wallet:9000\n")
	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "http://wallet:9000", cfg.Wallet.Endpoint)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080},
			Log:    LogConfig{Level: "info", Format: "json"},
			Redis:  RedisConfig{TTL: time.Second},
			Chain:  ChainConfig{PollInterval: time.Second, RequestTimeout: time.Second},
			Fees:   amm.DefaultFees,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, ErrInvalidPort},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, ErrInvalidPort},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, ErrInvalidLogFormat},
		{"markets without endpoint", func(c *Config) { c.Chain.MarketIDs = []string{"1field"} }, ErrMissingEndpoint},
		{"zero poll interval", func(c *Config) { c.Chain.PollInterval = 0 }, ErrInvalidInterval},
		{"negative wallet timeout", func(c *Config) { c.Wallet.CallTimeout = -time.Second }, ErrInvalidInterval},
		{"fees over 100%", func(c *Config) { c.Fees = amm.FeeSchedule{ProtocolBps: 9000, CreatorBps: 2000} }, ErrInvalidFees},
		{"negative limit", func(c *Config) { c.Limits.MaxPoolShare = "-1" }, ErrInvalidLimit},
		{"garbage limit", func(c *Config) { c.Limits.MaxPriceImpact = "lots" }, ErrInvalidLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.want)
		})
	}
}
