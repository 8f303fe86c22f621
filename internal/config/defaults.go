package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/veilmarkets/market-engine/internal/amm"
	"github.com/veilmarkets/market-engine/internal/records"
	"github.com/veilmarkets/market-engine/internal/txinput"
)

// setDefaults registers every key, so AutomaticEnv can override any of them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Empty URLs select the in-memory store and disable the cache.
	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", 30*time.Second)

	v.SetDefault("chain.endpoint", "")
	v.SetDefault("chain.market_program", records.DefaultMarketProgram)
	v.SetDefault("chain.credits_program", records.DefaultCreditsProgram)
	v.SetDefault("chain.poll_interval", 15*time.Second)
	v.SetDefault("chain.request_timeout", 10*time.Second)
	v.SetDefault("chain.market_ids", []string{})
	v.SetDefault("chain.network_fee", txinput.DefaultNetworkFee)

	v.SetDefault("wallet.endpoint", "")
	v.SetDefault("wallet.call_timeout", 30*time.Second)

	v.SetDefault("fees.protocol_bps", amm.DefaultFees.ProtocolBps)
	v.SetDefault("fees.creator_bps", amm.DefaultFees.CreatorBps)

	v.SetDefault("limits.max_price_impact", "0")
	v.SetDefault("limits.max_pool_share", "0")
}
