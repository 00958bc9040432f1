package config

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"stableswap/internal/pool"
)

// PoolSettings describes a local pool under the pool.* keys.
type PoolSettings struct {
	Name     string
	Address  string
	LPToken  string
	Owner    string
	Coins    []string
	Decimals []string
	A        uint64
	Fee      uint64
	AdminFee uint64
}

func poolDefaults() map[string]interface{} {
	return map[string]interface{}{
		"pool-name":      "local",
		"pool-address":   "0x0000000000000000000000000000000000005ab0",
		"pool-lp-token":  "0x0000000000000000000000000000000000005ab1",
		"pool-a":         uint64(100),
		"pool-fee":       uint64(4_000_000),
		"pool-admin-fee": uint64(5_000_000_000),
	}
}

func readPool(v *viper.Viper) PoolSettings {
	return PoolSettings{
		Name:     v.GetString("pool-name"),
		Address:  v.GetString("pool-address"),
		LPToken:  v.GetString("pool-lp-token"),
		Owner:    v.GetString("pool-owner"),
		Coins:    getStringSlice(v, "pool-coins"),
		Decimals: getStringSlice(v, "pool-decimals"),
		A:        v.GetUint64("pool-a"),
		Fee:      v.GetUint64("pool-fee"),
		AdminFee: v.GetUint64("pool-admin-fee"),
	}
}

// PoolConfig validates the settings and converts them. Decimals default to 18 per
// coin when omitted.
func (s PoolSettings) PoolConfig() (pool.Config, error) {
	cfg := pool.Config{Name: s.Name, A: s.A, Fee: s.Fee, AdminFee: s.AdminFee}
	var err error
	if cfg.Address, err = parseAddress("pool-address", s.Address); err != nil {
		return pool.Config{}, err
	}
	if cfg.LPToken, err = parseAddress("pool-lp-token", s.LPToken); err != nil {
		return pool.Config{}, err
	}
	if s.Owner != "" {
		if cfg.Owner, err = parseAddress("pool-owner", s.Owner); err != nil {
			return pool.Config{}, err
		}
	}
	if len(s.Decimals) != 0 && len(s.Decimals) != len(s.Coins) {
		return pool.Config{}, fmt.Errorf("pool-decimals has %d entries for %d coins", len(s.Decimals), len(s.Coins))
	}
	for i, coin := range s.Coins {
		addr, err := parseAddress(fmt.Sprintf("pool-coins[%d]", i), coin)
		if err != nil {
			return pool.Config{}, err
		}
		decimals := uint64(18)
		if len(s.Decimals) != 0 {
			if decimals, err = strconv.ParseUint(s.Decimals[i], 10, 8); err != nil {
				return pool.Config{}, fmt.Errorf("pool-decimals[%d]: %w", i, err)
			}
		}
		cfg.Coins = append(cfg.Coins, pool.Coin{Address: addr, Decimals: uint8(decimals)})
	}
	if err := cfg.Validate(); err != nil {
		return pool.Config{}, err
	}
	return cfg, nil
}

func parseAddress(key, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", key, value)
	}
	return common.HexToAddress(value), nil
}

// SimulateConfig holds settings for the simulate command.
type SimulateConfig struct {
	Pool     PoolSettings
	Script   string
	Out      string
	State    string
	Events   string
	PGDSN    string
	LogLevel string
}

// LoadSimulate merges config file, environment variables and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	defaults := poolDefaults()
	defaults["out"] = "./data/steps.jsonl"
	defaults["state"] = "./data/pool_state.json"
	defaults["events"] = "./data/pool_events.jsonl"
	defaults["log-level"] = "info"
	v, err := load(cfgFile, flags, defaults)
	if err != nil {
		return SimulateConfig{}, err
	}
	return SimulateConfig{
		Pool:     readPool(v),
		Script:   v.GetString("script"),
		Out:      v.GetString("out"),
		State:    v.GetString("state"),
		Events:   v.GetString("events"),
		PGDSN:    v.GetString("pg-dsn"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// QuoteConfig holds settings for the quote command. With an RPC URL the pool is read
// from the chain at Block; otherwise from the State file.
type QuoteConfig struct {
	Pool     PoolSettings
	RPCURL   string
	NCoins   int
	Index    string
	Block    uint64
	State    string
	I        int
	J        int
	Dx       string
	LogLevel string
}

// LoadQuote merges config file, environment variables and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	defaults := poolDefaults()
	defaults["n-coins"] = 2
	defaults["index"] = "uint256"
	defaults["state"] = "./data/pool_state.json"
	defaults["j"] = 1
	defaults["log-level"] = "info"
	v, err := load(cfgFile, flags, defaults)
	if err != nil {
		return QuoteConfig{}, err
	}
	return QuoteConfig{
		Pool:     readPool(v),
		RPCURL:   v.GetString("rpc"),
		NCoins:   v.GetInt("n-coins"),
		Index:    v.GetString("index"),
		Block:    v.GetUint64("block"),
		State:    v.GetString("state"),
		I:        v.GetInt("i"),
		J:        v.GetInt("j"),
		Dx:       v.GetString("dx"),
		LogLevel: v.GetString("log-level"),
	}, nil
}
