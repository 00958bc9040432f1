package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIndexDefaults(t *testing.T) {
	cfg, err := LoadIndex("", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), cfg.BatchSize)
	assert.Equal(t, uint64(12), cfg.Confirmations)
	assert.Equal(t, 2, cfg.NCoins)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Nil(t, cfg.Pools)
}

func TestLoadIndexPriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stableswap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc: http://file:8545
batch-size: 100
pool:
  - "0x1111111111111111111111111111111111111111"
  - "0x2222222222222222222222222222222222222222"
`), 0o644))
	t.Setenv("STABLESWAP_BATCH_SIZE", "250")
	t.Setenv("STABLESWAP_MAX_RETRIES", "9")

	flags := pflag.NewFlagSet("index", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.Int("max-retries", 5, "")
	require.NoError(t, flags.Parse([]string{"--rpc", "http://flag:8545"}))

	cfg, err := LoadIndex(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "http://flag:8545", cfg.RPCURL)
	assert.Equal(t, uint64(250), cfg.BatchSize)
	assert.Equal(t, 9, cfg.MaxRetries)
	assert.Len(t, cfg.Pools, 2)
}

func TestLoadIndexMissingFile(t *testing.T) {
	_, err := LoadIndex(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestPoolSettingsFromEnv(t *testing.T) {
	t.Setenv("STABLESWAP_POOL_COINS", "0x00000000000000000000000000000000000000a0, 0x00000000000000000000000000000000000000b0")
	t.Setenv("STABLESWAP_POOL_DECIMALS", "18,6")
	t.Setenv("STABLESWAP_POOL_A", "200")

	cfg, err := LoadSimulate("", nil)
	require.NoError(t, err)
	poolCfg, err := cfg.Pool.PoolConfig()
	require.NoError(t, err)
	require.Len(t, poolCfg.Coins, 2)
	assert.Equal(t, uint8(6), poolCfg.Coins[1].Decimals)
	assert.Equal(t, uint64(200), poolCfg.A)
	assert.Equal(t, uint64(4_000_000), poolCfg.Fee)
	assert.Equal(t, "./data/pool_state.json", cfg.State)
}

func TestPoolSettingsValidation(t *testing.T) {
	base := PoolSettings{
		Name:     "p",
		Address:  "0x0000000000000000000000000000000000005ab0",
		LPToken:  "0x0000000000000000000000000000000000005ab1",
		Coins:    []string{"0x00000000000000000000000000000000000000a0", "0x00000000000000000000000000000000000000b0"},
		A:        100,
		Fee:      4_000_000,
		AdminFee: 0,
	}
	cfg, err := base.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, uint8(18), cfg.Coins[0].Decimals)

	bad := base
	bad.Decimals = []string{"18"}
	_, err = bad.PoolConfig()
	require.ErrorContains(t, err, "pool-decimals")

	bad = base
	bad.Decimals = []string{"18", "300"}
	_, err = bad.PoolConfig()
	require.Error(t, err)

	bad = base
	bad.Owner = "owner"
	_, err = bad.PoolConfig()
	require.ErrorContains(t, err, "pool-owner")

	bad = base
	bad.Coins = bad.Coins[:1]
	_, err = bad.PoolConfig()
	require.Error(t, err)
}

func TestLoadReplayAndQuote(t *testing.T) {
	flags := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	flags.Uint64("tolerance", 0, "")
	require.NoError(t, flags.Parse([]string{"--tolerance", "3"}))
	cfg, err := LoadReplay("", flags)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cfg.Tolerance)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, "uint256", cfg.Index)

	quote, err := LoadQuote("", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, quote.I)
	assert.Equal(t, 1, quote.J)
}
