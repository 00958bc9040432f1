package config

import (
	"github.com/spf13/pflag"
)

// ReplayConfig holds settings for the replay command.
type ReplayConfig struct {
	RPCURL    string
	Pool      PoolSettings
	NCoins    int
	Index     string
	In        string
	Out       string
	Cursor    string
	PGDSN     string
	Tolerance uint64
	BatchSize int
	LogLevel  string
}

// LoadReplay merges config file, environment variables and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	defaults := poolDefaults()
	defaults["n-coins"] = 2
	defaults["index"] = "uint256"
	defaults["in"] = "./data/typed_events.jsonl"
	defaults["out"] = "./data/replay_results.jsonl"
	defaults["cursor"] = "./data/replay_cursor.json"
	defaults["batch-size"] = 500
	defaults["log-level"] = "info"
	v, err := load(cfgFile, flags, defaults)
	if err != nil {
		return ReplayConfig{}, err
	}
	return ReplayConfig{
		RPCURL:    v.GetString("rpc"),
		Pool:      readPool(v),
		NCoins:    v.GetInt("n-coins"),
		Index:     v.GetString("index"),
		In:        v.GetString("in"),
		Out:       v.GetString("out"),
		Cursor:    v.GetString("cursor"),
		PGDSN:     v.GetString("pg-dsn"),
		Tolerance: v.GetUint64("tolerance"),
		BatchSize: v.GetInt("batch-size"),
		LogLevel:  v.GetString("log-level"),
	}, nil
}
