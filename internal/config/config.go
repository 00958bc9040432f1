// Package config loads command settings from a config file, STABLESWAP_* environment
// variables and flags, in increasing priority.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "STABLESWAP"

// IndexConfig holds settings for the index command.
type IndexConfig struct {
	RPCURL        string
	FromBlock     uint64
	ToBlock       uint64
	Confirmations uint64
	Pools         []string
	NCoins        int
	BatchSize     uint64
	Out           string
	Events        string
	Errors        string
	Cursor        string
	PGDSN         string
	MaxRetries    int
	RetryBackoff  time.Duration
	LogLevel      string
}

// LoadIndex merges config file, environment variables and flags into IndexConfig.
func LoadIndex(cfgFile string, flags *pflag.FlagSet) (IndexConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"n-coins":       2,
		"batch-size":    uint64(2000),
		"confirmations": uint64(12),
		"out":           "./data/logs.jsonl",
		"events":        "./data/typed_events.jsonl",
		"errors":        "./data/decode_errors.jsonl",
		"cursor":        "./data/index_cursor.json",
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return IndexConfig{}, err
	}

	return IndexConfig{
		RPCURL:        v.GetString("rpc"),
		FromBlock:     v.GetUint64("from"),
		ToBlock:       v.GetUint64("to"),
		Confirmations: v.GetUint64("confirmations"),
		Pools:         getStringSlice(v, "pool"),
		NCoins:        v.GetInt("n-coins"),
		BatchSize:     v.GetUint64("batch-size"),
		Out:           v.GetString("out"),
		Events:        v.GetString("events"),
		Errors:        v.GetString("errors"),
		Cursor:        v.GetString("cursor"),
		PGDSN:         v.GetString("pg-dsn"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		LogLevel:      v.GetString("log-level"),
	}, nil
}

// load builds a viper instance over defaults, the config file, the environment and
// flags. Without cfgFile a ./config.* file is read when present.
func load(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
