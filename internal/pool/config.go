package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/invariant"
)

const (
	MaxA        = 1_000_000
	MaxFee      = 5_000_000_000  // 50%
	MaxAdminFee = 10_000_000_000 // 100%
)

// Coin is one pool asset.
type Coin struct {
	Address  common.Address
	Decimals uint8
}

// Config fixes a pool's identity and its initial parameters. Fee and AdminFee are
// parts per 10^10.
type Config struct {
	Name     string
	Address  common.Address
	Coins    []Coin
	LPToken  common.Address
	Owner    common.Address
	A        uint64
	Fee      uint64
	AdminFee uint64
}

// Validate checks coin count, decimals and parameter ranges.
func (c Config) Validate() error {
	n := len(c.Coins)
	if n < 2 || n > invariant.MaxCoins {
		return fmt.Errorf("%w: %d coins, want 2..%d", ErrInvalidConfig, n, invariant.MaxCoins)
	}
	seen := make(map[common.Address]struct{}, n)
	for i, coin := range c.Coins {
		if coin.Decimals > fixedpoint.InternalDecimals {
			return fmt.Errorf("%w: coin %d has %d decimals", ErrInvalidConfig, i, coin.Decimals)
		}
		if _, ok := seen[coin.Address]; ok {
			return fmt.Errorf("%w: duplicate coin %s", ErrInvalidConfig, coin.Address.Hex())
		}
		seen[coin.Address] = struct{}{}
	}
	if c.A == 0 || c.A > MaxA {
		return fmt.Errorf("%w: A=%d, want 1..%d", ErrInvalidConfig, c.A, MaxA)
	}
	if c.Fee > MaxFee {
		return fmt.Errorf("%w: fee %d above %d", ErrInvalidConfig, c.Fee, MaxFee)
	}
	if c.AdminFee > MaxAdminFee {
		return fmt.Errorf("%w: admin fee %d above %d", ErrInvalidConfig, c.AdminFee, MaxAdminFee)
	}
	return nil
}

func (c Config) decimals() []uint8 {
	out := make([]uint8, len(c.Coins))
	for i, coin := range c.Coins {
		out[i] = coin.Decimals
	}
	return out
}
