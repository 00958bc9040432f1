// Package curve reads deployed StableSwap pools: parameters and balances at a block,
// on-chain quotes, and decoded pool events.
package curve

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// IndexType is the Solidity type a pool uses for the coin index of its coins and
// balances getters. Older pools take int128, newer ones uint256.
type IndexType string

const (
	IndexUint256 IndexType = "uint256"
	IndexInt128  IndexType = "int128"
)

func (t IndexType) valid() bool {
	return t == IndexUint256 || t == IndexInt128
}

const poolABITemplate = `[
  {"anonymous": false, "name": "TokenExchange", "type": "event", "inputs": [
    {"indexed": true, "name": "buyer", "type": "address"},
    {"indexed": false, "name": "sold_id", "type": "int128"},
    {"indexed": false, "name": "tokens_sold", "type": "uint256"},
    {"indexed": false, "name": "bought_id", "type": "int128"},
    {"indexed": false, "name": "tokens_bought", "type": "uint256"}]},
  {"anonymous": false, "name": "AddLiquidity", "type": "event", "inputs": [
    {"indexed": true, "name": "provider", "type": "address"},
    {"indexed": false, "name": "token_amounts", "type": "uint256[{N}]"},
    {"indexed": false, "name": "fees", "type": "uint256[{N}]"},
    {"indexed": false, "name": "invariant", "type": "uint256"},
    {"indexed": false, "name": "token_supply", "type": "uint256"}]},
  {"anonymous": false, "name": "RemoveLiquidity", "type": "event", "inputs": [
    {"indexed": true, "name": "provider", "type": "address"},
    {"indexed": false, "name": "token_amounts", "type": "uint256[{N}]"},
    {"indexed": false, "name": "fees", "type": "uint256[{N}]"},
    {"indexed": false, "name": "token_supply", "type": "uint256"}]},
  {"anonymous": false, "name": "RemoveLiquidityOne", "type": "event", "inputs": [
    {"indexed": true, "name": "provider", "type": "address"},
    {"indexed": false, "name": "token_amount", "type": "uint256"},
    {"indexed": false, "name": "coin_amount", "type": "uint256"}]},
  {"anonymous": false, "name": "RemoveLiquidityImbalance", "type": "event", "inputs": [
    {"indexed": true, "name": "provider", "type": "address"},
    {"indexed": false, "name": "token_amounts", "type": "uint256[{N}]"},
    {"indexed": false, "name": "fees", "type": "uint256[{N}]"},
    {"indexed": false, "name": "invariant", "type": "uint256"},
    {"indexed": false, "name": "token_supply", "type": "uint256"}]},
  {"name": "A", "type": "function", "stateMutability": "view", "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]},
  {"name": "fee", "type": "function", "stateMutability": "view", "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]},
  {"name": "admin_fee", "type": "function", "stateMutability": "view", "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]},
  {"name": "owner", "type": "function", "stateMutability": "view", "inputs": [],
    "outputs": [{"name": "", "type": "address"}]},
  {"name": "coins", "type": "function", "stateMutability": "view",
    "inputs": [{"name": "i", "type": "{INDEX}"}],
    "outputs": [{"name": "", "type": "address"}]},
  {"name": "balances", "type": "function", "stateMutability": "view",
    "inputs": [{"name": "i", "type": "{INDEX}"}],
    "outputs": [{"name": "", "type": "uint256"}]},
  {"name": "get_dy", "type": "function", "stateMutability": "view",
    "inputs": [{"name": "i", "type": "int128"}, {"name": "j", "type": "int128"}, {"name": "dx", "type": "uint256"}],
    "outputs": [{"name": "", "type": "uint256"}]},
  {"name": "get_virtual_price", "type": "function", "stateMutability": "view", "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]},
  {"name": "calc_withdraw_one_coin", "type": "function", "stateMutability": "view",
    "inputs": [{"name": "_token_amount", "type": "uint256"}, {"name": "i", "type": "int128"}],
    "outputs": [{"name": "", "type": "uint256"}]},
  {"name": "calc_token_amount", "type": "function", "stateMutability": "view",
    "inputs": [{"name": "amounts", "type": "uint256[{N}]"}, {"name": "deposit", "type": "bool"}],
    "outputs": [{"name": "", "type": "uint256"}]}
]`

type abiKey struct {
	n     int
	index IndexType
}

var (
	poolABIMu    sync.Mutex
	poolABICache = make(map[abiKey]abi.ABI)
)

// PoolABI returns the ABI of an n-coin pool. Parsed ABIs are cached.
func PoolABI(n int, index IndexType) (abi.ABI, error) {
	if n < 2 || n > 8 {
		return abi.ABI{}, fmt.Errorf("unsupported coin count %d", n)
	}
	if !index.valid() {
		return abi.ABI{}, fmt.Errorf("unsupported index type %q", index)
	}
	key := abiKey{n: n, index: index}

	poolABIMu.Lock()
	defer poolABIMu.Unlock()
	if parsed, ok := poolABICache[key]; ok {
		return parsed, nil
	}
	src := strings.NewReplacer("{N}", fmt.Sprint(n), "{INDEX}", string(index)).Replace(poolABITemplate)
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse pool abi: %w", err)
	}
	poolABICache[key] = parsed
	return parsed, nil
}

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABIString      abi.ABI
	erc20ABIStringOnce  sync.Once
	erc20ABIStringErr   error
	erc20ABIBytes32     abi.ABI
	erc20ABIBytes32Once sync.Once
	erc20ABIBytes32Err  error
)

func erc20ABIStringInstance() (abi.ABI, error) {
	erc20ABIStringOnce.Do(func() {
		erc20ABIString, erc20ABIStringErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20ABIString, erc20ABIStringErr
}

func erc20ABIBytes32Instance() (abi.ABI, error) {
	erc20ABIBytes32Once.Do(func() {
		erc20ABIBytes32, erc20ABIBytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIBytes32, erc20ABIBytes32Err
}
