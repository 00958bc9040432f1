package pool

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stableswap/internal/model"
)

// Token is an ERC-20 handle bound to the pool: the pool is the spender of
// TransferFrom and the sender of Transfer.
type Token interface {
	TransferFrom(payer, recipient common.Address, amount *uint256.Int) error
	Transfer(recipient common.Address, amount *uint256.Int) error
	BalanceOf(account common.Address) (*uint256.Int, error)
}

// ShareToken is the LP token. The pool is its only minter.
type ShareToken interface {
	Token
	Mint(recipient common.Address, amount *uint256.Int) error
	Burn(holder common.Address, amount *uint256.Int) error
}

// Journal lets the pool undo external calls of an aborted operation.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// Store makes a committed operation durable. Commit must not return until state and
// events survive a restart.
type Store interface {
	Commit(ctx context.Context, state model.PoolState, events []model.PoolEvent) error
}
