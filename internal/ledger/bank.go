// Package ledger is an in-memory multi-token ERC-20 ledger with state journaling. It
// backs pools in the simulator, in replay and in tests.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stableswap/internal/fixedpoint"
)

var (
	ErrUnknownToken          = errors.New("unknown token")
	ErrTokenExists           = errors.New("token already deployed")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotMinter             = errors.New("caller is not the minter")
)

// TokenInfo describes a deployed token.
type TokenInfo struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	Minter   common.Address
}

type tokenState struct {
	info       TokenInfo
	supply     *uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
}

func (t *tokenState) balance(account common.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}

func (t *tokenState) allowance(owner, spender common.Address) *uint256.Int {
	if byOwner, ok := t.allowances[owner]; ok {
		if a, ok := byOwner[spender]; ok {
			return a
		}
	}
	return new(uint256.Int)
}

type revision struct {
	id           int
	journalIndex int
}

// Bank holds every token. Snapshot ids are global to the bank, so operations that
// revert must not interleave with unrelated writers on the same bank.
type Bank struct {
	mu sync.Mutex

	tokens map[common.Address]*tokenState

	journal      []func()
	revisions    []revision
	nextRevision int
}

// NewBank returns an empty ledger.
func NewBank() *Bank {
	return &Bank{tokens: make(map[common.Address]*tokenState)}
}

// Deploy registers a token with zero supply.
func (b *Bank) Deploy(info TokenInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tokens[info.Address]; ok {
		return fmt.Errorf("%w: %s", ErrTokenExists, info.Address.Hex())
	}
	b.tokens[info.Address] = &tokenState{
		info:       info,
		supply:     new(uint256.Int),
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
	addr := info.Address
	b.journal = append(b.journal, func() { delete(b.tokens, addr) })
	return nil
}

// SetMinter changes the only account allowed to mint and burn a token.
func (b *Bank) SetMinter(token, minter common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.token(token)
	if err != nil {
		return err
	}
	prev := t.info.Minter
	t.info.Minter = minter
	b.journal = append(b.journal, func() { t.info.Minter = prev })
	return nil
}

// Info returns token metadata.
func (b *Bank) Info(token common.Address) (TokenInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.token(token)
	if err != nil {
		return TokenInfo{}, err
	}
	return t.info, nil
}

// Tokens lists deployed token addresses in ascending order.
func (b *Bank) Tokens() []common.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]common.Address, 0, len(b.tokens))
	for addr := range b.tokens {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// MintForTesting credits an account without a minter check.
func (b *Bank) MintForTesting(token, to common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.token(token)
	if err != nil {
		return err
	}
	return b.mint(t, to, amount)
}

// BalanceOf returns a copy of an account balance.
func (b *Bank) BalanceOf(token, account common.Address) (*uint256.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.token(token)
	if err != nil {
		return nil, err
	}
	return t.balance(account).Clone(), nil
}

// TotalSupply returns a copy of a token's supply.
func (b *Bank) TotalSupply(token common.Address) (*uint256.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.token(token)
	if err != nil {
		return nil, err
	}
	return t.supply.Clone(), nil
}

// Allowance returns what spender may still move on behalf of owner.
func (b *Bank) Allowance(token, owner, spender common.Address) (*uint256.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.token(token)
	if err != nil {
		return nil, err
	}
	return t.allowance(owner, spender).Clone(), nil
}

// Approve sets the allowance of spender over owner's balance.
func (b *Bank) Approve(token, owner, spender common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.token(token)
	if err != nil {
		return err
	}
	b.setAllowance(t, owner, spender, amount.Clone())
	return nil
}

// Transfer moves amount from one account to another.
func (b *Bank) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.token(token)
	if err != nil {
		return err
	}
	return b.move(t, from, to, amount)
}

// TransferFrom moves amount from owner to recipient, spending spender's allowance. An
// allowance of 2^256-1 is never decreased.
func (b *Bank) TransferFrom(token, spender, owner, to common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.token(token)
	if err != nil {
		return err
	}
	allowance := t.allowance(owner, spender)
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s allows %s %s, need %s", ErrInsufficientAllowance,
			owner.Hex(), spender.Hex(), fixedpoint.Format(allowance), fixedpoint.Format(amount))
	}
	if t.balance(owner).Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", ErrInsufficientBalance,
			owner.Hex(), fixedpoint.Format(t.balance(owner)), fixedpoint.Format(amount))
	}
	if !allowance.Eq(maxAllowance) {
		b.setAllowance(t, owner, spender, new(uint256.Int).Sub(allowance, amount))
	}
	return b.move(t, owner, to, amount)
}

// Mint creates amount for to. Only the token minter may call it.
func (b *Bank) Mint(token, caller, to common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.token(token)
	if err != nil {
		return err
	}
	if caller != t.info.Minter {
		return fmt.Errorf("%w: %s", ErrNotMinter, caller.Hex())
	}
	return b.mint(t, to, amount)
}

// Burn destroys amount held by from. Only the token minter may call it.
func (b *Bank) Burn(token, caller, from common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.token(token)
	if err != nil {
		return err
	}
	if caller != t.info.Minter {
		return fmt.Errorf("%w: %s", ErrNotMinter, caller.Hex())
	}
	balance := t.balance(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, burn %s", ErrInsufficientBalance,
			from.Hex(), fixedpoint.Format(balance), fixedpoint.Format(amount))
	}
	b.setBalance(t, from, new(uint256.Int).Sub(balance, amount))
	b.setSupply(t, new(uint256.Int).Sub(t.supply, amount))
	return nil
}

// Snapshot returns an id for the current ledger state.
func (b *Bank) Snapshot() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextRevision
	b.nextRevision++
	b.revisions = append(b.revisions, revision{id: id, journalIndex: len(b.journal)})
	return id
}

// RevertToSnapshot undoes every change made since the snapshot was taken. Unknown ids
// are ignored.
func (b *Bank) RevertToSnapshot(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := sort.Search(len(b.revisions), func(i int) bool { return b.revisions[i].id >= id })
	if idx == len(b.revisions) || b.revisions[idx].id != id {
		return
	}
	start := b.revisions[idx].journalIndex
	for i := len(b.journal) - 1; i >= start; i-- {
		b.journal[i]()
	}
	b.journal = b.journal[:start]
	b.revisions = b.revisions[:idx]
}

// Finalise drops the journal. Earlier snapshots can no longer be reverted.
func (b *Bank) Finalise() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal = nil
	b.revisions = nil
}

var maxAllowance = new(uint256.Int).SetAllOne()

// MaxAllowance returns 2^256-1, the allowance TransferFrom never spends.
func MaxAllowance() *uint256.Int {
	return maxAllowance.Clone()
}

func (b *Bank) token(addr common.Address) (*tokenState, error) {
	t, ok := b.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return t, nil
}

func (b *Bank) mint(t *tokenState, to common.Address, amount *uint256.Int) error {
	supply, err := fixedpoint.Add(t.supply, amount)
	if err != nil {
		return fmt.Errorf("mint %s: %w", t.info.Address.Hex(), err)
	}
	b.setSupply(t, supply)
	b.setBalance(t, to, new(uint256.Int).Add(t.balance(to), amount))
	return nil
}

func (b *Bank) move(t *tokenState, from, to common.Address, amount *uint256.Int) error {
	balance := t.balance(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", ErrInsufficientBalance,
			from.Hex(), fixedpoint.Format(balance), fixedpoint.Format(amount))
	}
	if from == to {
		return nil
	}
	b.setBalance(t, from, new(uint256.Int).Sub(balance, amount))
	b.setBalance(t, to, new(uint256.Int).Add(t.balance(to), amount))
	return nil
}

func (b *Bank) setBalance(t *tokenState, account common.Address, value *uint256.Int) {
	prev, existed := t.balances[account]
	t.balances[account] = value
	b.journal = append(b.journal, func() {
		if existed {
			t.balances[account] = prev
		} else {
			delete(t.balances, account)
		}
	})
}

func (b *Bank) setSupply(t *tokenState, value *uint256.Int) {
	prev := t.supply
	t.supply = value
	b.journal = append(b.journal, func() { t.supply = prev })
}

func (b *Bank) setAllowance(t *tokenState, owner, spender common.Address, value *uint256.Int) {
	byOwner, ok := t.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = byOwner
	}
	prev, existed := byOwner[spender]
	byOwner[spender] = value
	b.journal = append(b.journal, func() {
		if existed {
			byOwner[spender] = prev
		} else {
			delete(byOwner, spender)
		}
	})
}
