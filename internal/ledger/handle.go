package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Handle is a token seen from one caller: the spender of TransferFrom, the sender of
// Transfer and the minter of Mint and Burn.
type Handle struct {
	bank   *Bank
	token  common.Address
	caller common.Address
}

// Handle binds token to caller.
func (b *Bank) Handle(token, caller common.Address) *Handle {
	return &Handle{bank: b, token: token, caller: caller}
}

// Token returns the token address.
func (h *Handle) Token() common.Address { return h.token }

func (h *Handle) TransferFrom(payer, recipient common.Address, amount *uint256.Int) error {
	return h.bank.TransferFrom(h.token, h.caller, payer, recipient, amount)
}

func (h *Handle) Transfer(recipient common.Address, amount *uint256.Int) error {
	return h.bank.Transfer(h.token, h.caller, recipient, amount)
}

func (h *Handle) BalanceOf(account common.Address) (*uint256.Int, error) {
	return h.bank.BalanceOf(h.token, account)
}

func (h *Handle) Mint(recipient common.Address, amount *uint256.Int) error {
	return h.bank.Mint(h.token, h.caller, recipient, amount)
}

func (h *Handle) Burn(holder common.Address, amount *uint256.Int) error {
	return h.bank.Burn(h.token, h.caller, holder, amount)
}
