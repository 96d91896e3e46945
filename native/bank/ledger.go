package bank

import (
	"fmt"
	"math/big"

	"bountyvault/core/types"
)

// AccountState is the account storage slice the ledger operates on. The
// escrow state adapter implements it, so ledger mutations ride the same
// transaction as the escrow records they accompany.
type AccountState interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, acc *types.Account) error
}

// Ledger moves token value between accounts and reports balances. It is the
// trusted transfer collaborator consumed by the escrow engine.
type Ledger struct {
	state AccountState
}

// NewLedger wraps the supplied account state.
func NewLedger(state AccountState) *Ledger {
	return &Ledger{state: state}
}

// Transfer debits the sender and credits the receiver. Transfers of zero are
// no-ops; negative amounts are rejected.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: account state required")
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("bank: negative transfer amount")
	}
	fromAcc, err := l.state.GetAccount(from)
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("bank: insufficient balance")
	}
	// A self-transfer nets to zero. Loading the account twice would credit
	// the debited copy on top of the original, minting value.
	if from == to {
		return nil
	}
	toAcc, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	toAcc = types.EnsureAccount(toAcc)
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := l.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return l.state.PutAccount(to, toAcc)
}

// BalanceOf reports the current balance of an address.
func (l *Ledger) BalanceOf(owner [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, fmt.Errorf("bank: account state required")
	}
	acc, err := l.state.GetAccount(owner)
	if err != nil {
		return nil, err
	}
	return types.EnsureAccount(acc).Balance, nil
}

// Mint credits freshly issued value to an address. The daemon uses it once to
// seed genesis balances; it is not reachable through the RPC surface.
func (l *Ledger) Mint(addr [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: account state required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: mint amount must be positive")
	}
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return err
	}
	acc = types.EnsureAccount(acc)
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return l.state.PutAccount(addr, acc)
}
