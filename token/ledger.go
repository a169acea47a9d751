// Package token provides the fungible token ledgers the auction escrows
// against: a plaintext balance ledger and a confidential ledger whose
// balances are encrypted handles.
package token

import (
	"errors"
	"sync"

	"github.com/cloudx-io/dutchauction/core"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAddress      = errors.New("invalid address")
)

// Ledger is an in-memory plaintext balance ledger. Transfers either fully
// succeed or leave both balances untouched.
type Ledger struct {
	mu       sync.RWMutex
	balances map[core.Address]uint64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[core.Address]uint64)}
}

// Mint credits newly issued tokens to an account.
func (l *Ledger) Mint(to core.Address, amount uint64) error {
	if to == core.Zero {
		return ErrInvalidAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[to]+amount < l.balances[to] {
		return core.ErrAmountOverflow
	}
	l.balances[to] += amount
	return nil
}

// Transfer moves amount from one account to another. A zero amount is a no-op
// that still validates the addresses.
func (l *Ledger) Transfer(from, to core.Address, amount uint64) error {
	if from == core.Zero || to == core.Zero {
		return ErrInvalidAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amount {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	if l.balances[to]+amount < l.balances[to] {
		return core.ErrAmountOverflow
	}

	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// BalanceOf returns the current balance of an account.
func (l *Ledger) BalanceOf(owner core.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[owner]
}
