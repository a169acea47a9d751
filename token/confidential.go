package token

import (
	"fmt"
	"sync"

	"github.com/cloudx-io/dutchauction/core"
	"github.com/cloudx-io/dutchauction/encint"
)

// Confidential is a balance ledger whose amounts are encrypted handles.
//
// A transfer cannot abort on insufficient funds, because the comparison
// result is itself encrypted; instead it moves either the full amount or
// nothing, decided by a conditional select inside the engine, and returns the
// encrypted amount actually moved. Callers that need a success signal compare
// that returned value against what they asked to move.
type Confidential struct {
	mu       sync.Mutex
	eng      *encint.Engine
	self     core.Address
	balances map[core.Address]encint.Value
}

// NewConfidential creates an empty confidential ledger operating under its
// own engine identity.
func NewConfidential(eng *encint.Engine, self core.Address) *Confidential {
	return &Confidential{
		eng:      eng,
		self:     self,
		balances: make(map[core.Address]encint.Value),
	}
}

// Address returns the ledger's engine identity. Amounts passed to Transfer
// must be allowed to this identity first.
func (c *Confidential) Address() core.Address { return c.self }

// balance returns the stored balance or a fresh encrypted zero.
func (c *Confidential) balance(s *encint.Scope, owner core.Address) (encint.Value, error) {
	if bal, ok := c.balances[owner]; ok {
		return bal, nil
	}
	return s.Encrypt(0)
}

// setBalance stores a balance and persists access for the ledger and the
// account owner.
func (c *Confidential) setBalance(s *encint.Scope, owner core.Address, bal encint.Value) error {
	if err := s.Allow(bal, c.self); err != nil {
		return fmt.Errorf("persist ledger access: %w", err)
	}
	if err := s.Allow(bal, owner); err != nil {
		return fmt.Errorf("persist owner access: %w", err)
	}
	c.balances[owner] = bal
	return nil
}

// Mint credits newly issued tokens to an account. The amount is public at
// issuance time; balances are opaque from then on.
func (c *Confidential) Mint(to core.Address, amount uint64) error {
	if to == core.Zero {
		return ErrInvalidAddress
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.eng.Scope(c.self)
	bal, err := c.balance(s, to)
	if err != nil {
		return err
	}
	minted, err := s.Encrypt(amount)
	if err != nil {
		return err
	}
	newBal, err := s.Add(bal, minted)
	if err != nil {
		return err
	}
	return c.setBalance(s, to, newBal)
}

// Transfer moves min(amount, balance-of-from)-or-nothing from one account to
// another: the full amount if covered, zero otherwise. The caller must have
// allowed amount to the ledger's identity; the returned moved amount is
// allowed back to the caller.
func (c *Confidential) Transfer(caller, from, to core.Address, amount encint.Value) (encint.Value, error) {
	if from == core.Zero || to == core.Zero {
		return encint.Value{}, ErrInvalidAddress
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.eng.Scope(c.self)

	fromBal, err := c.balance(s, from)
	if err != nil {
		return encint.Value{}, err
	}
	toBal, err := c.balance(s, to)
	if err != nil {
		return encint.Value{}, err
	}
	zero, err := s.Encrypt(0)
	if err != nil {
		return encint.Value{}, err
	}

	covered, err := s.Le(amount, fromBal)
	if err != nil {
		return encint.Value{}, fmt.Errorf("compare amount to balance: %w", err)
	}
	moved, err := s.Select(covered, amount, zero)
	if err != nil {
		return encint.Value{}, err
	}

	newFrom, err := s.Sub(fromBal, moved)
	if err != nil {
		return encint.Value{}, err
	}
	newTo, err := s.Add(toBal, moved)
	if err != nil {
		return encint.Value{}, err
	}

	if from == to {
		// Self transfer: balances collapse back to the original.
		newFrom = fromBal
		newTo = fromBal
	}

	if err := c.setBalance(s, from, newFrom); err != nil {
		return encint.Value{}, err
	}
	if err := c.setBalance(s, to, newTo); err != nil {
		return encint.Value{}, err
	}

	if err := s.Allow(moved, caller); err != nil {
		return encint.Value{}, fmt.Errorf("grant moved amount to caller: %w", err)
	}
	return moved, nil
}

// BalanceOf returns the encrypted balance handle for an account. The handle
// is readable by the account owner and the ledger.
func (c *Confidential) BalanceOf(owner core.Address) (encint.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bal, ok := c.balances[owner]
	return bal, ok
}
