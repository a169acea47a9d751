package encint

import (
	"github.com/cloudx-io/dutchauction/core"
)

// Scope is a single operation's window onto the engine. Values created inside
// a scope are transiently accessible to it; once the operation returns, only
// values persisted with Allow remain readable. This mirrors transaction-
// scoped access in encrypted-ledger environments and is what forces contracts
// to grant access explicitly for every value that crosses an operation
// boundary.
type Scope struct {
	eng       *Engine
	caller    core.Address
	transient map[Handle]struct{}
}

// Scope opens an operation scope for the given caller.
func (e *Engine) Scope(caller core.Address) *Scope {
	return &Scope{
		eng:       e,
		caller:    caller,
		transient: make(map[Handle]struct{}),
	}
}

// read opens a value the scope may use: either persisted to the caller or
// created within this scope. Caller holds eng.mu.
func (s *Scope) read(v Value) (uint64, error) {
	ent, ok := s.eng.store[v.h]
	if !ok {
		return 0, ErrUnknownHandle
	}
	if _, transient := s.transient[v.h]; !transient {
		if _, allowed := ent.acl[s.caller]; !allowed {
			return 0, ErrAccessDenied
		}
	}
	return s.eng.open(v)
}

// fresh seals a result and marks it transient. Caller holds eng.mu.
func (s *Scope) fresh(x uint64) (Value, error) {
	v, err := s.eng.seal(x)
	if err != nil {
		return Value{}, err
	}
	s.transient[v.h] = struct{}{}
	return v, nil
}

// Encrypt trivially encrypts a plaintext constant into the scope.
func (s *Scope) Encrypt(x uint64) (Value, error) {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()
	return s.fresh(x)
}

func (s *Scope) binop(a, b Value, f func(x, y uint64) uint64) (Value, error) {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()

	x, err := s.read(a)
	if err != nil {
		return Value{}, err
	}
	y, err := s.read(b)
	if err != nil {
		return Value{}, err
	}
	return s.fresh(f(x, y))
}

// Add returns a+b with wraparound semantics.
func (s *Scope) Add(a, b Value) (Value, error) {
	return s.binop(a, b, func(x, y uint64) uint64 { return x + y })
}

// Sub returns a-b with wraparound semantics. Guard subtractions with a
// comparison and Select; the wrapped result of an underflow must never be
// selected.
func (s *Scope) Sub(a, b Value) (Value, error) {
	return s.binop(a, b, func(x, y uint64) uint64 { return x - y })
}

// Mul returns a*b with wraparound semantics.
func (s *Scope) Mul(a, b Value) (Value, error) {
	return s.binop(a, b, func(x, y uint64) uint64 { return x * y })
}

// MulScalar returns v*k with wraparound semantics.
func (s *Scope) MulScalar(v Value, k uint64) (Value, error) {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()

	x, err := s.read(v)
	if err != nil {
		return Value{}, err
	}
	return s.fresh(x * k)
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Le returns an encrypted boolean (0 or 1) for a <= b.
func (s *Scope) Le(a, b Value) (Value, error) {
	return s.binop(a, b, func(x, y uint64) uint64 { return boolBit(x <= y) })
}

// Ge returns an encrypted boolean for a >= b.
func (s *Scope) Ge(a, b Value) (Value, error) {
	return s.binop(a, b, func(x, y uint64) uint64 { return boolBit(x >= y) })
}

// Eq returns an encrypted boolean for a == b.
func (s *Scope) Eq(a, b Value) (Value, error) {
	return s.binop(a, b, func(x, y uint64) uint64 { return boolBit(x == y) })
}

// Select returns a fresh encryption of ifTrue when cond is non-zero and of
// ifFalse otherwise. The choice happens inside the engine; the caller learns
// nothing about cond from the returned handle.
func (s *Scope) Select(cond, ifTrue, ifFalse Value) (Value, error) {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()

	c, err := s.read(cond)
	if err != nil {
		return Value{}, err
	}
	t, err := s.read(ifTrue)
	if err != nil {
		return Value{}, err
	}
	f, err := s.read(ifFalse)
	if err != nil {
		return Value{}, err
	}

	if c != 0 {
		return s.fresh(t)
	}
	return s.fresh(f)
}

// Allow persists access to a value for an account. The scope must itself have
// access; without an Allow, a value created here is unreadable to everyone
// once the operation ends, its producer included.
func (s *Scope) Allow(v Value, who core.Address) error {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()

	ent, ok := s.eng.store[v.h]
	if !ok {
		return ErrUnknownHandle
	}
	if _, transient := s.transient[v.h]; !transient {
		if _, allowed := ent.acl[s.caller]; !allowed {
			return ErrAccessDenied
		}
	}
	ent.acl[who] = struct{}{}
	return nil
}
