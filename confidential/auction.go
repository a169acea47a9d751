// Package confidential implements the Dutch auction over encrypted amounts.
//
// The lifecycle guards (time windows, roles, the started flag) are public,
// exactly as in the plaintext variant; every amount — bids, balances, the
// running tokensLeft counter — is an opaque encint handle. Where the
// plaintext variant rejects an operation, this one computes both the full
// effect and a zeroed effect and selects between them inside the engine, so
// an uncovered bid appears to succeed while changing nothing.
package confidential

import (
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cloudx-io/dutchauction/core"
	"github.com/cloudx-io/dutchauction/encint"
	"github.com/cloudx-io/dutchauction/oracle"
)

// Ledger is the confidential token collaborator: transfers move the full
// amount or nothing and return the encrypted amount actually moved.
type Ledger interface {
	Transfer(caller, from, to core.Address, amount encint.Value) (encint.Value, error)
	BalanceOf(owner core.Address) (encint.Value, bool)
	Address() core.Address
}

// RevealRequester is the decryption oracle surface the auction needs: a
// fire-and-forget batch request whose callback arrives on the oracle's own
// schedule, or never.
type RevealRequester interface {
	Address() core.Address
	PublicKey() *ecdsa.PublicKey
	RequestDecryption(values []encint.Value, deadline uint64, cb oracle.Callback) (uuid.UUID, error)
}

// position is a bidder's cumulative encrypted state.
type position struct {
	tokens encint.Value
	paid   encint.Value
}

// Auction is the confidential auction aggregate. Field semantics mirror the
// plaintext auction.Auction; see that package for the settlement rules.
type Auction struct {
	mu sync.Mutex

	params core.Params
	escrow core.Address

	eng     *encint.Engine
	sale    Ledger
	payment Ledger
	oracle  RevealRequester

	bids map[core.Address]position

	// tokensLeft is what actually arrived in escrow minus what has been sold;
	// initialStock is the funded amount, kept for the sold-count at
	// settlement.
	tokensLeft   encint.Value
	initialStock encint.Value

	started   bool
	stopped   bool
	stoppedAt uint64
	cancelled bool

	sellerClaimed bool
	residueSwept  bool

	reveal revealGate
}

// New validates the construction invariants and wires the collaborators.
func New(params core.Params, escrow core.Address, eng *encint.Engine, sale, payment Ledger, orc RevealRequester) (*Auction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if escrow == core.Zero || escrow == params.Seller {
		return nil, fmt.Errorf("escrow account %q: %w", escrow, core.ErrNotSeller)
	}
	if eng == nil || sale == nil || payment == nil {
		return nil, fmt.Errorf("auction requires an engine and both token ledgers")
	}

	return &Auction{
		params:  params,
		escrow:  escrow,
		eng:     eng,
		sale:    sale,
		payment: payment,
		oracle:  orc,
		bids:    make(map[core.Address]position),
		reveal:  newRevealGate(),
	}, nil
}

// Params returns the immutable construction parameters.
func (a *Auction) Params() core.Params { return a.params }

// Escrow returns the auction's engine identity and ledger account.
func (a *Auction) Escrow() core.Address { return a.escrow }

// Started reports whether the seller has funded the auction.
func (a *Auction) Started() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// Cancelled reports whether the seller cancelled the auction.
func (a *Auction) Cancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

// Price returns the unit price at the given time. Prices are public; only
// amounts are encrypted.
func (a *Auction) Price(now uint64) uint64 {
	return core.UnitPrice(now, a.params)
}

// TokensLeft returns the encrypted unsold-token counter. Reading its
// plaintext goes through the reveal protocol.
func (a *Auction) TokensLeft() encint.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokensLeft
}

// UserBid returns the bidder's encrypted position handles. Both are allowed
// to the bidder, who can have them revealed out of band.
func (a *Auction) UserBid(bidder core.Address) (tokens, paid encint.Value, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.bids[bidder]
	return pos.tokens, pos.paid, ok
}

func (a *Auction) ended(now uint64) bool {
	return a.stopped || now >= a.params.ExpiresAt()
}

func (a *Auction) finalPrice(now uint64) uint64 {
	if a.stopped {
		return core.UnitPrice(a.stoppedAt, a.params)
	}
	return core.UnitPrice(now, a.params)
}

// Initialize funds the auction from the seller. Because a confidential
// transfer cannot abort, the escrowed amount itself is the success signal:
// tokensLeft becomes exactly what arrived, which is zero if the seller's
// balance did not cover TotalAmount.
func (a *Auction) Initialize(now uint64, caller core.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return core.ErrAlreadyStarted
	}
	if a.cancelled || a.ended(now) {
		return core.ErrTooLate
	}
	if caller != a.params.Seller {
		return core.ErrNotSeller
	}

	s := a.eng.Scope(a.escrow)
	total, err := s.Encrypt(a.params.TotalAmount)
	if err != nil {
		return err
	}
	if err := s.Allow(total, a.sale.Address()); err != nil {
		return err
	}

	moved, err := a.sale.Transfer(a.escrow, a.params.Seller, a.escrow, total)
	if err != nil {
		return fmt.Errorf("escrow sale tokens: %w", err)
	}

	if err := s.Allow(moved, a.escrow); err != nil {
		return err
	}

	a.tokensLeft = moved
	a.initialStock = moved
	a.started = true
	return nil
}

// Bid commits the bidder to the encrypted amount carried by input, repricing
// their whole position at the current unit price, with the signed delta
// settled immediately.
//
// Both failure modes are branch-free: a bid exceeding tokensLeft and a charge
// the bidder's balance cannot cover each collapse the whole effect to zero
// through selects, leaving the prior position and tokensLeft unchanged while
// the operation reports success. Callers confirm effects by reading state
// back, not by catching errors.
func (a *Auction) Bid(now uint64, bidder core.Address, input *encint.EncryptedInput) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return core.ErrNotStarted
	}
	if a.cancelled || a.ended(now) {
		return core.ErrTooLate
	}
	if now < a.params.StartAt {
		return core.ErrTooEarly
	}
	if bidder == a.params.Seller || bidder == a.escrow {
		return fmt.Errorf("bidder %q: %w", bidder, core.ErrNotSeller)
	}

	s := a.eng.Scope(a.escrow)

	n, err := s.ImportInput(input, bidder)
	if err != nil {
		return fmt.Errorf("verify bid input: %w", err)
	}
	zero, err := s.Encrypt(0)
	if err != nil {
		return err
	}

	oldTokens, oldPaid := a.bids[bidder].tokens, a.bids[bidder].paid
	if oldTokens.IsZero() {
		if oldTokens, err = s.Encrypt(0); err != nil {
			return err
		}
		if oldPaid, err = s.Encrypt(0); err != nil {
			return err
		}
	}

	// Availability: an over-committed bid buys zero tokens and settles zero.
	canFill, err := s.Le(n, a.tokensLeft)
	if err != nil {
		return err
	}
	toBuy, err := s.Select(canFill, n, zero)
	if err != nil {
		return err
	}

	// Reprice the whole position at the current price and split the signed
	// delta into a charge and a refund, at most one of them non-zero.
	newTokens, err := s.Add(oldTokens, toBuy)
	if err != nil {
		return err
	}
	price := core.UnitPrice(now, a.params)
	totalValue, err := s.MulScalar(newTokens, price)
	if err != nil {
		return err
	}
	owes, err := s.Ge(totalValue, oldPaid)
	if err != nil {
		return err
	}
	chargeRaw, err := s.Sub(totalValue, oldPaid)
	if err != nil {
		return err
	}
	refundRaw, err := s.Sub(oldPaid, totalValue)
	if err != nil {
		return err
	}
	charge, err := s.Select(owes, chargeRaw, zero)
	if err != nil {
		return err
	}
	if charge, err = s.Select(canFill, charge, zero); err != nil {
		return err
	}
	refund, err := s.Select(owes, zero, refundRaw)
	if err != nil {
		return err
	}
	if refund, err = s.Select(canFill, refund, zero); err != nil {
		return err
	}

	// Collect the charge. The amount actually sent is the success signal: if
	// the bidder's balance fell short, sent is zero and the whole bid
	// collapses below.
	if err := s.Allow(charge, a.payment.Address()); err != nil {
		return err
	}
	sent, err := a.payment.Transfer(a.escrow, bidder, a.escrow, charge)
	if err != nil {
		return fmt.Errorf("charge bid delta: %w", err)
	}
	paidOK, err := s.Eq(sent, charge)
	if err != nil {
		return err
	}

	// Refund leg, gated on the charge having settled.
	refundDue, err := s.Select(paidOK, refund, zero)
	if err != nil {
		return err
	}
	if err := s.Allow(refundDue, a.payment.Address()); err != nil {
		return err
	}
	if _, err := a.payment.Transfer(a.escrow, a.escrow, bidder, refundDue); err != nil {
		return fmt.Errorf("refund bid delta: %w", err)
	}

	// Commit the selected outcome.
	finalTokens, err := s.Select(paidOK, newTokens, oldTokens)
	if err != nil {
		return err
	}
	paidIfFilled, err := s.Select(canFill, totalValue, oldPaid)
	if err != nil {
		return err
	}
	finalPaid, err := s.Select(paidOK, paidIfFilled, oldPaid)
	if err != nil {
		return err
	}
	soldLeft, err := s.Sub(a.tokensLeft, toBuy)
	if err != nil {
		return err
	}
	newLeft, err := s.Select(paidOK, soldLeft, a.tokensLeft)
	if err != nil {
		return err
	}

	for _, grant := range []struct {
		v   encint.Value
		who core.Address
	}{
		{finalTokens, a.escrow}, {finalTokens, bidder},
		{finalPaid, a.escrow}, {finalPaid, bidder},
		{newLeft, a.escrow},
	} {
		if err := s.Allow(grant.v, grant.who); err != nil {
			return err
		}
	}

	a.bids[bidder] = position{tokens: finalTokens, paid: finalPaid}
	a.tokensLeft = newLeft
	return nil
}

// Stop forces the auction to end immediately, freezing the settlement price
// at the stop time. Only valid when constructed stoppable.
func (a *Auction) Stop(now uint64, caller core.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return core.ErrNotStarted
	}
	if a.cancelled || a.ended(now) {
		return core.ErrTooLate
	}
	if caller != a.params.Seller {
		return core.ErrNotSeller
	}
	if !a.params.Stoppable {
		return core.ErrNotStoppable
	}

	a.stopped = true
	a.stoppedAt = now
	return nil
}

// CancelAuction aborts an active auction, returning the unsold tokens to the
// seller. Open positions stay claimable and unwind in full.
func (a *Auction) CancelAuction(now uint64, caller core.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return core.ErrNotStarted
	}
	if a.cancelled || a.ended(now) {
		return core.ErrTooLate
	}
	if caller != a.params.Seller {
		return core.ErrNotSeller
	}

	s := a.eng.Scope(a.escrow)
	if err := s.Allow(a.tokensLeft, a.sale.Address()); err != nil {
		return err
	}
	if _, err := a.sale.Transfer(a.escrow, a.escrow, a.params.Seller, a.tokensLeft); err != nil {
		return fmt.Errorf("return unsold tokens: %w", err)
	}

	zero, err := s.Encrypt(0)
	if err != nil {
		return err
	}
	if err := s.Allow(zero, a.escrow); err != nil {
		return err
	}

	a.tokensLeft = zero
	a.cancelled = true
	return nil
}
