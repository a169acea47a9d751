// Package auction implements the plaintext Dutch auction: a linearly decaying
// price, cumulative per-bidder positions repriced on every bid, and claim
// based settlement once the bidding window has closed.
package auction

import (
	"fmt"
	"sync"

	"github.com/cloudx-io/dutchauction/core"
)

// Ledger is the fungible token collaborator the auction escrows against.
// Implementations must either fully apply a transfer or leave both balances
// untouched.
type Ledger interface {
	Transfer(from, to core.Address, amount uint64) error
	BalanceOf(owner core.Address) uint64
}

// Auction is the singleton auction aggregate. It owns all bid records and the
// escrow account on both ledgers. Every exported method executes atomically
// with respect to the others; timestamps are supplied by the caller as unix
// seconds, matching a deterministic ledger execution environment.
type Auction struct {
	mu sync.Mutex

	params core.Params
	escrow core.Address

	sale    Ledger // token being sold
	payment Ledger // token bids are paid in

	bids       map[core.Address]core.UserBid
	tokensLeft uint64

	started   bool
	stopped   bool
	stoppedAt uint64
	cancelled bool

	sellerClaimed bool
	residueSwept  bool
}

// New validates the construction invariants and creates an auction whose
// escrow account is distinct from the seller.
func New(params core.Params, escrow core.Address, sale, payment Ledger) (*Auction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if escrow == core.Zero || escrow == params.Seller {
		return nil, fmt.Errorf("escrow account %q: %w", escrow, core.ErrNotSeller)
	}
	if sale == nil || payment == nil {
		return nil, fmt.Errorf("auction requires both token ledgers")
	}

	return &Auction{
		params:  params,
		escrow:  escrow,
		sale:    sale,
		payment: payment,
		bids:    make(map[core.Address]core.UserBid),
	}, nil
}

// Params returns the immutable construction parameters.
func (a *Auction) Params() core.Params { return a.params }

// Escrow returns the auction's escrow account.
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

// TokensLeft returns the number of unsold tokens.
func (a *Auction) TokensLeft() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokensLeft
}

// Price returns the unit price at the given time.
func (a *Auction) Price(now uint64) uint64 {
	return core.UnitPrice(now, a.params)
}

// UserBid returns the bidder's cumulative position. A bidder with no open
// position gets the zero view.
func (a *Auction) UserBid(bidder core.Address) core.UserBid {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bids[bidder]
}

// ended is the time-gated predicate for the Ended state. Never stored,
// re-evaluated on every access.
func (a *Auction) ended(now uint64) bool {
	return a.stopped || now >= a.params.ExpiresAt()
}

// finalPrice is the settlement price per token. A manual stop freezes the
// price at the stop time; otherwise claims only happen past expiry, where the
// price has reached the reserve.
func (a *Auction) finalPrice(now uint64) uint64 {
	if a.stopped {
		return core.UnitPrice(a.stoppedAt, a.params)
	}
	return core.UnitPrice(now, a.params)
}

// Initialize funds the auction: the seller escrows TotalAmount sale tokens
// and bidding opens. Callable exactly once.
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

	if err := a.sale.Transfer(a.params.Seller, a.escrow, a.params.TotalAmount); err != nil {
		return fmt.Errorf("escrow sale tokens: %w", err)
	}

	a.started = true
	a.tokensLeft = a.params.TotalAmount
	return nil
}

// Bid commits the bidder to n more tokens at the current unit price and
// reprices their whole position at that price.
//
// Given the previous position (oldTokens, oldPaid) and unit price P, the
// position becomes (oldTokens+n, P*(oldTokens+n)); the signed difference
// against oldPaid is settled immediately: a positive delta is charged to the
// bidder, a negative one refunded. A bid for more than tokensLeft is rejected
// whole; there are no partial fills.
func (a *Auction) Bid(now uint64, bidder core.Address, n uint64) error {
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
	if n == 0 {
		return core.ErrInvalidAmount
	}
	if n > a.tokensLeft {
		return core.ErrInsufficientTokens
	}

	old := a.bids[bidder]
	total := old.TokenAmount + n
	if total < old.TokenAmount {
		return core.ErrAmountOverflow
	}

	price := core.UnitPrice(now, a.params)
	totalValue, err := core.Cost(price, total)
	if err != nil {
		return err
	}

	// Settle the signed delta before mutating any auction state, so a failed
	// payment leaves the position and tokensLeft untouched.
	if totalValue >= old.PaidAmount {
		if err := a.payment.Transfer(bidder, a.escrow, totalValue-old.PaidAmount); err != nil {
			return fmt.Errorf("charge bid delta: %w", err)
		}
	} else {
		if err := a.payment.Transfer(a.escrow, bidder, old.PaidAmount-totalValue); err != nil {
			return fmt.Errorf("refund bid delta: %w", err)
		}
	}

	a.bids[bidder] = core.UserBid{TokenAmount: total, PaidAmount: totalValue}
	a.tokensLeft -= n
	return nil
}

// Stop forces the auction to end immediately. Only valid when the auction was
// constructed stoppable.
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

// CancelAuction aborts an active auction and returns the unsold tokens to the
// seller. Open bidder positions stay claimable: ClaimUser refunds them in
// full after cancellation.
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

	if err := a.sale.Transfer(a.escrow, a.params.Seller, a.tokensLeft); err != nil {
		return fmt.Errorf("return unsold tokens: %w", err)
	}

	a.cancelled = true
	a.tokensLeft = 0
	return nil
}
