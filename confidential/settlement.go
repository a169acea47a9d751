package confidential

import (
	"fmt"

	"github.com/cloudx-io/dutchauction/core"
)

// ClaimUser settles a bidder's position once the auction has ended: the
// committed tokens are delivered and paid minus finalPrice*tokens refunded.
// The refund cannot underflow because every paidAmount was computed at a
// price no lower than the final one. After a cancellation the position
// unwinds instead: full refund to the bidder, committed tokens back to the
// seller.
func (a *Auction) ClaimUser(now uint64, bidder core.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return core.ErrNotStarted
	}
	if !a.cancelled && !a.ended(now) {
		return core.ErrTooEarly
	}
	if deadline, ok := a.params.ClaimsExpireAt(); ok && now >= deadline {
		return core.ErrTooLate
	}

	pos, ok := a.bids[bidder]
	if !ok {
		return core.ErrNothingToClaim
	}

	s := a.eng.Scope(a.escrow)

	if a.cancelled {
		if err := s.Allow(pos.paid, a.payment.Address()); err != nil {
			return err
		}
		if _, err := a.payment.Transfer(a.escrow, a.escrow, bidder, pos.paid); err != nil {
			return fmt.Errorf("refund cancelled bid: %w", err)
		}
		if err := s.Allow(pos.tokens, a.sale.Address()); err != nil {
			return err
		}
		if _, err := a.sale.Transfer(a.escrow, a.escrow, a.params.Seller, pos.tokens); err != nil {
			return fmt.Errorf("return cancelled tokens: %w", err)
		}
		delete(a.bids, bidder)
		return nil
	}

	finalCost, err := s.MulScalar(pos.tokens, a.finalPrice(now))
	if err != nil {
		return err
	}
	refund, err := s.Sub(pos.paid, finalCost)
	if err != nil {
		return err
	}

	if err := s.Allow(refund, a.payment.Address()); err != nil {
		return err
	}
	if _, err := a.payment.Transfer(a.escrow, a.escrow, bidder, refund); err != nil {
		return fmt.Errorf("refund price difference: %w", err)
	}
	if err := s.Allow(pos.tokens, a.sale.Address()); err != nil {
		return err
	}
	if _, err := a.sale.Transfer(a.escrow, a.escrow, bidder, pos.tokens); err != nil {
		return fmt.Errorf("deliver tokens: %w", err)
	}

	delete(a.bids, bidder)
	return nil
}

// ClaimSeller pays the seller finalPrice*sold plus the unsold tokens, where
// sold is the funded stock minus tokensLeft. Bidder-owed escrow is untouched
// while claims remain open; once the claims deadline has passed a further
// call sweeps the forfeited residue on both ledgers.
func (a *Auction) ClaimSeller(now uint64, caller core.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return core.ErrNotStarted
	}
	if a.cancelled {
		if caller != a.params.Seller {
			return core.ErrNotSeller
		}
		if deadline, ok := a.params.ClaimsExpireAt(); ok && now >= deadline && !a.residueSwept {
			if err := a.sweepResidue(); err != nil {
				return err
			}
			a.residueSwept = true
			return nil
		}
		return core.ErrNothingToClaim
	}
	if !a.ended(now) {
		return core.ErrTooEarly
	}
	if caller != a.params.Seller {
		return core.ErrNotSeller
	}

	claimed := false

	if !a.sellerClaimed {
		s := a.eng.Scope(a.escrow)

		sold, err := s.Sub(a.initialStock, a.tokensLeft)
		if err != nil {
			return err
		}
		proceeds, err := s.MulScalar(sold, a.finalPrice(now))
		if err != nil {
			return err
		}

		if err := s.Allow(proceeds, a.payment.Address()); err != nil {
			return err
		}
		if _, err := a.payment.Transfer(a.escrow, a.escrow, a.params.Seller, proceeds); err != nil {
			return fmt.Errorf("pay seller proceeds: %w", err)
		}
		if err := s.Allow(a.tokensLeft, a.sale.Address()); err != nil {
			return err
		}
		if _, err := a.sale.Transfer(a.escrow, a.escrow, a.params.Seller, a.tokensLeft); err != nil {
			return fmt.Errorf("return unsold tokens: %w", err)
		}

		a.sellerClaimed = true
		claimed = true
	}

	if deadline, ok := a.params.ClaimsExpireAt(); ok && now >= deadline && !a.residueSwept {
		if err := a.sweepResidue(); err != nil {
			return err
		}
		a.residueSwept = true
		claimed = true
	}

	if !claimed {
		return core.ErrNothingToClaim
	}
	return nil
}

// sweepResidue moves whatever escrow still holds on both ledgers to the
// seller. Only called once the claims deadline has forfeited late claims.
func (a *Auction) sweepResidue() error {
	s := a.eng.Scope(a.escrow)

	for _, ledger := range []Ledger{a.payment, a.sale} {
		bal, ok := ledger.BalanceOf(a.escrow)
		if !ok {
			continue
		}
		if err := s.Allow(bal, ledger.Address()); err != nil {
			return err
		}
		if _, err := ledger.Transfer(a.escrow, a.escrow, a.params.Seller, bal); err != nil {
			return fmt.Errorf("sweep escrow residue: %w", err)
		}
	}
	return nil
}
