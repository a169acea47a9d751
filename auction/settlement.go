package auction

import (
	"fmt"

	"github.com/cloudx-io/dutchauction/core"
)

// ClaimUser settles a bidder's position once the auction has ended: the
// bidder receives their committed tokens plus the difference between what
// they paid and the final price of those tokens. The refund is never negative
// because paidAmount was always computed at a price no lower than the final
// one.
//
// After a cancellation the position is unwound instead: the bidder is
// refunded in full and their committed tokens go back to the seller.
//
// Claiming an already settled (or never opened) position fails with
// ErrNothingToClaim; no default-value transfer ever happens.
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

	bid, ok := a.bids[bidder]
	if !ok {
		return core.ErrNothingToClaim
	}

	if a.cancelled {
		if err := a.payment.Transfer(a.escrow, bidder, bid.PaidAmount); err != nil {
			return fmt.Errorf("refund cancelled bid: %w", err)
		}
		if err := a.sale.Transfer(a.escrow, a.params.Seller, bid.TokenAmount); err != nil {
			return fmt.Errorf("return cancelled tokens: %w", err)
		}
		delete(a.bids, bidder)
		return nil
	}

	finalCost, err := core.Cost(a.finalPrice(now), bid.TokenAmount)
	if err != nil {
		return err
	}
	refund := bid.PaidAmount - finalCost

	if err := a.payment.Transfer(a.escrow, bidder, refund); err != nil {
		return fmt.Errorf("refund price difference: %w", err)
	}
	if err := a.sale.Transfer(a.escrow, bidder, bid.TokenAmount); err != nil {
		return fmt.Errorf("deliver tokens: %w", err)
	}

	delete(a.bids, bidder)
	return nil
}

// ClaimSeller pays the seller once the auction has ended. The seller receives
// exactly finalPrice*sold of the payment token plus the unsold tokens; the
// remaining payment balance is bidder-owed escrow and is never swept while
// claims are still open. When a claims deadline exists and has passed, a
// further call sweeps whatever forfeited residue remains on both ledgers.
func (a *Auction) ClaimSeller(now uint64, caller core.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return core.ErrNotStarted
	}
	if a.cancelled {
		// Unsold tokens were already returned at cancellation; bidder escrow
		// is owed back to the bidders until the claims deadline forfeits it.
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
		sold := a.params.TotalAmount - a.tokensLeft
		proceeds, err := core.Cost(a.finalPrice(now), sold)
		if err != nil {
			return err
		}

		if err := a.payment.Transfer(a.escrow, a.params.Seller, proceeds); err != nil {
			return fmt.Errorf("pay seller proceeds: %w", err)
		}
		if err := a.sale.Transfer(a.escrow, a.params.Seller, a.tokensLeft); err != nil {
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

// sweepResidue moves everything still held in escrow to the seller. Only
// called after the claims deadline, when late bidders have forfeited.
func (a *Auction) sweepResidue() error {
	if rest := a.payment.BalanceOf(a.escrow); rest > 0 {
		if err := a.payment.Transfer(a.escrow, a.params.Seller, rest); err != nil {
			return fmt.Errorf("sweep payment residue: %w", err)
		}
	}
	if rest := a.sale.BalanceOf(a.escrow); rest > 0 {
		if err := a.sale.Transfer(a.escrow, a.params.Seller, rest); err != nil {
			return fmt.Errorf("sweep token residue: %w", err)
		}
	}
	return nil
}
