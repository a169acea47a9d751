package core

import (
	"github.com/holiman/uint256"
)

// Params holds the immutable construction parameters of a Dutch auction.
// All prices are payment-token base units per auctioned token; all timestamps
// are unix seconds; DiscountRate is base units of price decay per second.
type Params struct {
	Seller Address `json:"seller"`

	StartingPrice uint64 `json:"starting_price"`
	DiscountRate  uint64 `json:"discount_rate"`
	ReservePrice  uint64 `json:"reserve_price"`

	// StartAt is when the price decay begins. Duration is the length of the
	// bidding window; the auction expires at StartAt+Duration.
	StartAt  uint64 `json:"start_at"`
	Duration uint64 `json:"duration"`

	// ClaimWindow, when non-zero, bounds how long after expiry claims are
	// accepted. Zero means claims never expire.
	ClaimWindow uint64 `json:"claim_window,omitempty"`

	// TotalAmount is the number of tokens offered for sale.
	TotalAmount uint64 `json:"total_amount"`

	// Stoppable allows the seller to force the auction to end early.
	Stoppable bool `json:"stoppable,omitempty"`
}

// ExpiresAt returns the end of the bidding window.
func (p Params) ExpiresAt() uint64 {
	return p.StartAt + p.Duration
}

// ClaimsExpireAt returns the claims deadline and whether one exists.
func (p Params) ClaimsExpireAt() (uint64, bool) {
	if p.ClaimWindow == 0 {
		return 0, false
	}
	return p.ExpiresAt() + p.ClaimWindow, true
}

// Validate checks the construction invariants. An auction must never be
// created from params that fail validation.
func (p Params) Validate() error {
	if p.Seller == Zero {
		return ErrNotSeller
	}
	if p.TotalAmount == 0 {
		return ErrInvalidAmount
	}
	if p.Duration == 0 {
		return ErrInvalidDuration
	}
	if p.ReservePrice == 0 {
		return ErrInvalidReservePrice
	}
	if p.StartingPrice <= p.ReservePrice {
		return ErrStartingPriceTooLow
	}

	// startingPrice >= discountRate*duration + reservePrice, computed wide so
	// the product cannot overflow before the comparison.
	floor := new(uint256.Int).Mul(
		uint256.NewInt(p.DiscountRate),
		uint256.NewInt(p.Duration),
	)
	floor.Add(floor, uint256.NewInt(p.ReservePrice))
	if floor.CmpUint64(p.StartingPrice) > 0 {
		return ErrStartingPriceTooLow
	}

	return nil
}
