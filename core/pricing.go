package core

import (
	"github.com/holiman/uint256"
)

// UnitPrice computes the current price per token at the given time.
//
// The price decays linearly from StartingPrice by DiscountRate per second,
// never dropping below ReservePrice, and is pinned to ReservePrice once the
// bidding window has expired. Before StartAt the price is StartingPrice.
// The result is monotonically non-increasing in now.
func UnitPrice(now uint64, p Params) uint64 {
	if now >= p.ExpiresAt() {
		return p.ReservePrice
	}

	var elapsed uint64
	if now > p.StartAt {
		elapsed = now - p.StartAt
	}

	// discountRate*elapsed computed wide: the product can exceed 64 bits for
	// adversarial params even though validated ones keep it in range.
	discount := new(uint256.Int).Mul(
		uint256.NewInt(p.DiscountRate),
		uint256.NewInt(elapsed),
	)

	var raw uint64
	if discount.CmpUint64(p.StartingPrice) < 0 {
		raw = p.StartingPrice - discount.Uint64()
	}

	if raw < p.ReservePrice {
		return p.ReservePrice
	}
	return raw
}

// Cost returns price*tokens, failing with ErrAmountOverflow when the product
// does not fit the 64-bit ledger width.
func Cost(price, tokens uint64) (uint64, error) {
	product := new(uint256.Int).Mul(uint256.NewInt(price), uint256.NewInt(tokens))
	if !product.IsUint64() {
		return 0, ErrAmountOverflow
	}
	return product.Uint64(), nil
}
