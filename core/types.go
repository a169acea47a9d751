package core

// Address identifies an account on the token ledgers: a seller, a bidder,
// an auction's escrow account, or the decryption oracle.
type Address string

// Zero is the empty address. Ledgers treat it as invalid.
const Zero Address = ""

// UserBid is the read-only view of a bidder's cumulative position.
type UserBid struct {
	// TokenAmount is the total number of tokens the bidder has committed to,
	// across all of their bids.
	TokenAmount uint64 `json:"token_amount"`

	// PaidAmount is the total payment held in escrow for this bidder,
	// valued at the price of their most recent bid.
	PaidAmount uint64 `json:"paid_amount"`
}
