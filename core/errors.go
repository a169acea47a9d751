package core

import "errors"

// Construction-invariant violations. Fatal: the auction cannot be created.
var (
	// ErrStartingPriceTooLow means the starting price cannot cover the full
	// linear decay while staying above the reserve price.
	ErrStartingPriceTooLow = errors.New("starting price below discount over full duration plus reserve")

	// ErrInvalidAmount means a token amount is zero or does not fit the ledger width.
	ErrInvalidAmount = errors.New("invalid token amount")

	// ErrInvalidReservePrice means the reserve price is zero.
	ErrInvalidReservePrice = errors.New("reserve price must be positive")

	// ErrInvalidDuration means the bidding window has zero length.
	ErrInvalidDuration = errors.New("auction duration must be positive")
)

// Lifecycle-guard violations. The operation reverts with no state change and
// may be retried by the caller once conditions change.
var (
	ErrTooEarly       = errors.New("operation not yet available")
	ErrTooLate        = errors.New("operation window has closed")
	ErrNotStarted     = errors.New("auction not started")
	ErrAlreadyStarted = errors.New("auction already started")
)

// Authorization and funds violations.
var (
	ErrNotSeller          = errors.New("caller is not the seller")
	ErrNotStoppable       = errors.New("auction was not created stoppable")
	ErrInsufficientTokens = errors.New("not enough tokens left")
	ErrNothingToClaim     = errors.New("nothing to claim")
	ErrAmountOverflow     = errors.New("amount exceeds 64-bit ledger width")
)
