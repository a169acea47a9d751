package core

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const monetaryPrecision int32 = 4 // 4 decimal places: 1 display unit = 10000 base units

// FormatUnits renders base-unit amounts as a decimal string for wire and log
// output. Decimal arithmetic avoids floating-point drift on large ledger values.
func FormatUnits(units uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -monetaryPrecision).String()
}

// ParseUnits parses a decimal string into base units. The value must be
// non-negative, must not carry more than monetaryPrecision decimal places,
// and must fit the 64-bit ledger width.
func ParseUnits(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return 0, fmt.Errorf("amount %q is negative", s)
	}

	scaled := d.Shift(monetaryPrecision)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, monetaryPrecision)
	}

	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %q: %w", s, ErrAmountOverflow)
	}
	return bi.Uint64(), nil
}
