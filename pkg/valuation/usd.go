package valuation

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseUSD converts a dollar amount such as "1000" or "250.50" into USD6.
// Sub-micro-dollar precision and negative values are rejected.
func ParseUSD(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid USD amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid USD amount %q: negative", s)
	}
	scaled := d.Shift(USD6Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("invalid USD amount %q: more than %d decimals", s, USD6Decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("invalid USD amount %q: %w", s, ErrOverflow)
	}
	return v, nil
}

// FormatUSD renders a USD6 value as a dollar string with six decimals.
func FormatUSD(usd6 *uint256.Int) string {
	if usd6 == nil {
		return "0.000000"
	}
	return decimal.NewFromBigInt(usd6.ToBig(), -USD6Decimals).StringFixed(USD6Decimals)
}

// FormatUnits renders a raw quantity with the given number of decimals.
func FormatUnits(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}
