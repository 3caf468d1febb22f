// Package valuation converts raw asset quantities into USD6, a fixed-point
// dollar value with six implied decimals.
package valuation

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// USD6Decimals is the number of implied decimals of a USD6 value.
const USD6Decimals = 6

// maxPow10 is the largest n for which 10^n fits in 256 bits.
const maxPow10 = 77

// ErrOverflow is returned when a valuation does not fit in 256 bits.
var ErrOverflow = errors.New("valuation overflow")

var (
	usd6Unit = uint256.NewInt(1_000_000)
	pow10    = buildPow10()
)

func buildPow10() [maxPow10 + 1]*uint256.Int {
	var t [maxPow10 + 1]*uint256.Int
	t[0] = uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := 1; i <= maxPow10; i++ {
		t[i] = new(uint256.Int).Mul(t[i-1], ten)
	}
	return t
}

// Pow10 returns 10^n, or ErrOverflow when it does not fit in 256 bits.
func Pow10(n uint8) (*uint256.Int, error) {
	if int(n) > maxPow10 {
		return nil, fmt.Errorf("%w: 10^%d", ErrOverflow, n)
	}
	return new(uint256.Int).Set(pow10[n]), nil
}

// ToUSD6 values amount (in the asset's smallest unit) at price (with
// priceDecimals implied decimals):
//
//	usd6 = amount * price * 1e6 / (10^assetDecimals * 10^priceDecimals)
//
// The product is carried in 512 bits and the quotient truncates toward zero.
// Dividing by the two powers in sequence gives the same floor as dividing by
// their product, so the combined exponent may exceed 77.
func ToUSD6(assetDecimals uint8, price *uint256.Int, priceDecimals uint8, amount *uint256.Int) (*uint256.Int, error) {
	if price == nil || amount == nil {
		return nil, errors.New("price and amount are required")
	}
	assetScale, err := Pow10(assetDecimals)
	if err != nil {
		return nil, err
	}
	priceScale, err := Pow10(priceDecimals)
	if err != nil {
		return nil, err
	}

	scaledPrice, overflow := new(uint256.Int).MulOverflow(price, usd6Unit)
	if overflow {
		return nil, fmt.Errorf("%w: price %s", ErrOverflow, price.Dec())
	}

	q, overflow := new(uint256.Int).MulDivOverflow(amount, scaledPrice, assetScale)
	if overflow {
		return nil, fmt.Errorf("%w: amount %s at price %s", ErrOverflow, amount.Dec(), price.Dec())
	}
	return q.Div(q, priceScale), nil
}
