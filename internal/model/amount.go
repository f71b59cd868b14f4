package model

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by amounts, shares and prices.
const Scale = 6

var unitFactor = decimal.New(1, Scale)

// CheckScale fails when d has more fractional digits than Scale allows.
func CheckScale(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(Scale)) {
		return fmt.Errorf("%s has more than %d decimal places", d.String(), Scale)
	}
	return nil
}

// ToUnits converts d into an integer scaled by 10^Scale.
// Negative values and values that would lose precision are rejected.
func ToUnits(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", d.String())
	}
	if err := CheckScale(d); err != nil {
		return nil, err
	}
	return d.Mul(unitFactor).BigInt(), nil
}

// FromUnits converts an integer scaled by 10^Scale back into a decimal.
func FromUnits(units *big.Int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -Scale)
}
