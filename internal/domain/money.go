package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the number of minor units (cents) per currency unit.
const MinorUnitsPerMajor = 100

// ParseMajorAmount converts a major-unit decimal string ("0.20") to minor
// units. Amounts with sub-cent precision are rejected.
func ParseMajorAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}

	minor := d.Mul(decimal.NewFromInt(MinorUnitsPerMajor))
	if !minor.IsInteger() {
		return 0, fmt.Errorf("parse amount %q: more than two decimal places", s)
	}

	return minor.IntPart(), nil
}

// FormatMinorAmount renders minor units as a major-unit string ("2.00").
func FormatMinorAmount(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
