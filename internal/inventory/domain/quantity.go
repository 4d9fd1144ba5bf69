package domain

import "github.com/shopspring/decimal"

// Epsilon is the tonnage threshold below which a remainder counts as zero.
// Scale-house weights carry three decimals, so anything under a kilogram is noise.
var Epsilon = decimal.RequireFromString("0.001")

// NearZero reports whether q is within Epsilon of zero.
func NearZero(q decimal.Decimal) bool {
	return q.Abs().LessThanOrEqual(Epsilon)
}

// ValidQuantity reports whether q is a usable positive tonnage.
func ValidQuantity(q decimal.Decimal) bool {
	return q.IsPositive()
}
