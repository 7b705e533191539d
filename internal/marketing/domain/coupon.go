package domain

import (
	"github.com/shopspring/decimal"
)

// CouponType distinguishes percentage coupons from fixed-amount coupons.
type CouponType string

const (
	CouponPercentage CouponType = "PERCENTAGE"
	CouponFixed      CouponType = "FIXED"
)

// CouponInfo is the outcome of a trial calculation at the marketing system.
// DiscountRate applies to percentage coupons, DiscountAmount to fixed ones.
type CouponInfo struct {
	CouponID       string
	Type           CouponType
	DiscountRate   *decimal.Decimal
	DiscountAmount *decimal.Decimal
}

// DiscountedFee applies the coupon to a fee. The result never drops below zero
// or exceeds the original fee.
func (c CouponInfo) DiscountedFee(fee decimal.Decimal) decimal.Decimal {
	var out decimal.Decimal
	switch {
	case c.DiscountRate != nil:
		out = fee.Mul(decimal.NewFromInt(1).Sub(*c.DiscountRate))
	case c.DiscountAmount != nil:
		out = fee.Sub(*c.DiscountAmount)
	default:
		return fee
	}
	if out.IsNegative() {
		return decimal.Zero
	}
	if out.GreaterThan(fee) {
		return fee
	}
	return out
}
