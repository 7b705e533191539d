package domain

import (
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/shopspring/decimal"
)

// effectiveRateScale is the number of digits kept for the effective fee rate.
const effectiveRateScale = 6

// FeeCalculation is the fee breakdown for a subscription. FinalFee always
// equals OriginalFee minus Discount, all in the subscription currency.
type FeeCalculation struct {
	Amount      sharedDomain.Money
	Rate        decimal.Decimal
	OriginalFee sharedDomain.Money
	Discount    sharedDomain.Money
	FinalFee    sharedDomain.Money
}

// CalculateFee computes the flat-rate fee with no discount.
func CalculateFee(amount sharedDomain.Money, rate decimal.Decimal) FeeCalculation {
	fee := amount.Multiply(rate)
	zero, _ := sharedDomain.NewMoney(decimal.Zero, amount.Currency())
	return FeeCalculation{
		Amount:      amount,
		Rate:        rate,
		OriginalFee: fee,
		Discount:    zero,
		FinalFee:    fee,
	}
}

// CalculateFeeWithCoupon computes the fee after applying a coupon.
func CalculateFeeWithCoupon(amount sharedDomain.Money, rate decimal.Decimal, coupon CouponInfo) (FeeCalculation, error) {
	original := amount.Multiply(rate)
	final, err := sharedDomain.NewMoney(coupon.DiscountedFee(original.Amount()), amount.Currency())
	if err != nil {
		return FeeCalculation{}, err
	}
	discount, err := original.Subtract(final)
	if err != nil {
		return FeeCalculation{}, err
	}
	return FeeCalculation{
		Amount:      amount,
		Rate:        rate,
		OriginalFee: original,
		Discount:    discount,
		FinalFee:    final,
	}, nil
}

// EffectiveRate returns FinalFee / Amount rounded half-up to six digits.
func (f FeeCalculation) EffectiveRate() decimal.Decimal {
	if f.Amount.IsZero() {
		return decimal.Zero
	}
	return f.FinalFee.Amount().DivRound(f.Amount.Amount(), effectiveRateScale)
}

// TotalDeduction is the amount plus the final fee.
func (f FeeCalculation) TotalDeduction() (sharedDomain.Money, error) {
	return f.Amount.Add(f.FinalFee)
}
