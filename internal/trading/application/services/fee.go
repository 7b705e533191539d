package services

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/fundsaga/internal/integration/coupon"
	marketingDomain "github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	productDomain "github.com/felixgeelhaar/fundsaga/internal/product/domain"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/resilience"
)

// FeeService computes subscription fees, asking the marketing system for a
// trial calculation when a coupon is presented.
type FeeService struct {
	coupons  coupon.Gateway
	breakers *resilience.Registry
}

// NewFeeService creates a fee service.
func NewFeeService(coupons coupon.Gateway, breakers *resilience.Registry) *FeeService {
	return &FeeService{coupons: coupons, breakers: breakers}
}

// Calculate returns the fee breakdown for amount under product's fee rate.
func (s *FeeService) Calculate(ctx context.Context, product *productDomain.FundProduct, customerID string, amount sharedDomain.Money, couponID string) (marketingDomain.FeeCalculation, error) {
	if couponID == "" {
		return marketingDomain.CalculateFee(amount, product.SubscriptionFeeRate), nil
	}

	original := amount.Multiply(product.SubscriptionFeeRate)
	info, err := resilience.Execute(ctx, s.breakers, resilience.BreakerMarketing, func(ctx context.Context) (marketingDomain.CouponInfo, error) {
		info, err := s.coupons.TrialCalculate(ctx, coupon.TrialRequest{
			CustomerID:  customerID,
			CouponID:    couponID,
			ProductCode: product.Code,
			Amount:      amount,
			OriginalFee: original,
		})
		if errors.Is(err, coupon.ErrRejected) {
			return info, sharedDomain.NewBusinessError(sharedDomain.CodeCouponTrialFailed, "Coupon trial calculation failed", err)
		}
		return info, err
	})
	if err != nil {
		return marketingDomain.FeeCalculation{}, marketingError(sharedDomain.CodeCouponTrialFailed, "Coupon trial calculation failed", err)
	}
	if info.CouponID == "" {
		info.CouponID = couponID
	}
	return marketingDomain.CalculateFeeWithCoupon(amount, product.SubscriptionFeeRate, info)
}

// marketingError classifies a failed marketing call. Business rejections
// pass through; outages become external errors.
func marketingError(code sharedDomain.ErrorCode, message string, err error) error {
	if appErr, ok := sharedDomain.AsAppError(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return sharedDomain.NewExternalError(sharedDomain.CodeExternalSystemTimeout, "Marketing system unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		return sharedDomain.NewExternalError(sharedDomain.CodeExternalSystemTimeout, "Marketing system timed out", err)
	default:
		return sharedDomain.NewExternalError(code, message, err)
	}
}
