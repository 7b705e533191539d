// Package coupon is the marketing-system gateway for coupon trial,
// consumption and return.
package coupon

import (
	"context"
	"errors"

	marketingDomain "github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
)

// ErrRejected is returned when the marketing system refuses a request.
var ErrRejected = errors.New("rejected by marketing")

// TrialRequest asks how a coupon applies to a subscription fee.
type TrialRequest struct {
	CustomerID  string
	CouponID    string
	ProductCode string
	Amount      sharedDomain.Money
	OriginalFee sharedDomain.Money
}

// UseRequest consumes a coupon for a subscription.
type UseRequest struct {
	SerialNumber string
	CustomerID   string
	CouponID     string
	ProductCode  string
	OriginalFee  sharedDomain.Money
	FinalFee     sharedDomain.Money
}

// ReturnRequest hands a consumed coupon back.
type ReturnRequest struct {
	SerialNumber string
	CustomerID   string
	CouponID     string
	UsageID      string
	Reason       string
}

// Gateway is the marketing system.
type Gateway interface {
	TrialCalculate(ctx context.Context, req TrialRequest) (marketingDomain.CouponInfo, error)
	// UseCoupon returns the usage id the marketing system assigned.
	UseCoupon(ctx context.Context, req UseRequest) (string, error)
	ReturnCoupon(ctx context.Context, req ReturnRequest) error
}
