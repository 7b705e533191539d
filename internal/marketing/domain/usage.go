package domain

import (
	"context"
	"errors"
	"time"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/google/uuid"
)

// ErrUsageNotFound is returned when no coupon usage exists for a lookup.
var ErrUsageNotFound = errors.New("coupon usage not found")

// UsageStatus tracks whether a consumed coupon has been handed back.
type UsageStatus string

const (
	UsageUsed     UsageStatus = "USED"
	UsageReturned UsageStatus = "RETURNED"
)

// CouponUsage is the local record of a coupon consumed by a subscription.
type CouponUsage struct {
	ID           uuid.UUID
	SerialNumber string
	CustomerID   string
	CouponID     string
	UsageID      string
	OriginalFee  sharedDomain.Money
	Discount     sharedDomain.Money
	FinalFee     sharedDomain.Money
	Status       UsageStatus
	UsedAt       time.Time
	ReturnedAt   *time.Time
	CreatedAt    time.Time
}

// NewCouponUsage records a coupon consumed for the given subscription.
func NewCouponUsage(serial, customerID, couponID, usageID string, fee FeeCalculation) *CouponUsage {
	now := time.Now().UTC()
	return &CouponUsage{
		ID:           uuid.New(),
		SerialNumber: serial,
		CustomerID:   customerID,
		CouponID:     couponID,
		UsageID:      usageID,
		OriginalFee:  fee.OriginalFee,
		Discount:     fee.Discount,
		FinalFee:     fee.FinalFee,
		Status:       UsageUsed,
		UsedAt:       now,
		CreatedAt:    now,
	}
}

// MarkReturned flips the record to RETURNED. Returning twice is a no-op.
func (u *CouponUsage) MarkReturned() {
	if u.Status == UsageReturned {
		return
	}
	now := time.Now().UTC()
	u.Status = UsageReturned
	u.ReturnedAt = &now
}

// UsageRepository persists coupon usage records.
type UsageRepository interface {
	Save(ctx context.Context, usage *CouponUsage) error
	Update(ctx context.Context, usage *CouponUsage) error
	FindBySerialNumber(ctx context.Context, serial string) ([]*CouponUsage, error)
}
