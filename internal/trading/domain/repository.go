package domain

import (
	"context"
	"time"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
)

// Repository persists transactions keyed by serial number.
type Repository interface {
	Save(ctx context.Context, txn *Transaction) error
	// Update writes the transaction if its stored version still matches and
	// bumps the version. A stale version yields ErrConcurrentModification.
	Update(ctx context.Context, txn *Transaction) error
	FindBySerialNumber(ctx context.Context, serial string) (*Transaction, error)
	HasExistingSubscription(ctx context.Context, customerID, productCode string) (bool, error)
	// FindNeedingCompensation returns FAILED transactions in a compensable saga state.
	FindNeedingCompensation(ctx context.Context, limit int) ([]*Transaction, error)
	// FindStuck returns non-terminal, non-FAILED transactions last updated before cutoff.
	FindStuck(ctx context.Context, cutoff time.Time, limit int) ([]*Transaction, error)
}

// QuotaCounter tracks the per-product daily subscription total.
type QuotaCounter interface {
	// Reserve adds amount to the product's total for day if the result stays
	// within limit. It returns false without changing anything otherwise.
	Reserve(ctx context.Context, productCode, day string, amount, limit sharedDomain.Money) (bool, error)
	// Release gives back a reservation made by Reserve.
	Release(ctx context.Context, productCode, day string, amount sharedDomain.Money) error
}

// QuotaDay formats the calendar day, in the venue time zone, used as quota key.
func QuotaDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}
