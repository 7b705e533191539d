package domain

import (
	"context"
	"time"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/google/uuid"
)

// ShareStatusActive is the status of a freshly opened holding.
const ShareStatusActive = "ACTIVE"

// ShareRecord is a customer's holding in a product. It is opened empty on the
// first subscription; shares are credited by confirmation, outside this service.
type ShareRecord struct {
	ID              uuid.UUID
	CustomerID      string
	ProductCode     string
	TotalShares     sharedDomain.Money
	AvailableShares sharedDomain.Money
	FrozenShares    sharedDomain.Money
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewShareRecord opens a zero-balance holding.
func NewShareRecord(customerID, productCode, currency string) (*ShareRecord, error) {
	zero, err := sharedDomain.ZeroMoney(currency)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &ShareRecord{
		ID:              uuid.New(),
		CustomerID:      customerID,
		ProductCode:     productCode,
		TotalShares:     zero,
		AvailableShares: zero,
		FrozenShares:    zero,
		Status:          ShareStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ShareRepository persists share records.
type ShareRepository interface {
	// Save inserts the record; an existing holding for the same customer and product is left as is.
	Save(ctx context.Context, record *ShareRecord) error
	Find(ctx context.Context, customerID, productCode string) (*ShareRecord, error)
}
