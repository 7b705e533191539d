package domain

import (
	"context"
	"errors"
)

// ErrCustomerNotFound is returned when no account exists for a customer.
var ErrCustomerNotFound = errors.New("customer not found")

// Repository provides access to customer accounts.
type Repository interface {
	Save(ctx context.Context, account *Account) error
	FindByCustomerID(ctx context.Context, customerID string) (*Account, error)
}
