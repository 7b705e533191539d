package domain

import (
	"context"
	"errors"
)

// ErrProductNotFound is returned when no product exists for a code.
var ErrProductNotFound = errors.New("product not found")

// Repository provides access to the product catalogue.
type Repository interface {
	Save(ctx context.Context, product *FundProduct) error
	FindByCode(ctx context.Context, code string) (*FundProduct, error)
}
