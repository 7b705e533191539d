// Package ledger is the core-banking gateway: debits, freezes, FX bookings and
// their reversals.
package ledger

import (
	"context"
	"errors"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
)

// ErrRejected is returned when the core-banking system refuses a request.
var ErrRejected = errors.New("rejected by core banking")

// Request books or freezes a subscription. Amount is the subscription amount
// and Fee is charged on top of it.
type Request struct {
	SerialNumber  string
	CustomerID    string
	AccountNumber string
	ProductCode   string
	Amount        sharedDomain.Money
	Fee           sharedDomain.Money
	// SourceCurrency and TargetCurrency are the account and product
	// currencies of an exchange booking.
	SourceCurrency string
	TargetCurrency string
	Type           string
	Description    string
}

// Result identifies the booking or freeze at the core-banking system.
type Result struct {
	TransactionID string
}

// ReversalRequest undoes a direct booking.
type ReversalRequest struct {
	SerialNumber  string
	TransactionID string
	AccountNumber string
	Amount        sharedDomain.Money
	Fee           sharedDomain.Money
	Reason        string
}

// UnfreezeRequest releases a freeze.
type UnfreezeRequest struct {
	SerialNumber  string
	FreezeID      string
	AccountNumber string
	Amount        sharedDomain.Money
	Fee           sharedDomain.Money
	Reason        string
}

// Gateway is the core-banking system.
type Gateway interface {
	Accounting(ctx context.Context, req Request) (Result, error)
	Freeze(ctx context.Context, req Request) (Result, error)
	Unfreeze(ctx context.Context, req UnfreezeRequest) error
	ExchangeAndAccount(ctx context.Context, req Request) (Result, error)
	Reversal(ctx context.Context, req ReversalRequest) error
}
