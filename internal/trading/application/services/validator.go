package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	customerDomain "github.com/felixgeelhaar/fundsaga/internal/customer/domain"
	productDomain "github.com/felixgeelhaar/fundsaga/internal/product/domain"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
)

// SubscriptionRequest is the part of a subscription command the validator looks at.
type SubscriptionRequest struct {
	CustomerID    string
	AccountNumber string
	ProductCode   string
	Amount        sharedDomain.Money
	Channel       string
}

// ValidatedSubscription carries what validation loaded and reserved.
type ValidatedSubscription struct {
	Product   *productDomain.FundProduct
	Account   *customerDomain.Account
	FirstTime bool
	// QuotaDay is the day the quota was reserved against.
	QuotaDay string
	// ReservedAt is the clock reading QuotaDay was cut from.
	ReservedAt time.Time
}

// SubscriptionValidator checks a subscription request and reserves daily quota.
type SubscriptionValidator struct {
	products     productDomain.Repository
	customers    customerDomain.Repository
	transactions domain.Repository
	quota        domain.QuotaCounter
	location     *time.Location
	now          func() time.Time
}

// NewSubscriptionValidator creates a validator. Quota days are cut in loc.
func NewSubscriptionValidator(
	products productDomain.Repository,
	customers customerDomain.Repository,
	transactions domain.Repository,
	quota domain.QuotaCounter,
	loc *time.Location,
) *SubscriptionValidator {
	return &SubscriptionValidator{
		products:     products,
		customers:    customers,
		transactions: transactions,
		quota:        quota,
		location:     loc,
		now:          time.Now,
	}
}

// WithClock replaces the clock used to pick the quota day.
func (v *SubscriptionValidator) WithClock(now func() time.Time) *SubscriptionValidator {
	if now != nil {
		v.now = now
	}
	return v
}

// Validate runs the checks in order: product, customer, risk, amount, quota.
// The first failing check is returned as a validation error. On success the
// daily quota has been reserved and must be released if the saga fails
// before money moves.
func (v *SubscriptionValidator) Validate(ctx context.Context, req SubscriptionRequest) (*ValidatedSubscription, error) {
	if req.CustomerID == "" || req.ProductCode == "" || req.AccountNumber == "" {
		return nil, sharedDomain.NewValidationError(sharedDomain.CodeInvalidParameter, "Customer, account and product are required")
	}

	product, err := v.products.FindByCode(ctx, req.ProductCode)
	if errors.Is(err, productDomain.ErrProductNotFound) {
		return nil, sharedDomain.NewValidationError(sharedDomain.CodeProductNotFound, fmt.Sprintf("Product %s not found", req.ProductCode))
	}
	if err != nil {
		return nil, err
	}
	if err := product.CheckSubscribable(req.Channel); err != nil {
		return nil, err
	}

	account, err := v.customers.FindByCustomerID(ctx, req.CustomerID)
	if errors.Is(err, customerDomain.ErrCustomerNotFound) {
		return nil, sharedDomain.NewValidationError(sharedDomain.CodeCustomerNotFound, fmt.Sprintf("Customer %s not found", req.CustomerID))
	}
	if err != nil {
		return nil, err
	}
	if err := account.CheckValid(req.AccountNumber); err != nil {
		return nil, err
	}
	if err := account.CheckRisk(product.RiskLevel); err != nil {
		return nil, err
	}

	existing, err := v.transactions.HasExistingSubscription(ctx, req.CustomerID, req.ProductCode)
	if err != nil {
		return nil, err
	}
	firstTime := !existing
	if err := product.CheckAmount(req.Amount, firstTime); err != nil {
		return nil, err
	}

	at := v.now()
	day := domain.QuotaDay(at, v.location)
	ok, err := v.quota.Reserve(ctx, product.Code, day, req.Amount, product.DailyQuota)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sharedDomain.NewValidationError(sharedDomain.CodeQuotaExceeded,
			fmt.Sprintf("Daily quota for product %s exceeded", product.Code))
	}

	return &ValidatedSubscription{
		Product:    product,
		Account:    account,
		FirstTime:  firstTime,
		QuotaDay:   day,
		ReservedAt: at,
	}, nil
}

// ReleaseQuota hands back the reservation taken by Validate.
func (v *SubscriptionValidator) ReleaseQuota(ctx context.Context, vs *ValidatedSubscription, amount sharedDomain.Money) error {
	return v.quota.Release(ctx, vs.Product.Code, vs.QuotaDay, amount)
}

// ReleaseTransactionQuota hands back the reservation of a saved subscription,
// keyed by the day of its request time.
func (v *SubscriptionValidator) ReleaseTransactionQuota(ctx context.Context, txn *domain.Transaction) error {
	return v.quota.Release(ctx, txn.ProductCode(), domain.QuotaDay(txn.RequestTime(), v.location), txn.Amount())
}
