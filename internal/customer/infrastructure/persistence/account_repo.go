// Package persistence stores customer accounts.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/customer/domain"
	productDomain "github.com/felixgeelhaar/fundsaga/internal/product/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database"
)

// AccountRepository implements domain.Repository.
type AccountRepository struct {
	conn database.Connection
}

// NewAccountRepository creates a new customer account repository.
func NewAccountRepository(conn database.Connection) *AccountRepository {
	return &AccountRepository{conn: conn}
}

var _ domain.Repository = (*AccountRepository)(nil)

// Save inserts or replaces an account.
func (r *AccountRepository) Save(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO customer_accounts (
			customer_id, name, customer_type, account_number, currency, status,
			risk_tolerance, suitability_expired, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (customer_id) DO UPDATE SET
			name = excluded.name,
			customer_type = excluded.customer_type,
			account_number = excluded.account_number,
			currency = excluded.currency,
			status = excluded.status,
			risk_tolerance = excluded.risk_tolerance,
			suitability_expired = excluded.suitability_expired,
			updated_at = excluded.updated_at`

	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		a.CustomerID, a.Name, string(a.Type), a.AccountNumber, a.CurrencyCode, string(a.Status),
		a.RiskTolerance.Int(), a.SuitabilityExpired, database.FormatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save customer %s: %w", a.CustomerID, err)
	}
	return nil
}

// FindByCustomerID loads an account.
func (r *AccountRepository) FindByCustomerID(ctx context.Context, customerID string) (*domain.Account, error) {
	query := `SELECT customer_id, name, customer_type, account_number, currency, status,
			risk_tolerance, suitability_expired
		FROM customer_accounts WHERE customer_id = ?`

	var (
		a                    domain.Account
		customerType, status string
		tolerance            int
	)
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, customerID).Scan(
		&a.CustomerID, &a.Name, &customerType, &a.AccountNumber, &a.CurrencyCode, &status,
		&tolerance, &a.SuitabilityExpired,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, err
	}

	a.Type = domain.CustomerType(customerType)
	a.Status = domain.AccountStatus(status)
	if a.RiskTolerance, err = productDomain.NewRiskLevel(tolerance); err != nil {
		return nil, err
	}
	return &a, nil
}
