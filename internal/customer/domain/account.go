package domain

import (
	"fmt"

	productDomain "github.com/felixgeelhaar/fundsaga/internal/product/domain"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
)

// AccountStatus is the operational status of a customer account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountFrozen    AccountStatus = "FROZEN"
	AccountClosed    AccountStatus = "CLOSED"
	AccountSuspended AccountStatus = "SUSPENDED"
)

// CustomerType segments customers.
type CustomerType string

const (
	CustomerIndividual     CustomerType = "INDIVIDUAL"
	CustomerCorporate      CustomerType = "CORPORATE"
	CustomerPrivateBanking CustomerType = "PRIVATE_BANKING"
)

// Account is a customer's settlement account together with its suitability profile.
type Account struct {
	CustomerID         string
	Name               string
	Type               CustomerType
	AccountNumber      string
	CurrencyCode       string
	Status             AccountStatus
	RiskTolerance      productDomain.RiskLevel
	SuitabilityExpired bool
}

// IsValid reports whether the account can transact.
func (a *Account) IsValid() bool {
	return a.Status == AccountActive && !a.SuitabilityExpired
}

// CanBuy reports whether the account may buy a product at the given risk level.
func (a *Account) CanBuy(level productDomain.RiskLevel) bool {
	return a.IsValid() && level.CompatibleWith(a.RiskTolerance)
}

// CheckValid validates status, suitability and, when given, the settlement account number.
func (a *Account) CheckValid(accountNumber string) error {
	if !a.IsValid() {
		return sharedDomain.NewValidationError(sharedDomain.CodeAccountInvalid,
			fmt.Sprintf("Customer account %s is invalid. Status: %s, Suitability expired: %t", a.CustomerID, a.Status, a.SuitabilityExpired))
	}
	if accountNumber != "" && accountNumber != a.AccountNumber {
		return sharedDomain.NewValidationError(sharedDomain.CodeAccountInvalid,
			fmt.Sprintf("Account %s does not belong to customer %s", accountNumber, a.CustomerID))
	}
	return nil
}

// CheckRisk validates the customer's tolerance against a product risk level.
func (a *Account) CheckRisk(level productDomain.RiskLevel) error {
	if !a.CanBuy(level) {
		return sharedDomain.NewValidationError(sharedDomain.CodeRiskLevelMismatch,
			fmt.Sprintf("Customer risk tolerance %d is lower than product risk level %d", a.RiskTolerance, level))
	}
	return nil
}
