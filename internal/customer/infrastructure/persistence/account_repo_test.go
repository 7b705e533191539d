package persistence_test

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/fundsaga/internal/customer/domain"
	"github.com/felixgeelhaar/fundsaga/internal/customer/infrastructure/persistence"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewAccountRepository(dbtest.NewConnection(t))

	account := &domain.Account{
		CustomerID:    "C001",
		Name:          "Li Wei",
		Type:          domain.CustomerIndividual,
		AccountNumber: "6222000011112222",
		CurrencyCode:  "CNY",
		Status:        domain.AccountActive,
		RiskTolerance: 4,
	}
	require.NoError(t, repo.Save(ctx, account))

	found, err := repo.FindByCustomerID(ctx, "C001")
	require.NoError(t, err)
	assert.Equal(t, *account, *found)

	account.Status = domain.AccountFrozen
	account.SuitabilityExpired = true
	require.NoError(t, repo.Save(ctx, account))

	found, err = repo.FindByCustomerID(ctx, "C001")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountFrozen, found.Status)
	assert.True(t, found.SuitabilityExpired)
	assert.False(t, found.IsValid())
}

func TestAccountRepository_NotFound(t *testing.T) {
	repo := persistence.NewAccountRepository(dbtest.NewConnection(t))
	_, err := repo.FindByCustomerID(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)
}
