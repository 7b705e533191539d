package services_test

import (
	"context"
	"testing"

	customerDomain "github.com/felixgeelhaar/fundsaga/internal/customer/domain"
	productDomain "github.com/felixgeelhaar/fundsaga/internal/product/domain"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/sagatest"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(amount string) services.SubscriptionRequest {
	return services.SubscriptionRequest{
		CustomerID:    sagatest.CustomerID,
		AccountNumber: sagatest.AccountNumber,
		ProductCode:   sagatest.ProductCNY,
		Amount:        sharedDomain.MustMoney(amount, "CNY"),
		Channel:       "WEB",
	}
}

func TestSubscriptionValidator_Validate(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	ctx := context.Background()

	vs, err := h.Validator.Validate(ctx, request("10000"))
	require.NoError(t, err)

	assert.Equal(t, sagatest.ProductCNY, vs.Product.Code)
	assert.Equal(t, sagatest.AccountNumber, vs.Account.AccountNumber)
	assert.True(t, vs.FirstTime)
	assert.Equal(t, "2026-03-02", vs.QuotaDay)
	assert.Equal(t, int64(1_000_000), h.QuotaUsed(t, sagatest.ProductCNY))

	require.NoError(t, h.Validator.ReleaseQuota(ctx, vs, sharedDomain.MustMoney("10000", "CNY")))
	assert.Zero(t, h.QuotaUsed(t, sagatest.ProductCNY))
}

func TestSubscriptionValidator_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, h *sagatest.Harness, req *services.SubscriptionRequest)
		code   sharedDomain.ErrorCode
	}{
		{"missing account", func(t *testing.T, h *sagatest.Harness, req *services.SubscriptionRequest) {
			req.AccountNumber = ""
		}, sharedDomain.CodeInvalidParameter},
		{"unknown product", func(t *testing.T, h *sagatest.Harness, req *services.SubscriptionRequest) {
			req.ProductCode = "999999"
		}, sharedDomain.CodeProductNotFound},
		{"suspended product wins over bad account", func(t *testing.T, h *sagatest.Harness, req *services.SubscriptionRequest) {
			setProduct(t, h, func(p *productDomain.FundProduct) { p.Status = productDomain.StatusSuspended })
			req.AccountNumber = "0000"
		}, sharedDomain.CodeProductStatusInvalid},
		{"channel not allowed", func(t *testing.T, h *sagatest.Harness, req *services.SubscriptionRequest) {
			req.Channel = "BRANCH"
		}, sharedDomain.CodeChannelNotAllowed},
		{"unknown customer", func(t *testing.T, h *sagatest.Harness, req *services.SubscriptionRequest) {
			req.CustomerID = "C404"
		}, sharedDomain.CodeCustomerNotFound},
		{"account mismatch", func(t *testing.T, h *sagatest.Harness, req *services.SubscriptionRequest) {
			req.AccountNumber = "6222999999999999"
		}, sharedDomain.CodeAccountInvalid},
		{"risk too high wins over amount", func(t *testing.T, h *sagatest.Harness, req *services.SubscriptionRequest) {
			setAccount(t, h, func(a *customerDomain.Account) { a.RiskTolerance = 2 })
			req.Amount = sharedDomain.MustMoney("1", "CNY")
		}, sharedDomain.CodeRiskLevelMismatch},
		{"amount below initial minimum", func(t *testing.T, h *sagatest.Harness, req *services.SubscriptionRequest) {
			req.Amount = sharedDomain.MustMoney("999.99", "CNY")
		}, sharedDomain.CodeAmountTooLow},
		{"amount above maximum", func(t *testing.T, h *sagatest.Harness, req *services.SubscriptionRequest) {
			setProduct(t, h, func(p *productDomain.FundProduct) {
				max := sharedDomain.MustMoney("5000", "CNY")
				p.MaxSubscription = &max
			})
		}, sharedDomain.CodeAmountTooHigh},
		{"quota exhausted", func(t *testing.T, h *sagatest.Harness, req *services.SubscriptionRequest) {
			setProduct(t, h, func(p *productDomain.FundProduct) { p.DailyQuota = sharedDomain.MustMoney("9999", "CNY") })
		}, sharedDomain.CodeQuotaExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := sagatest.New(t, sagatest.Options{})
			req := request("10000")
			tt.mutate(t, h, &req)

			vs, err := h.Validator.Validate(context.Background(), req)

			assert.Nil(t, vs)
			appErr, ok := sharedDomain.AsAppError(err)
			require.True(t, ok, "expected an AppError, got %v", err)
			assert.Equal(t, sharedDomain.KindValidation, appErr.Kind)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Zero(t, h.QuotaUsed(t, sagatest.ProductCNY))
		})
	}
}

func setProduct(t *testing.T, h *sagatest.Harness, fn func(p *productDomain.FundProduct)) {
	t.Helper()
	p, err := h.Products.FindByCode(context.Background(), sagatest.ProductCNY)
	require.NoError(t, err)
	fn(p)
	require.NoError(t, h.Products.Save(context.Background(), p))
}

func setAccount(t *testing.T, h *sagatest.Harness, fn func(a *customerDomain.Account)) {
	t.Helper()
	a, err := h.Accounts.FindByCustomerID(context.Background(), sagatest.CustomerID)
	require.NoError(t, err)
	fn(a)
	require.NoError(t, h.Accounts.Save(context.Background(), a))
}
