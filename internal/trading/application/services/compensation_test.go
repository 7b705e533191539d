package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/integration/coupon"
	"github.com/felixgeelhaar/fundsaga/internal/integration/ledger"
	marketingDomain "github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/sagatest"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/services"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failedTxn persists a FAILED transaction that progressed to the given point.
// Ledger and coupon effects are made real on the simulators.
func failedTxn(t *testing.T, h *sagatest.Harness, serial string, withCoupon bool, book domain.AccountingType) *domain.Transaction {
	t.Helper()
	ctx := context.Background()
	amount := sharedDomain.MustMoney("10000", "CNY")
	rate := decimal.RequireFromString("0.015")

	fee := marketingDomain.CalculateFee(amount, rate)
	couponID := ""
	if withCoupon {
		couponID = sagatest.CouponHalf
		half := decimal.RequireFromString("0.5")
		var err error
		fee, err = marketingDomain.CalculateFeeWithCoupon(amount, rate, marketingDomain.CouponInfo{
			CouponID: couponID, Type: marketingDomain.CouponPercentage, DiscountRate: &half,
		})
		require.NoError(t, err)
	}

	txn, err := domain.NewTransaction(domain.NewTransactionParams{
		SerialNumber:  serial,
		CustomerID:    sagatest.CustomerID,
		AccountNumber: sagatest.AccountNumber,
		ProductCode:   sagatest.ProductCNY,
		Channel:       "WEB",
		CouponID:      couponID,
		FirstTime:     true,
		Fee:           fee,
	})
	require.NoError(t, err)
	require.NoError(t, txn.MarkValidated())
	require.NoError(t, txn.MarkSaved())

	if withCoupon {
		usageID, err := h.Coupons.UseCoupon(ctx, coupon.UseRequest{SerialNumber: serial, CouponID: couponID})
		require.NoError(t, err)
		require.NoError(t, txn.MarkCouponUsed(usageID))
		require.NoError(t, h.Usages.Save(ctx, marketingDomain.NewCouponUsage(serial, sagatest.CustomerID, couponID, usageID, fee)))
	}

	req := ledger.Request{SerialNumber: serial, Amount: txn.Amount(), Fee: txn.FinalFee()}
	switch book {
	case domain.AccountingDirect:
		res, err := h.Ledger.Accounting(ctx, req)
		require.NoError(t, err)
		require.NoError(t, txn.MarkAccountingCompleted(res.TransactionID))
	case domain.AccountingExchange:
		res, err := h.Ledger.ExchangeAndAccount(ctx, req)
		require.NoError(t, err)
		require.NoError(t, txn.MarkExchangeCompleted(res.TransactionID))
	case domain.AccountingFreeze:
		res, err := h.Ledger.Freeze(ctx, req)
		require.NoError(t, err)
		require.NoError(t, txn.MarkFreezeCompleted(res.TransactionID))
	}

	require.NoError(t, txn.MarkFailed(string(sharedDomain.CodeSystemError), "internal error"))
	require.NoError(t, h.Store.Insert(ctx, txn, "test"))
	return txn
}

func TestCompensationEngine_Plans(t *testing.T) {
	tests := []struct {
		name      string
		coupon    bool
		book      domain.AccountingType
		reversals int
		unfreezes int
		returns   int
	}{
		{"nothing owed", false, domain.AccountingNone, 0, 0, 0},
		{"coupon only", true, domain.AccountingNone, 0, 0, 1},
		{"direct debit", false, domain.AccountingDirect, 1, 0, 0},
		{"direct debit with coupon", true, domain.AccountingDirect, 1, 0, 1},
		{"freeze with coupon", true, domain.AccountingFreeze, 0, 1, 1},
		{"exchange is never reversed", false, domain.AccountingExchange, 0, 0, 0},
		{"exchange with coupon returns the coupon", true, domain.AccountingExchange, 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := sagatest.New(t, sagatest.Options{})
			txn := failedTxn(t, h, "SUB1", tt.coupon, tt.book)

			result := h.Engine.Compensate(context.Background(), txn)

			assert.True(t, result.Success)
			assert.Equal(t, tt.reversals == 1, result.AccountingCompensated)
			assert.Equal(t, tt.unfreezes == 1, result.FreezeCompensated)
			assert.Equal(t, tt.returns == 1, result.CouponCompensated)
			assert.Empty(t, result.ErrorMessage)
			assert.Equal(t, tt.reversals, h.Ledger.Calls(ledger.OpReversal))
			assert.Equal(t, tt.unfreezes, h.Ledger.Calls(ledger.OpUnfreeze))
			assert.Equal(t, tt.returns, h.Coupons.Calls(coupon.OpReturn))
		})
	}
}

func TestCompensationEngine_NothingOwedReportsNoSteps(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	txn := failedTxn(t, h, "SUB1", false, domain.AccountingNone)

	result := h.Engine.Compensate(context.Background(), txn)

	assert.True(t, result.Success)
	assert.False(t, result.AccountingCompensated)
	assert.False(t, result.FreezeCompensated)
	assert.False(t, result.CouponCompensated)
}

func TestCompensationEngine_StepsAreIndependent(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	txn := failedTxn(t, h, "SUB1", true, domain.AccountingDirect)
	h.Ledger.Fail(ledger.OpReversal, errors.New("ledger down"))

	result := h.Engine.Compensate(context.Background(), txn)

	assert.False(t, result.Success)
	assert.False(t, result.AccountingCompensated)
	assert.True(t, result.CouponCompensated)
	assert.False(t, result.FreezeCompensated)
	assert.Contains(t, result.ErrorMessage, "ledger down")
	assert.False(t, h.Coupons.InUse(sagatest.CouponHalf))

	usages, err := h.Usages.FindBySerialNumber(context.Background(), "SUB1")
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, marketingDomain.UsageReturned, usages[0].Status)
	assert.NotNil(t, usages[0].ReturnedAt)
}

type panickingLedger struct{ ledger.Gateway }

func (panickingLedger) Unfreeze(context.Context, ledger.UnfreezeRequest) error { panic("boom") }

func TestCompensationEngine_RecoversPanics(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	txn := failedTxn(t, h, "SUB1", false, domain.AccountingFreeze)
	engine := services.NewCompensationEngine(panickingLedger{h.Ledger}, h.Coupons, h.Usages, h.Breakers, h.Logger, nil)

	var result services.CompensationResult
	require.NotPanics(t, func() { result = engine.Compensate(context.Background(), txn) })

	assert.False(t, result.Success)
	assert.False(t, result.FreezeCompensated)
	assert.Contains(t, result.ErrorMessage, "panic: boom")
}

func TestCompensationEngine_Dispatch(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	txn := failedTxn(t, h, "SUB1", false, domain.AccountingFreeze)

	ctx, cancel := context.WithCancel(context.Background())
	task := h.Engine.Dispatch(ctx, txn)
	cancel()

	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("compensation did not finish")
	}
	result, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, h.Ledger.Calls(ledger.OpUnfreeze))
}
