package queries_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/felixgeelhaar/fundsaga/internal/integration/ledger"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/queries"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/sagatest"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTransactionHandler_Completed(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	ctx := context.Background()
	res, err := h.Subscribe(ctx, sagatest.ProductCNY, "10000", "CNY", sagatest.CouponHalf)
	require.NoError(t, err)
	require.True(t, res.Success)

	handler := queries.NewGetTransactionHandler(h.Transactions, h.Usages)
	dto, err := handler.Handle(ctx, queries.GetTransactionQuery{SerialNumber: res.SerialNumber})
	require.NoError(t, err)

	assert.Equal(t, res.SerialNumber, dto.SerialNumber)
	assert.Equal(t, "10000.00", dto.Amount)
	assert.Equal(t, "CNY", dto.Currency)
	assert.Equal(t, "150.00", dto.OriginalFee)
	assert.Equal(t, "75.00", dto.Discount)
	assert.Equal(t, "75.00", dto.FinalFee)
	assert.Equal(t, "10075.00", dto.TotalDeduction)
	assert.Equal(t, "SUCCESS", dto.Status)
	assert.Equal(t, "COMPLETED", dto.SagaState)
	assert.Equal(t, "DIRECT_ACCOUNTING", dto.AccountingType)
	assert.NotEmpty(t, dto.CoreBankingTxnID)
	assert.NotNil(t, dto.CompleteTime)
	require.Len(t, dto.CouponUsages, 1)
	assert.Equal(t, sagatest.CouponHalf, dto.CouponUsages[0].CouponID)
	assert.Equal(t, "USED", dto.CouponUsages[0].Status)

	raw, err := json.Marshal(dto)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "75.00", fields["discount_amount"])
	assert.NotContains(t, fields, "error_code")
}

func TestGetTransactionHandler_Failed(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	ctx := context.Background()
	h.Ledger.Fail(ledger.OpAccounting, errors.New("core banking down"))
	res, err := h.Subscribe(ctx, sagatest.ProductCNY, "10000", "CNY", "")
	require.NoError(t, err)

	dto, err := queries.NewGetTransactionHandler(h.Transactions, nil).Handle(ctx, queries.GetTransactionQuery{SerialNumber: res.SerialNumber})
	require.NoError(t, err)

	assert.Equal(t, "FAILED", dto.Status)
	assert.Equal(t, "REQUEST_SAVED", dto.SagaState)
	assert.Equal(t, "2101", dto.ErrorCode)
	assert.Empty(t, dto.AccountingType)
	assert.Empty(t, dto.CouponUsages)
}

func TestGetTransactionHandler_NotFound(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})

	_, err := queries.NewGetTransactionHandler(h.Transactions, h.Usages).Handle(context.Background(), queries.GetTransactionQuery{SerialNumber: "SUB404"})

	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}
