package queries

import (
	"context"
	"time"

	marketingDomain "github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	sharedApplication "github.com/felixgeelhaar/fundsaga/internal/shared/application"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
)

// GetTransactionQuery looks a subscription up by serial number.
type GetTransactionQuery struct {
	SerialNumber string
}

func (GetTransactionQuery) QueryName() string { return "trading.get_transaction" }

var (
	_ sharedApplication.Query                                         = GetTransactionQuery{}
	_ sharedApplication.Handler[GetTransactionQuery, *TransactionDTO] = (*GetTransactionHandler)(nil)
)

// CouponUsageDTO is a coupon consumed by the subscription.
type CouponUsageDTO struct {
	CouponID   string     `json:"coupon_id"`
	UsageID    string     `json:"usage_id"`
	Status     string     `json:"status"`
	UsedAt     time.Time  `json:"used_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

// TransactionDTO is the read model of a subscription transaction.
type TransactionDTO struct {
	SerialNumber         string           `json:"serial_number"`
	CustomerID           string           `json:"customer_id"`
	AccountNumber        string           `json:"account_number"`
	ProductCode          string           `json:"product_code"`
	Channel              string           `json:"channel"`
	Amount               string           `json:"amount"`
	Currency             string           `json:"currency"`
	FeeRate              string           `json:"fee_rate"`
	OriginalFee          string           `json:"original_fee"`
	Discount             string           `json:"discount_amount"`
	FinalFee             string           `json:"final_fee"`
	TotalDeduction       string           `json:"total_deduction"`
	CouponID             string           `json:"coupon_id,omitempty"`
	FirstTime            bool             `json:"first_time"`
	Status               string           `json:"status"`
	SagaState            string           `json:"saga_state"`
	AccountingType       string           `json:"accounting_type,omitempty"`
	CoreBankingTxnID     string           `json:"core_banking_txn_id,omitempty"`
	FreezeID             string           `json:"freeze_id,omitempty"`
	ErrorCode            string           `json:"error_code,omitempty"`
	ErrorMessage         string           `json:"error_message,omitempty"`
	CompensationAttempts int              `json:"compensation_attempts"`
	RequestTime          time.Time        `json:"request_time"`
	CompleteTime         *time.Time       `json:"complete_time,omitempty"`
	CouponUsages         []CouponUsageDTO `json:"coupon_usages,omitempty"`
}

// GetTransactionHandler handles GetTransactionQuery.
type GetTransactionHandler struct {
	transactions domain.Repository
	usages       marketingDomain.UsageRepository
}

// NewGetTransactionHandler creates a handler. usages may be nil.
func NewGetTransactionHandler(transactions domain.Repository, usages marketingDomain.UsageRepository) *GetTransactionHandler {
	return &GetTransactionHandler{transactions: transactions, usages: usages}
}

// Handle returns the transaction or domain.ErrTransactionNotFound.
func (h *GetTransactionHandler) Handle(ctx context.Context, query GetTransactionQuery) (*TransactionDTO, error) {
	txn, err := h.transactions.FindBySerialNumber(ctx, query.SerialNumber)
	if err != nil {
		return nil, err
	}

	dto := &TransactionDTO{
		SerialNumber:         txn.SerialNumber(),
		CustomerID:           txn.CustomerID(),
		AccountNumber:        txn.AccountNumber(),
		ProductCode:          txn.ProductCode(),
		Channel:              txn.Channel(),
		Amount:               txn.Amount().StringFixed(),
		Currency:             txn.Amount().Currency(),
		FeeRate:              txn.FeeRate().String(),
		OriginalFee:          txn.OriginalFee().StringFixed(),
		Discount:             txn.Discount().StringFixed(),
		FinalFee:             txn.FinalFee().StringFixed(),
		TotalDeduction:       txn.TotalDeduction().StringFixed(),
		CouponID:             txn.CouponID(),
		FirstTime:            txn.FirstTime(),
		Status:               txn.Status().String(),
		SagaState:            txn.SagaState().String(),
		AccountingType:       txn.AccountingType().String(),
		CoreBankingTxnID:     txn.CoreBankingTxnID(),
		FreezeID:             txn.FreezeID(),
		ErrorCode:            txn.ErrorCode(),
		ErrorMessage:         txn.ErrorMessage(),
		CompensationAttempts: txn.CompensationAttempts(),
		RequestTime:          txn.RequestTime(),
		CompleteTime:         txn.CompleteTime(),
	}

	if h.usages != nil && txn.HasCoupon() {
		usages, err := h.usages.FindBySerialNumber(ctx, txn.SerialNumber())
		if err != nil {
			return nil, err
		}
		for _, u := range usages {
			dto.CouponUsages = append(dto.CouponUsages, CouponUsageDTO{
				CouponID:   u.CouponID,
				UsageID:    u.UsageID,
				Status:     string(u.Status),
				UsedAt:     u.UsedAt,
				ReturnedAt: u.ReturnedAt,
			})
		}
	}
	return dto, nil
}
