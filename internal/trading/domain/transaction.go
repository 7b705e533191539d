package domain

import (
	"fmt"
	"time"

	marketingDomain "github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const aggregateType = "SubscriptionTransaction"

// NewTransactionParams are the request facts fixed at creation.
type NewTransactionParams struct {
	SerialNumber  string
	CustomerID    string
	AccountNumber string
	ProductCode   string
	Channel       string
	CouponID      string
	FirstTime     bool
	Fee           marketingDomain.FeeCalculation
	// RequestTime defaults to now.
	RequestTime time.Time
}

// Transaction is one fund subscription and its saga progress.
// Identity is the serial number; the UUID only keys events in the outbox.
type Transaction struct {
	sharedDomain.Aggregate

	serialNumber  string
	customerID    string
	accountNumber string
	productCode   string
	amount        sharedDomain.Money
	feeRate       decimal.Decimal
	originalFee   sharedDomain.Money
	discount      sharedDomain.Money
	finalFee      sharedDomain.Money
	couponID      string
	channel       string
	firstTime     bool

	status               Status
	sagaState            SagaState
	coreBankingTxnID     string
	freezeID             string
	couponUsageID        string
	accountingType       AccountingType
	errorCode            string
	errorMessage         string
	requestTime          time.Time
	completeTime         *time.Time
	compensationAttempts int
	preCompensationState SagaState
}

// NewTransaction creates an initialized transaction in saga state INIT.
func NewTransaction(p NewTransactionParams) (*Transaction, error) {
	if p.SerialNumber == "" || p.CustomerID == "" || p.ProductCode == "" {
		return nil, fmt.Errorf("%w: serial number, customer and product are required", ErrInvalidTransaction)
	}
	if err := checkFee(p.Fee); err != nil {
		return nil, err
	}

	t := &Transaction{
		Aggregate:     sharedDomain.NewAggregate(),
		serialNumber:  p.SerialNumber,
		customerID:    p.CustomerID,
		accountNumber: p.AccountNumber,
		productCode:   p.ProductCode,
		amount:        p.Fee.Amount,
		feeRate:       p.Fee.Rate,
		originalFee:   p.Fee.OriginalFee,
		discount:      p.Fee.Discount,
		finalFee:      p.Fee.FinalFee,
		couponID:      p.CouponID,
		channel:       p.Channel,
		firstTime:     p.FirstTime,
	}
	t.initialize(p.RequestTime)
	return t, nil
}

func checkFee(f marketingDomain.FeeCalculation) error {
	currency := f.Amount.Currency()
	for _, m := range []sharedDomain.Money{f.OriginalFee, f.Discount, f.FinalFee} {
		if m.Currency() != currency {
			return fmt.Errorf("%w: fee currency %s differs from amount currency %s", ErrInvalidTransaction, m.Currency(), currency)
		}
	}
	if !f.Amount.IsPositive() {
		return fmt.Errorf("%w: subscription amount must be positive", ErrInvalidTransaction)
	}
	if f.Discount.IsNegative() || f.FinalFee.IsNegative() {
		return fmt.Errorf("%w: discount and final fee must not be negative", ErrInvalidTransaction)
	}
	expected, err := f.OriginalFee.Subtract(f.Discount)
	if err != nil {
		return err
	}
	if !expected.Equals(f.FinalFee) {
		return fmt.Errorf("%w: final fee %s != original fee %s - discount %s", ErrInvalidTransaction, f.FinalFee, f.OriginalFee, f.Discount)
	}
	return nil
}

func (t *Transaction) initialize(at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	t.status = StatusInitialized
	t.sagaState = SagaInit
	t.requestTime = at.UTC()
}

func (t *Transaction) reject(op string) error {
	return &TransitionError{Operation: op, SagaState: t.sagaState, Status: t.status}
}

func (t *Transaction) inSaga(states ...SagaState) bool {
	for _, s := range states {
		if t.sagaState == s {
			return true
		}
	}
	return false
}

// MarkValidated records that the request passed validation.
func (t *Transaction) MarkValidated() error {
	if t.sagaState != SagaInit || t.status != StatusInitialized {
		return t.reject("MarkValidated")
	}
	t.status = StatusValidated
	t.Touch()
	return nil
}

// MarkSaved moves INIT to REQUEST_SAVED ahead of the first persist.
func (t *Transaction) MarkSaved() error {
	if t.sagaState != SagaInit {
		return t.reject("MarkSaved")
	}
	t.sagaState = SagaRequestSaved
	t.Touch()
	return nil
}

// MarkCouponUsed records the marketing usage id of the consumed coupon.
func (t *Transaction) MarkCouponUsed(usageID string) error {
	if !t.HasCoupon() || usageID == "" || t.sagaState != SagaRequestSaved || t.status == StatusFailed {
		return t.reject("MarkCouponUsed")
	}
	t.couponUsageID = usageID
	t.sagaState = SagaCouponUsed
	t.Touch()
	return nil
}

func (t *Transaction) canRecordLedger() bool {
	return t.inSaga(SagaRequestSaved, SagaCouponUsed) &&
		t.status != StatusFailed &&
		t.coreBankingTxnID == "" && t.freezeID == ""
}

// MarkAccountingCompleted records a direct debit by the core banking system.
func (t *Transaction) MarkAccountingCompleted(coreBankingTxnID string) error {
	return t.recordAccounting("MarkAccountingCompleted", coreBankingTxnID, AccountingDirect)
}

// MarkExchangeCompleted records a currency-exchange debit. It reaches the same
// saga state as direct accounting but is never reversed by compensation.
func (t *Transaction) MarkExchangeCompleted(coreBankingTxnID string) error {
	return t.recordAccounting("MarkExchangeCompleted", coreBankingTxnID, AccountingExchange)
}

func (t *Transaction) recordAccounting(op, txnID string, kind AccountingType) error {
	if txnID == "" || !t.canRecordLedger() {
		return t.reject(op)
	}
	t.coreBankingTxnID = txnID
	t.accountingType = kind
	t.sagaState = SagaAccountingCompleted
	t.status = StatusAccountingSuccess
	t.Touch()
	return nil
}

// MarkFreezeCompleted records a fund freeze placed outside the trading window.
func (t *Transaction) MarkFreezeCompleted(freezeID string) error {
	if freezeID == "" || !t.canRecordLedger() {
		return t.reject("MarkFreezeCompleted")
	}
	t.freezeID = freezeID
	t.accountingType = AccountingFreeze
	t.sagaState = SagaFreezeCompleted
	t.status = StatusFreezeSuccess
	t.Touch()
	return nil
}

// MarkCompleted finishes a successful saga.
func (t *Transaction) MarkCompleted() error {
	if !t.inSaga(SagaAccountingCompleted, SagaFreezeCompleted, SagaStatusUpdated) || t.status == StatusFailed {
		return t.reject("MarkCompleted")
	}
	now := time.Now().UTC()
	t.sagaState = SagaCompleted
	t.status = StatusSuccess
	t.completeTime = &now
	t.Touch()
	t.Record(NewSubscriptionCompleted(t))
	return nil
}

// MarkFailed records a failure without moving the saga state, so the
// compensation plan still reflects what actually happened. A transaction
// already FAILED keeps its first error.
func (t *Transaction) MarkFailed(code, message string) error {
	if t.sagaState.IsTerminal() || t.status == StatusCompensating {
		return t.reject("MarkFailed")
	}
	if t.status == StatusFailed {
		return nil
	}
	now := time.Now().UTC()
	t.status = StatusFailed
	t.errorCode = code
	t.errorMessage = message
	t.completeTime = &now
	t.Touch()
	t.Record(NewSubscriptionFailed(t))
	return nil
}

// BeginCompensation claims a failed transaction for compensation. The current
// saga state is remembered so a failed attempt can be rolled back.
func (t *Transaction) BeginCompensation() error {
	if t.status != StatusFailed || !t.NeedsCompensation() || !t.sagaState.IsCompensable() {
		return t.reject("BeginCompensation")
	}
	t.preCompensationState = t.sagaState
	t.sagaState = SagaCompensating
	t.status = StatusCompensating
	t.compensationAttempts++
	t.Touch()
	return nil
}

// CompleteCompensation finalizes a successful compensation.
func (t *Transaction) CompleteCompensation() error {
	if t.sagaState != SagaCompensating {
		return t.reject("CompleteCompensation")
	}
	t.sagaState = SagaCompensationCompleted
	t.status = StatusFailed
	t.Touch()
	t.Record(NewCompensationCompleted(t))
	return nil
}

// AbortCompensation reverts a claim after a failed or abandoned attempt. Once
// maxAttempts attempts have been spent the saga is parked in
// MANUAL_INTERVENTION and true is returned.
func (t *Transaction) AbortCompensation(reason string, maxAttempts int) (bool, error) {
	if t.sagaState != SagaCompensating {
		return false, t.reject("AbortCompensation")
	}
	t.status = StatusFailed
	if reason != "" {
		t.errorMessage = reason
	}
	t.Touch()
	if maxAttempts > 0 && t.compensationAttempts >= maxAttempts {
		t.sagaState = SagaManualIntervention
		t.Record(NewCompensationEscalated(t, reason))
		return true, nil
	}
	t.sagaState = t.preCompensationState
	return false, nil
}

// planState is the saga state the compensation plan is computed from. While
// a claim is held this is the state before the claim.
func (t *Transaction) planState() SagaState {
	if t.sagaState == SagaCompensating {
		return t.preCompensationState
	}
	return t.sagaState
}

// HasCoupon reports whether the subscription used a coupon.
func (t *Transaction) HasCoupon() bool { return t.couponID != "" }

// NeedsCouponCompensation reports whether the coupon must be returned.
func (t *Transaction) NeedsCouponCompensation() bool {
	return t.HasCoupon() && t.planState().IsCompensable()
}

// NeedsAccountingCompensation reports whether the direct debit must be reversed.
func (t *Transaction) NeedsAccountingCompensation() bool {
	return t.planState() == SagaAccountingCompleted && t.accountingType.Reversible()
}

// NeedsFreezeCompensation reports whether the freeze must be released.
func (t *Transaction) NeedsFreezeCompensation() bool {
	return t.planState() == SagaFreezeCompleted
}

// NeedsCompensation reports whether any compensation step is owed.
func (t *Transaction) NeedsCompensation() bool {
	return t.NeedsCouponCompensation() || t.NeedsAccountingCompensation() || t.NeedsFreezeCompensation()
}

// TotalDeduction is the amount plus the final fee.
func (t *Transaction) TotalDeduction() sharedDomain.Money {
	total, _ := t.amount.Add(t.finalFee)
	return total
}

func (t *Transaction) SerialNumber() string            { return t.serialNumber }
func (t *Transaction) CustomerID() string              { return t.customerID }
func (t *Transaction) AccountNumber() string           { return t.accountNumber }
func (t *Transaction) ProductCode() string             { return t.productCode }
func (t *Transaction) Amount() sharedDomain.Money      { return t.amount }
func (t *Transaction) FeeRate() decimal.Decimal        { return t.feeRate }
func (t *Transaction) OriginalFee() sharedDomain.Money { return t.originalFee }
func (t *Transaction) Discount() sharedDomain.Money    { return t.discount }
func (t *Transaction) FinalFee() sharedDomain.Money    { return t.finalFee }
func (t *Transaction) CouponID() string                { return t.couponID }
func (t *Transaction) Channel() string                 { return t.channel }
func (t *Transaction) FirstTime() bool                 { return t.firstTime }
func (t *Transaction) Status() Status                  { return t.status }
func (t *Transaction) SagaState() SagaState            { return t.sagaState }
func (t *Transaction) CoreBankingTxnID() string        { return t.coreBankingTxnID }
func (t *Transaction) FreezeID() string                { return t.freezeID }
func (t *Transaction) CouponUsageID() string           { return t.couponUsageID }
func (t *Transaction) AccountingType() AccountingType  { return t.accountingType }
func (t *Transaction) ErrorCode() string               { return t.errorCode }
func (t *Transaction) ErrorMessage() string            { return t.errorMessage }
func (t *Transaction) RequestTime() time.Time          { return t.requestTime }
func (t *Transaction) CompleteTime() *time.Time        { return t.completeTime }
func (t *Transaction) CompensationAttempts() int       { return t.compensationAttempts }
func (t *Transaction) PreCompensationState() SagaState { return t.preCompensationState }

// Snapshot is the persisted form of a Transaction.
type Snapshot struct {
	ID                   uuid.UUID
	SerialNumber         string
	CustomerID           string
	AccountNumber        string
	ProductCode          string
	Amount               sharedDomain.Money
	FeeRate              decimal.Decimal
	OriginalFee          sharedDomain.Money
	Discount             sharedDomain.Money
	FinalFee             sharedDomain.Money
	CouponID             string
	Channel              string
	FirstTime            bool
	Status               Status
	SagaState            SagaState
	CoreBankingTxnID     string
	FreezeID             string
	CouponUsageID        string
	AccountingType       AccountingType
	ErrorCode            string
	ErrorMessage         string
	RequestTime          time.Time
	CompleteTime         *time.Time
	CompensationAttempts int
	PreCompensationState SagaState
	Version              int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Snapshot returns the current state for persistence.
func (t *Transaction) Snapshot() Snapshot {
	return Snapshot{
		ID:                   t.ID(),
		SerialNumber:         t.serialNumber,
		CustomerID:           t.customerID,
		AccountNumber:        t.accountNumber,
		ProductCode:          t.productCode,
		Amount:               t.amount,
		FeeRate:              t.feeRate,
		OriginalFee:          t.originalFee,
		Discount:             t.discount,
		FinalFee:             t.finalFee,
		CouponID:             t.couponID,
		Channel:              t.channel,
		FirstTime:            t.firstTime,
		Status:               t.status,
		SagaState:            t.sagaState,
		CoreBankingTxnID:     t.coreBankingTxnID,
		FreezeID:             t.freezeID,
		CouponUsageID:        t.couponUsageID,
		AccountingType:       t.accountingType,
		ErrorCode:            t.errorCode,
		ErrorMessage:         t.errorMessage,
		RequestTime:          t.requestTime,
		CompleteTime:         t.completeTime,
		CompensationAttempts: t.compensationAttempts,
		PreCompensationState: t.preCompensationState,
		Version:              t.Version(),
		CreatedAt:            t.CreatedAt(),
		UpdatedAt:            t.UpdatedAt(),
	}
}

// RehydrateTransaction recreates a Transaction from persisted state.
func RehydrateTransaction(s Snapshot) *Transaction {
	return &Transaction{
		Aggregate:            sharedDomain.RestoreAggregate(s.ID, s.CreatedAt, s.UpdatedAt, s.Version),
		serialNumber:         s.SerialNumber,
		customerID:           s.CustomerID,
		accountNumber:        s.AccountNumber,
		productCode:          s.ProductCode,
		amount:               s.Amount,
		feeRate:              s.FeeRate,
		originalFee:          s.OriginalFee,
		discount:             s.Discount,
		finalFee:             s.FinalFee,
		couponID:             s.CouponID,
		channel:              s.Channel,
		firstTime:            s.FirstTime,
		status:               s.Status,
		sagaState:            s.SagaState,
		coreBankingTxnID:     s.CoreBankingTxnID,
		freezeID:             s.FreezeID,
		couponUsageID:        s.CouponUsageID,
		accountingType:       s.AccountingType,
		errorCode:            s.ErrorCode,
		errorMessage:         s.ErrorMessage,
		requestTime:          s.RequestTime,
		completeTime:         s.CompleteTime,
		compensationAttempts: s.CompensationAttempts,
		preCompensationState: s.PreCompensationState,
	}
}
