package domain

// SagaState records how far the forward saga progressed. It drives the
// compensation plan; Status is the client-facing outcome.
type SagaState string

const (
	SagaInit                  SagaState = "INIT"
	SagaRequestSaved          SagaState = "REQUEST_SAVED"
	SagaCouponUsed            SagaState = "COUPON_USED"
	SagaAccountingCompleted   SagaState = "ACCOUNTING_COMPLETED"
	SagaFreezeCompleted       SagaState = "FREEZE_COMPLETED"
	SagaStatusUpdated         SagaState = "STATUS_UPDATED"
	SagaCompleted             SagaState = "COMPLETED"
	SagaCompensating          SagaState = "COMPENSATING"
	SagaCompensationCompleted SagaState = "COMPENSATION_COMPLETED"
	SagaManualIntervention    SagaState = "MANUAL_INTERVENTION"
)

// IsTerminal reports whether the saga can no longer move.
func (s SagaState) IsTerminal() bool {
	switch s {
	case SagaCompleted, SagaCompensationCompleted, SagaManualIntervention:
		return true
	default:
		return false
	}
}

// IsCompensable reports whether a failed saga in this state owes compensation steps.
func (s SagaState) IsCompensable() bool {
	switch s {
	case SagaCouponUsed, SagaAccountingCompleted, SagaFreezeCompleted:
		return true
	default:
		return false
	}
}

func (s SagaState) String() string { return string(s) }

// CompensableSagaStates lists the states the compensation sweep looks at.
func CompensableSagaStates() []SagaState {
	return []SagaState{SagaCouponUsed, SagaAccountingCompleted, SagaFreezeCompleted}
}

// TerminalSagaStates lists the states the stuck sweep ignores.
func TerminalSagaStates() []SagaState {
	return []SagaState{SagaCompleted, SagaCompensationCompleted, SagaManualIntervention}
}

// Status is the externally visible transaction status.
type Status string

const (
	StatusInitialized       Status = "INITIALIZED"
	StatusValidated         Status = "VALIDATED"
	StatusAccountingSuccess Status = "ACCOUNTING_SUCCESS"
	StatusFreezeSuccess     Status = "FREEZE_SUCCESS"
	StatusSuccess           Status = "SUCCESS"
	StatusFailed            Status = "FAILED"
	StatusCompensating      Status = "COMPENSATING"
)

func (s Status) String() string { return string(s) }

// AccountingType is the ledger strategy used for a transaction.
type AccountingType string

const (
	AccountingNone     AccountingType = ""
	AccountingDirect   AccountingType = "DIRECT_ACCOUNTING"
	AccountingFreeze   AccountingType = "FREEZE"
	AccountingExchange AccountingType = "EXCHANGE_AND_ACCOUNTING"
)

// Reversible reports whether the ledger effect can be undone by compensation.
// Exchange-and-accounting crosses an FX booking and is settled manually.
func (t AccountingType) Reversible() bool {
	return t == AccountingDirect || t == AccountingFreeze
}

func (t AccountingType) String() string { return string(t) }
