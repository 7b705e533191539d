package domain

import (
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
)

const (
	RoutingKeySubscriptionCompleted = "trading.subscription.completed"
	RoutingKeySubscriptionFailed    = "trading.subscription.failed"
	RoutingKeyCompensationCompleted = "trading.compensation.completed"
	RoutingKeyCompensationEscalated = "trading.compensation.escalated"
)

// SubscriptionCompleted is emitted when a subscription settles successfully.
type SubscriptionCompleted struct {
	sharedDomain.EventHeader
	SerialNumber   string             `json:"serial_number"`
	CustomerID     string             `json:"customer_id"`
	ProductCode    string             `json:"product_code"`
	Amount         sharedDomain.Money `json:"amount"`
	FinalFee       sharedDomain.Money `json:"final_fee"`
	AccountingType AccountingType     `json:"accounting_type"`
}

func NewSubscriptionCompleted(t *Transaction) *SubscriptionCompleted {
	return &SubscriptionCompleted{
		EventHeader:    sharedDomain.NewEventHeader(t.ID(), aggregateType, RoutingKeySubscriptionCompleted),
		SerialNumber:   t.serialNumber,
		CustomerID:     t.customerID,
		ProductCode:    t.productCode,
		Amount:         t.amount,
		FinalFee:       t.finalFee,
		AccountingType: t.accountingType,
	}
}

// SubscriptionFailed is emitted when a subscription is marked failed.
type SubscriptionFailed struct {
	sharedDomain.EventHeader
	SerialNumber      string    `json:"serial_number"`
	CustomerID        string    `json:"customer_id"`
	ProductCode       string    `json:"product_code"`
	SagaState         SagaState `json:"saga_state"`
	ErrorCode         string    `json:"error_code"`
	ErrorMessage      string    `json:"error_message"`
	NeedsCompensation bool      `json:"needs_compensation"`
}

func NewSubscriptionFailed(t *Transaction) *SubscriptionFailed {
	return &SubscriptionFailed{
		EventHeader:       sharedDomain.NewEventHeader(t.ID(), aggregateType, RoutingKeySubscriptionFailed),
		SerialNumber:      t.serialNumber,
		CustomerID:        t.customerID,
		ProductCode:       t.productCode,
		SagaState:         t.sagaState,
		ErrorCode:         t.errorCode,
		ErrorMessage:      t.errorMessage,
		NeedsCompensation: t.NeedsCompensation(),
	}
}

// CompensationCompleted is emitted once every owed compensation step succeeded.
type CompensationCompleted struct {
	sharedDomain.EventHeader
	SerialNumber  string    `json:"serial_number"`
	CompensatedAt SagaState `json:"compensated_from"`
	Attempts      int       `json:"attempts"`
}

func NewCompensationCompleted(t *Transaction) *CompensationCompleted {
	return &CompensationCompleted{
		EventHeader:   sharedDomain.NewEventHeader(t.ID(), aggregateType, RoutingKeyCompensationCompleted),
		SerialNumber:  t.serialNumber,
		CompensatedAt: t.preCompensationState,
		Attempts:      t.compensationAttempts,
	}
}

// CompensationEscalated is emitted when retries are exhausted and an operator must step in.
type CompensationEscalated struct {
	sharedDomain.EventHeader
	SerialNumber string    `json:"serial_number"`
	LastState    SagaState `json:"last_state"`
	Attempts     int       `json:"attempts"`
	ErrorCode    string    `json:"error_code"`
	Reason       string    `json:"reason"`
}

func NewCompensationEscalated(t *Transaction, reason string) *CompensationEscalated {
	return &CompensationEscalated{
		EventHeader:  sharedDomain.NewEventHeader(t.ID(), aggregateType, RoutingKeyCompensationEscalated),
		SerialNumber: t.serialNumber,
		LastState:    t.preCompensationState,
		Attempts:     t.compensationAttempts,
		ErrorCode:    string(sharedDomain.CodeCompensationExhausted),
		Reason:       reason,
	}
}
