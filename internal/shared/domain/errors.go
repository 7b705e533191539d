package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for callers that map them to transport codes.
type ErrorKind int

const (
	KindSystem ErrorKind = iota
	KindValidation
	KindBusiness
	KindExternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusiness:
		return "business"
	case KindExternal:
		return "external"
	default:
		return "system"
	}
}

// ErrorCode is a stable, client-visible failure code.
type ErrorCode string

const (
	CodeSystemError            ErrorCode = "0001"
	CodeExternalSystemTimeout  ErrorCode = "0002"
	CodeExternalSystemError    ErrorCode = "0003"
	CodeInvalidParameter       ErrorCode = "1001"
	CodeProductNotFound        ErrorCode = "1101"
	CodeProductStatusInvalid   ErrorCode = "1102"
	CodeChannelNotAllowed      ErrorCode = "1103"
	CodeCustomerNotFound       ErrorCode = "1201"
	CodeAccountInvalid         ErrorCode = "1202"
	CodeRiskLevelMismatch      ErrorCode = "1203"
	CodeAmountTooLow           ErrorCode = "1301"
	CodeAmountTooHigh          ErrorCode = "1302"
	CodeAmountInvalidUnit      ErrorCode = "1303"
	CodeQuotaExceeded          ErrorCode = "1304"
	CodeCouponTrialFailed      ErrorCode = "2001"
	CodeCouponUseFailed        ErrorCode = "2002"
	CodeCouponReturnFailed     ErrorCode = "2003"
	CodeAccountingFailed       ErrorCode = "2101"
	CodeFreezeFailed           ErrorCode = "2102"
	CodeExchangeFailed         ErrorCode = "2103"
	CodeReversalFailed         ErrorCode = "2104"
	CodeUnfreezeFailed         ErrorCode = "2105"
	CodeSerialGenerationFailed ErrorCode = "2201"
	CodeTransactionSaveFailed  ErrorCode = "2202"
	CodeStuckTransaction       ErrorCode = "STUCK_TRANSACTION"
	CodeCompensationExhausted  ErrorCode = "COMPENSATION_EXHAUSTED"
)

// AppError is a classified failure carrying a stable code.
type AppError struct {
	Kind    ErrorKind
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// NewValidationError reports a rejected request. No side effects have happened.
func NewValidationError(code ErrorCode, message string) *AppError {
	return &AppError{Kind: KindValidation, Code: code, Message: message}
}

// NewBusinessError reports a rule rejection by a collaborator, such as a refused coupon.
func NewBusinessError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Kind: KindBusiness, Code: code, Message: message, Err: cause}
}

// NewExternalError reports a downstream system failure or timeout.
func NewExternalError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Kind: KindExternal, Code: code, Message: message, Err: cause}
}

// NewSystemError wraps an unclassified failure.
func NewSystemError(message string, cause error) *AppError {
	return &AppError{Kind: KindSystem, Code: CodeSystemError, Message: message, Err: cause}
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Classify returns the AppError for err, wrapping anything unclassified as a
// system error with a generic message so internal detail does not leak.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return NewSystemError("internal error", err)
}
