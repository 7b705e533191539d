package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/commands"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/queries"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
)

// SubscriptionProcessor runs the subscription saga.
type SubscriptionProcessor interface {
	Handle(ctx context.Context, cmd commands.ProcessSubscriptionCommand) (*commands.SubscriptionResult, error)
}

// TransactionFinder loads the read model of one transaction.
type TransactionFinder interface {
	Handle(ctx context.Context, query queries.GetTransactionQuery) (*queries.TransactionDTO, error)
}

// SubscriptionRequest is the body of POST /api/v1/subscriptions.
type SubscriptionRequest struct {
	CustomerID    string `json:"customer_id"`
	AccountNumber string `json:"account_number"`
	ProductCode   string `json:"product_code"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Channel       string `json:"channel"`
	CouponID      string `json:"coupon_id,omitempty"`
}

// SubscriptionResponse reports the saga outcome.
type SubscriptionResponse struct {
	SerialNumber   string `json:"serial_number,omitempty"`
	Success        bool   `json:"success"`
	Status         string `json:"status,omitempty"`
	SagaState      string `json:"saga_state,omitempty"`
	AccountingType string `json:"accounting_type,omitempty"`
	Amount         string `json:"amount,omitempty"`
	Currency       string `json:"currency,omitempty"`
	OriginalFee    string `json:"original_fee,omitempty"`
	Discount       string `json:"discount_amount,omitempty"`
	FinalFee       string `json:"final_fee,omitempty"`
	TotalDeduction string `json:"total_deduction,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// SubscriptionHandler serves the subscription endpoints.
type SubscriptionHandler struct {
	processor SubscriptionProcessor
	finder    TransactionFinder
	logger    *slog.Logger
}

// NewSubscriptionHandler creates the handler.
func NewSubscriptionHandler(processor SubscriptionProcessor, finder TransactionFinder, logger *slog.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionHandler{processor: processor, finder: finder, logger: logger}
}

// Create handles POST /api/v1/subscriptions.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, ErrBadRequest)
		return
	}

	amount, err := sharedDomain.ParseMoney(req.Amount, req.Currency)
	if err != nil {
		writeError(w, &APIError{
			Status:  http.StatusBadRequest,
			Code:    string(sharedDomain.CodeInvalidParameter),
			Message: err.Error(),
		})
		return
	}

	result, err := h.processor.Handle(r.Context(), commands.ProcessSubscriptionCommand{
		CustomerID:    req.CustomerID,
		AccountNumber: req.AccountNumber,
		ProductCode:   req.ProductCode,
		Amount:        amount,
		Channel:       req.Channel,
		CouponID:      req.CouponID,
	})
	if err == nil {
		writeJSON(w, http.StatusCreated, ResponseFromResult(result))
		return
	}

	appErr := sharedDomain.Classify(err)
	resp := ResponseFromResult(result)
	resp.ErrorCode = string(appErr.Code)
	resp.ErrorMessage = appErr.Message
	writeJSON(w, statusFor(appErr), resp)
}

// Get handles GET /api/v1/subscriptions/{serialNumber}.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serialNumber")
	dto, err := h.finder.Handle(r.Context(), queries.GetTransactionQuery{SerialNumber: serial})
	if errors.Is(err, domain.ErrTransactionNotFound) {
		writeError(w, ErrNotFound)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "load transaction", "serial_number", serial, "error", err)
		writeError(w, ErrInternalServer)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// statusFor maps an error class to an HTTP status. Rejections are the
// caller's to fix; downstream outages are retryable.
func statusFor(appErr *sharedDomain.AppError) int {
	switch appErr.Kind {
	case sharedDomain.KindValidation, sharedDomain.KindBusiness:
		return http.StatusUnprocessableEntity
	case sharedDomain.KindExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ResponseFromResult renders a saga outcome as the API response body.
func ResponseFromResult(result *commands.SubscriptionResult) SubscriptionResponse {
	if result == nil {
		return SubscriptionResponse{}
	}
	resp := SubscriptionResponse{
		SerialNumber:   result.SerialNumber,
		Success:        result.Success,
		Status:         result.Status.String(),
		SagaState:      result.SagaState.String(),
		AccountingType: result.AccountingType.String(),
		ErrorCode:      result.ErrorCode,
		ErrorMessage:   result.ErrorMessage,
	}
	if result.Amount.Currency() != "" {
		resp.Amount = result.Amount.StringFixed()
		resp.Currency = result.Amount.Currency()
	}
	if result.FinalFee.Currency() != "" {
		resp.OriginalFee = result.OriginalFee.StringFixed()
		resp.Discount = result.Discount.StringFixed()
		resp.FinalFee = result.FinalFee.StringFixed()
		resp.TotalDeduction = result.TotalDeduction.StringFixed()
	}
	return resp
}
