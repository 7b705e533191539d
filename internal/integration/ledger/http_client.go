package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/integration/httpjson"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
)

type bookingBody struct {
	SerialNumber   string `json:"serial_number"`
	CustomerID     string `json:"customer_id"`
	AccountNumber  string `json:"account_number"`
	ProductCode    string `json:"product_code"`
	Amount         string `json:"amount"`
	Fee            string `json:"fee"`
	Currency       string `json:"currency"`
	SourceCurrency string `json:"source_currency,omitempty"`
	TargetCurrency string `json:"target_currency,omitempty"`
	Type           string `json:"type"`
	Description    string `json:"description,omitempty"`
}

type undoBody struct {
	SerialNumber  string `json:"serial_number"`
	ReferenceID   string `json:"reference_id"`
	AccountNumber string `json:"account_number"`
	Amount        string `json:"amount"`
	Fee           string `json:"fee,omitempty"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
}

type response struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
}

// HTTPClient talks to the core-banking JSON API.
type HTTPClient struct {
	client *httpjson.Client
}

// NewHTTPClient creates a client for the core-banking system at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: httpjson.NewClient(baseURL, timeout)}
}

func (c *HTTPClient) Accounting(ctx context.Context, req Request) (Result, error) {
	return c.book(ctx, "/api/v1/accounting", req)
}

func (c *HTTPClient) Freeze(ctx context.Context, req Request) (Result, error) {
	return c.book(ctx, "/api/v1/freeze", req)
}

func (c *HTTPClient) ExchangeAndAccount(ctx context.Context, req Request) (Result, error) {
	return c.book(ctx, "/api/v1/exchange-accounting", req)
}

func (c *HTTPClient) Unfreeze(ctx context.Context, req UnfreezeRequest) error {
	return c.undo(ctx, "/api/v1/unfreeze", undoBody{
		SerialNumber:  req.SerialNumber,
		ReferenceID:   req.FreezeID,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount.StringFixed(),
		Fee:           optionalAmount(req.Fee),
		Currency:      req.Amount.Currency(),
		Reason:        req.Reason,
	})
}

func (c *HTTPClient) Reversal(ctx context.Context, req ReversalRequest) error {
	return c.undo(ctx, "/api/v1/reversal", undoBody{
		SerialNumber:  req.SerialNumber,
		ReferenceID:   req.TransactionID,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount.StringFixed(),
		Fee:           optionalAmount(req.Fee),
		Currency:      req.Amount.Currency(),
		Reason:        req.Reason,
	})
}

func (c *HTTPClient) book(ctx context.Context, path string, req Request) (Result, error) {
	var resp response
	err := c.client.Post(ctx, path, bookingBody{
		SerialNumber:   req.SerialNumber,
		CustomerID:     req.CustomerID,
		AccountNumber:  req.AccountNumber,
		ProductCode:    req.ProductCode,
		Amount:         req.Amount.StringFixed(),
		Fee:            req.Fee.StringFixed(),
		Currency:       req.Amount.Currency(),
		SourceCurrency: req.SourceCurrency,
		TargetCurrency: req.TargetCurrency,
		Type:           req.Type,
		Description:    req.Description,
	}, &resp)
	if err != nil {
		return Result{}, wrap(err)
	}
	if !resp.Success {
		return Result{}, fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}
	return Result{TransactionID: resp.TransactionID}, nil
}

func (c *HTTPClient) undo(ctx context.Context, path string, body undoBody) error {
	var resp response
	if err := c.client.Post(ctx, path, body, &resp); err != nil {
		return wrap(err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}
	return nil
}

func optionalAmount(m sharedDomain.Money) string {
	if m.Currency() == "" {
		return ""
	}
	return m.StringFixed()
}

func wrap(err error) error {
	if httpjson.IsClientError(err) {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return err
}
