package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/integration/httpjson"
	marketingDomain "github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	"github.com/shopspring/decimal"
)

type trialBody struct {
	CustomerID  string `json:"customer_id"`
	CouponID    string `json:"coupon_id"`
	ProductCode string `json:"product_code"`
	Amount      string `json:"amount"`
	Fee         string `json:"fee"`
	Currency    string `json:"currency"`
}

type trialResponse struct {
	Success        bool             `json:"success"`
	Message        string           `json:"message"`
	CouponType     string           `json:"coupon_type"`
	DiscountRate   *decimal.Decimal `json:"discount_rate,omitempty"`
	DiscountAmount *decimal.Decimal `json:"discount_amount,omitempty"`
}

type useBody struct {
	SerialNumber string `json:"serial_number"`
	CustomerID   string `json:"customer_id"`
	CouponID     string `json:"coupon_id"`
	ProductCode  string `json:"product_code"`
	OriginalFee  string `json:"original_fee"`
	FinalFee     string `json:"final_fee"`
	Currency     string `json:"currency"`
}

type returnBody struct {
	SerialNumber string `json:"serial_number"`
	CustomerID   string `json:"customer_id"`
	CouponID     string `json:"coupon_id"`
	UsageID      string `json:"usage_id"`
	Reason       string `json:"reason,omitempty"`
}

type usageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UsageID string `json:"usage_id"`
}

// HTTPClient talks to the marketing JSON API.
type HTTPClient struct {
	client *httpjson.Client
}

// NewHTTPClient creates a client for the marketing system at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: httpjson.NewClient(baseURL, timeout)}
}

func (c *HTTPClient) TrialCalculate(ctx context.Context, req TrialRequest) (marketingDomain.CouponInfo, error) {
	var resp trialResponse
	err := c.client.Post(ctx, "/api/v1/coupons/trial", trialBody{
		CustomerID:  req.CustomerID,
		CouponID:    req.CouponID,
		ProductCode: req.ProductCode,
		Amount:      req.Amount.StringFixed(),
		Fee:         req.OriginalFee.StringFixed(),
		Currency:    req.Amount.Currency(),
	}, &resp)
	if err != nil {
		return marketingDomain.CouponInfo{}, wrap(err)
	}
	if !resp.Success {
		return marketingDomain.CouponInfo{}, fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}
	return marketingDomain.CouponInfo{
		CouponID:       req.CouponID,
		Type:           marketingDomain.CouponType(resp.CouponType),
		DiscountRate:   resp.DiscountRate,
		DiscountAmount: resp.DiscountAmount,
	}, nil
}

func (c *HTTPClient) UseCoupon(ctx context.Context, req UseRequest) (string, error) {
	var resp usageResponse
	err := c.client.Post(ctx, "/api/v1/coupons/use", useBody{
		SerialNumber: req.SerialNumber,
		CustomerID:   req.CustomerID,
		CouponID:     req.CouponID,
		ProductCode:  req.ProductCode,
		OriginalFee:  req.OriginalFee.StringFixed(),
		FinalFee:     req.FinalFee.StringFixed(),
		Currency:     req.FinalFee.Currency(),
	}, &resp)
	if err != nil {
		return "", wrap(err)
	}
	if !resp.Success {
		return "", fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}
	return resp.UsageID, nil
}

func (c *HTTPClient) ReturnCoupon(ctx context.Context, req ReturnRequest) error {
	var resp usageResponse
	err := c.client.Post(ctx, "/api/v1/coupons/return", returnBody{
		SerialNumber: req.SerialNumber,
		CustomerID:   req.CustomerID,
		CouponID:     req.CouponID,
		UsageID:      req.UsageID,
		Reason:       req.Reason,
	}, &resp)
	if err != nil {
		return wrap(err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}
	return nil
}

func wrap(err error) error {
	if httpjson.IsClientError(err) {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return err
}
