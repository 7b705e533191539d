package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/fundsaga/internal/integration/ledger"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/queries"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/sagatest"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

type fixture struct {
	h      *sagatest.Harness
	health *observability.HealthRegistry
	srv    http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := sagatest.New(t, sagatest.Options{})
	health := observability.NewHealthRegistry()
	health.Register("database", observability.DatabaseHealthChecker(h.Conn.Ping))

	srv := NewServer(DefaultServerConfig(), Deps{
		Subscriptions:  h.Handler,
		Transactions:   queries.NewGetTransactionHandler(h.Transactions, h.Usages),
		Health:         health,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) }),
		Metrics:        h.Metrics,
	}, h.Logger)
	return &fixture{h: h, health: health, srv: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func subscriptionBody(amount, currency, couponID string) string {
	body, _ := json.Marshal(SubscriptionRequest{
		CustomerID:    sagatest.CustomerID,
		AccountNumber: sagatest.AccountNumber,
		ProductCode:   sagatest.ProductCNY,
		Amount:        amount,
		Currency:      currency,
		Channel:       "WEB",
		CouponID:      couponID,
	})
	return string(body)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateSubscription_Success(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/subscriptions", subscriptionBody("10000", "CNY", sagatest.CouponHalf),
		CorrelationHeader, "corr-42")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "corr-42", rec.Header().Get(CorrelationHeader))

	resp := decode[SubscriptionResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Len(t, resp.SerialNumber, 29)
	assert.Equal(t, "SUCCESS", resp.Status)
	assert.Equal(t, "COMPLETED", resp.SagaState)
	assert.Equal(t, "DIRECT_ACCOUNTING", resp.AccountingType)
	assert.Equal(t, "10000.00", resp.Amount)
	assert.Equal(t, "CNY", resp.Currency)
	assert.Equal(t, "150.00", resp.OriginalFee)
	assert.Equal(t, "75.00", resp.Discount)
	assert.Equal(t, "75.00", resp.FinalFee)
	assert.Equal(t, "10075.00", resp.TotalDeduction)
	assert.Empty(t, resp.ErrorCode)

	got := f.do(t, http.MethodGet, "/api/v1/subscriptions/"+resp.SerialNumber, "")
	require.Equal(t, http.StatusOK, got.Code)
	dto := decode[queries.TransactionDTO](t, got)
	assert.Equal(t, resp.SerialNumber, dto.SerialNumber)
	assert.Equal(t, "SUCCESS", dto.Status)
	require.Len(t, dto.CouponUsages, 1)
	assert.Equal(t, sagatest.CouponHalf, dto.CouponUsages[0].CouponID)
}

func TestCreateSubscription_GeneratesCorrelationID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/subscriptions/SUB-missing", "")

	assert.Len(t, rec.Header().Get(CorrelationHeader), 36)
}

func TestCreateSubscription_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
		serial bool
	}{
		{"malformed json", `{"customer_id":`, http.StatusBadRequest, "INVALID_REQUEST", false},
		{"unknown field", `{"customer":"C001"}`, http.StatusBadRequest, "INVALID_REQUEST", false},
		{"unknown currency", subscriptionBody("10000", "XXX", ""), http.StatusBadRequest, "1001", false},
		{"bad amount", subscriptionBody("ten", "CNY", ""), http.StatusBadRequest, "1001", false},
		{"below minimum", subscriptionBody("10", "CNY", ""), http.StatusUnprocessableEntity, "1301", true},
		{"refused coupon", subscriptionBody("10000", "CNY", "CP404"), http.StatusUnprocessableEntity, "2001", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rec := f.do(t, http.MethodPost, "/api/v1/subscriptions", tt.body)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.serial {
				resp := decode[SubscriptionResponse](t, rec)
				assert.False(t, resp.Success)
				assert.Equal(t, tt.code, resp.ErrorCode)
				assert.NotEmpty(t, resp.SerialNumber)
				assert.Equal(t, "FAILED", resp.Status)
				return
			}
			apiErr := decode[APIError](t, rec)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestCreateSubscription_ExternalFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.h.Ledger.Fail(ledger.OpAccounting, errors.New("connection reset"))

	rec := f.do(t, http.MethodPost, "/api/v1/subscriptions", subscriptionBody("10000", "CNY", ""))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[SubscriptionResponse](t, rec)
	assert.Equal(t, "2101", resp.ErrorCode)
	assert.Equal(t, "FAILED", resp.Status)
	assert.Equal(t, "REQUEST_SAVED", resp.SagaState)
}

func TestGetSubscription_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/subscriptions/SUB00000000000000000000000000", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[APIError](t, rec).Code)
	assert.Equal(t, int64(1), f.h.Metrics.GetCounter(observability.MetricHTTPRequests,
		observability.T("method", http.MethodGet),
		observability.T("route", "/api/v1/subscriptions/{serialNumber}"),
		observability.T("status", "404"),
	))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, observability.HealthStatusHealthy, decode[observability.OverallHealth](t, rec).Status)

	f.health.Register("database", observability.DatabaseHealthChecker(func(context.Context) error {
		return errors.New("closed")
	}))
	rec = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "database connection failed"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
