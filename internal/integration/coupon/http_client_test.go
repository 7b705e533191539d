package coupon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	marketingDomain "github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, reply string, check func(path string, body map[string]any)) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if check != nil {
			check(r.URL.Path, body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, time.Second)
}

func TestHTTPClient_TrialCalculate(t *testing.T) {
	client := serve(t, http.StatusOK,
		`{"success":true,"coupon_type":"FIXED","discount_amount":"20"}`,
		func(path string, body map[string]any) {
			assert.Equal(t, "/api/v1/coupons/trial", path)
			assert.Equal(t, "CP1", body["coupon_id"])
			assert.Equal(t, "150.00", body["fee"])
		})

	info, err := client.TrialCalculate(context.Background(), TrialRequest{
		CustomerID:  "C1",
		CouponID:    "CP1",
		Amount:      sharedDomain.MustMoney("10000", "CNY"),
		OriginalFee: sharedDomain.MustMoney("150", "CNY"),
	})
	require.NoError(t, err)
	assert.Equal(t, "CP1", info.CouponID)
	assert.Equal(t, marketingDomain.CouponFixed, info.Type)
	require.NotNil(t, info.DiscountAmount)
	assert.Equal(t, "20", info.DiscountAmount.String())
	assert.Nil(t, info.DiscountRate)
}

func TestHTTPClient_UseCoupon(t *testing.T) {
	client := serve(t, http.StatusOK, `{"success":true,"usage_id":"U9"}`, func(path string, body map[string]any) {
		assert.Equal(t, "/api/v1/coupons/use", path)
		assert.Equal(t, "SUB1", body["serial_number"])
	})

	usageID, err := client.UseCoupon(context.Background(), UseRequest{
		SerialNumber: "SUB1",
		CouponID:     "CP1",
		OriginalFee:  sharedDomain.MustMoney("150", "CNY"),
		FinalFee:     sharedDomain.MustMoney("130", "CNY"),
	})
	require.NoError(t, err)
	assert.Equal(t, "U9", usageID)
}

func TestHTTPClient_Rejected(t *testing.T) {
	t.Run("business refusal", func(t *testing.T) {
		client := serve(t, http.StatusOK, `{"success":false,"message":"expired"}`, nil)
		err := client.ReturnCoupon(context.Background(), ReturnRequest{CouponID: "CP1", UsageID: "U1"})
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("bad request", func(t *testing.T) {
		client := serve(t, http.StatusBadRequest, `{}`, nil)
		_, err := client.TrialCalculate(context.Background(), TrialRequest{
			Amount:      sharedDomain.MustMoney("1", "CNY"),
			OriginalFee: sharedDomain.MustMoney("0", "CNY"),
		})
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("server failure", func(t *testing.T) {
		client := serve(t, http.StatusInternalServerError, `{}`, nil)
		_, err := client.UseCoupon(context.Background(), UseRequest{
			OriginalFee: sharedDomain.MustMoney("1", "CNY"),
			FinalFee:    sharedDomain.MustMoney("1", "CNY"),
		})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrRejected)
	})
}
