package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/domain/payment"
	"github.com/your-org/order-fulfillment/internal/pkg/logger"
)

func TestPaymentClientRequestPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))

		var req payment.Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ORD-1", req.OrderID)
		assert.Equal(t, int64(22500), req.TotalAmount)

		_ = json.NewEncoder(w).Encode(payment.Result{Status: payment.StatusPending, GatewayURL: "https://pay.example.com/ORD-1"})
	}))
	defer srv.Close()

	c := NewPaymentClient(config.PaymentConfig{BaseURL: srv.URL, APIKey: "key-1", Timeout: time.Second}, logger.Discard())
	res, err := c.RequestPayment(context.Background(), payment.Request{OrderID: "ORD-1", TotalAmount: 22500})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, res.Status)
	assert.Equal(t, "https://pay.example.com/ORD-1", res.GatewayURL)
}

func TestPaymentClientRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refunds", r.URL.Path)
		_ = json.NewEncoder(w).Encode(payment.RefundResult{Status: payment.RefundFailed, FailureReason: "closed"})
	}))
	defer srv.Close()

	c := NewPaymentClient(config.PaymentConfig{BaseURL: srv.URL, Timeout: time.Second}, logger.Discard())
	res, err := c.RefundPayment(context.Background(), payment.RefundRequest{RefundID: "RFD-1", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, payment.RefundFailed, res.Status)
	assert.Equal(t, "closed", res.FailureReason)
}

func TestPaymentClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payments":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		case "/refunds":
			_, _ = w.Write([]byte(`{"status":"MAYBE"}`))
		}
	}))
	defer srv.Close()

	c := NewPaymentClient(config.PaymentConfig{BaseURL: srv.URL, Timeout: time.Second}, logger.Discard())

	_, err := c.RequestPayment(context.Background(), payment.Request{OrderID: "ORD-1"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)

	_, err = c.RefundPayment(context.Background(), payment.RefundRequest{RefundID: "RFD-1"})
	assert.Error(t, err)
}

func TestPaymentClientRefundDeclined(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusUnprocessableEntity)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte("transaction already reversed"))
	}))
	defer srv.Close()

	c := NewPaymentClient(config.PaymentConfig{BaseURL: srv.URL, Timeout: time.Second}, logger.Discard())

	res, err := c.RefundPayment(context.Background(), payment.RefundRequest{RefundID: "RFD-1", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, payment.RefundFailed, res.Status)
	assert.Equal(t, "transaction already reversed", res.FailureReason)

	for _, code := range []int{http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusServiceUnavailable} {
		status.Store(int32(code))
		_, err = c.RefundPayment(context.Background(), payment.RefundRequest{RefundID: "RFD-1", Amount: 100})
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr, "status %d", code)
		assert.False(t, statusErr.Declined())
	}
}

func TestPaymentClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewPaymentClient(config.PaymentConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, logger.Discard())
	_, err := c.RequestPayment(context.Background(), payment.Request{OrderID: "ORD-1"})
	assert.Error(t, err)
}

func TestAddressClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if r.URL.Path == "/users/7/addresses/3/validate" {
			_, _ = w.Write([]byte(`{"is_valid":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"is_valid":false,"error":"pincode not serviceable"}`))
	}))
	defer srv.Close()

	c := NewAddressClient(config.AddressConfig{BaseURL: srv.URL, Timeout: time.Second}, logger.Discard())

	res, err := c.ValidateAddress(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.True(t, res.IsValid)

	res, err = c.ValidateAddress(context.Background(), 7, 4)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "pincode not serviceable", res.Error)
}
