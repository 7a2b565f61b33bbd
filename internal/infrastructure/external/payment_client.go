package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/domain/payment"
)

// PaymentClient talks to the payment service over HTTP
type PaymentClient struct {
	api *apiClient
}

// NewPaymentClient creates a payment gateway client
func NewPaymentClient(cfg config.PaymentConfig, log *logrus.Logger) *PaymentClient {
	return &PaymentClient{
		api: newAPIClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, log.WithField("component", "payment_client")),
	}
}

// RequestPayment asks the payment service to collect an order's payable amount
func (c *PaymentClient) RequestPayment(ctx context.Context, req payment.Request) (*payment.Result, error) {
	var res payment.Result
	if err := c.api.call(ctx, http.MethodPost, "/payments", req, &res); err != nil {
		return nil, err
	}
	switch res.Status {
	case payment.StatusPaid, payment.StatusPending, payment.StatusFailed:
		return &res, nil
	}
	return nil, fmt.Errorf("payment service returned unknown status %q", res.Status)
}

// RefundPayment asks the payment service to pay money back. A 4xx answer is
// a definite refusal and is reported as a failed refund, not an error.
func (c *PaymentClient) RefundPayment(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	var res payment.RefundResult
	if err := c.api.call(ctx, http.MethodPost, "/refunds", req, &res); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Declined() {
			return &payment.RefundResult{Status: payment.RefundFailed, FailureReason: statusErr.Reason()}, nil
		}
		return nil, err
	}
	switch res.Status {
	case payment.RefundSucceeded, payment.RefundFailed:
		return &res, nil
	}
	return nil, fmt.Errorf("payment service returned unknown refund status %q", res.Status)
}
