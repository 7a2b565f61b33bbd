// internal/domain/payment/gateway.go
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Status is the outcome reported by the payment collaborator
type Status string

const (
	StatusPaid    Status = "PAID"
	StatusPending Status = "PENDING"
	StatusFailed  Status = "FAILED"
)

// RefundStatus is the outcome of a payment reversal
type RefundStatus string

const (
	RefundSucceeded RefundStatus = "SUCCESS"
	RefundFailed    RefundStatus = "FAILED"
)

// Request asks the collaborator to collect money for an order
type Request struct {
	OrderID       string `json:"order_id"`
	UserID        uint   `json:"user_id"`
	TotalAmount   int64  `json:"total_amount"`
	Currency      string `json:"currency"`
	PaymentIntent string `json:"payment_intent"`
}

// Result is the collaborator's answer to a payment request
type Result struct {
	Status        Status `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	GatewayURL    string `json:"gateway_url,omitempty"`
	WalletUsed    int64  `json:"wallet_used"`
	CashbackUsed  int64  `json:"cashback_used"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// RefundRequest asks the collaborator to pay money back
type RefundRequest struct {
	RefundID      string `json:"refund_id"`
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	WalletRefund  int64  `json:"wallet_refund"`
}

// RefundResult is the collaborator's answer to a refund request
type RefundResult struct {
	Status          RefundStatus `json:"status"`
	GatewayRefundID string       `json:"gateway_refund_id,omitempty"`
	FailureReason   string       `json:"failure_reason,omitempty"`
}

// Gateway is the payment collaborator. An error means no usable reply was
// received; a reply with a failed status is not an error.
type Gateway interface {
	RequestPayment(ctx context.Context, req Request) (*Result, error)
	RefundPayment(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// Notification is the settlement callback sent by the collaborator
type Notification struct {
	OrderID       string `json:"order_id" binding:"required"`
	Status        Status `json:"status" binding:"required"`
	TransactionID string `json:"transaction_id"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a callback signature in constant time
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
