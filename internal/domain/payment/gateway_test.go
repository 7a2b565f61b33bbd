package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"order_id":"ORD-1","status":"PAID"}`)
	sig := Sign("secret", body)

	assert.True(t, VerifySignature("secret", body, sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("secret", []byte(`{}`), sig))
	assert.False(t, VerifySignature("", body, sig))
	assert.False(t, VerifySignature("secret", body, ""))
}
