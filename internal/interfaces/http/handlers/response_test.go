package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name    string
		err     error
		status  int
		message string
		code    string
	}{
		{
			name:    "classified with code",
			err:     apperrors.New(apperrors.KindLimitExceeded, "too many refunds this month").WithCode("MONTHLY_LIMIT"),
			status:  http.StatusTooManyRequests,
			message: "too many refunds this month",
			code:    "MONTHLY_LIMIT",
		},
		{
			name:    "insufficient stock",
			err:     apperrors.New(apperrors.KindInsufficientStock, "only 1 left"),
			status:  http.StatusConflict,
			message: "only 1 left",
		},
		{
			name:    "unclassified is hidden",
			err:     errors.New("pq: relation does not exist"),
			status:  http.StatusInternalServerError,
			message: "Internal server error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondError(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.message, body["error"])
			if tc.code != "" {
				assert.Equal(t, tc.code, body["code"])
			} else {
				assert.NotContains(t, body, "code")
			}
			assert.Len(t, c.Errors, 1)
		})
	}
}

func TestUintParam(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for raw, ok := range map[string]bool{"12": true, "0": false, "abc": false, "-1": false} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: raw}}

		_, got := uintParam(c, "id")
		assert.Equal(t, ok, got, raw)
		if !ok {
			assert.Equal(t, http.StatusBadRequest, w.Code)
		}
	}
}
