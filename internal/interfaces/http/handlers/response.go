package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/order-fulfillment/internal/domain/order"
	"github.com/your-org/order-fulfillment/internal/interfaces/http/middleware"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
)

// respondError maps a domain error to its status. Internal failures are
// attached to the context for the request logger and never echoed.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	kind := apperrors.KindOf(err)
	body := gin.H{
		"error": err.Error(),
		"kind":  kind,
	}
	if code := apperrors.CodeOf(err); code != "" {
		body["code"] = code
	}
	if kind == apperrors.KindInternalFailure {
		body["error"] = "Internal server error"
	}

	c.JSON(apperrors.HTTPStatus(kind), body)
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request data",
		"details": err.Error(),
	})
}

func respondOK(c *gin.Context, status int, message string, data any) {
	body := gin.H{"message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// uintParam parses a numeric path parameter, answering 400 when it is not one
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, false
	}
	return uint(v), true
}

func customer(c *gin.Context) order.Actor {
	userID, _ := middleware.GetUserIDFromContext(c)
	return order.Actor{ID: userID, Role: order.RoleCustomer}
}

func admin(c *gin.Context) order.Actor {
	userID, _ := middleware.GetUserIDFromContext(c)
	return order.Actor{ID: userID, Role: order.RoleAdmin}
}
