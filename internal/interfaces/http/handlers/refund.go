package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/order-fulfillment/internal/domain/refund"
	"github.com/your-org/order-fulfillment/internal/interfaces/http/middleware"
)

// RefundHandler handles refund endpoints for customers and admins
type RefundHandler struct {
	refundService *refund.Service
}

// NewRefundHandler creates a new refund handler
func NewRefundHandler(refundService *refund.Service) *RefundHandler {
	return &RefundHandler{refundService: refundService}
}

// RequestRefund handles POST /refunds
func (h *RefundHandler) RequestRefund(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req refund.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	r, err := h.refundService.Request(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Refund requested successfully", r)
}

// GetUserRefunds handles GET /refunds
func (h *RefundHandler) GetUserRefunds(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req refund.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, err)
		return
	}
	req.UserID = userID

	h.list(c, &req)
}

// GetRefund handles GET /refunds/:id
func (h *RefundHandler) GetRefund(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	r, err := h.refundService.GetForUser(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Refund retrieved successfully", r)
}

// CancelRefund handles POST /refunds/:id/cancel
func (h *RefundHandler) CancelRefund(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	r, err := h.refundService.Cancel(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Refund cancelled successfully", r)
}

// AddNote handles POST /refunds/:id/notes
func (h *RefundHandler) AddNote(c *gin.Context) {
	h.note(c, false)
}

// GetAllRefunds handles GET /admin/refunds
func (h *RefundHandler) GetAllRefunds(c *gin.Context) {
	var req refund.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, err)
		return
	}

	h.list(c, &req)
}

// GetRefundAdmin handles GET /admin/refunds/:id
func (h *RefundHandler) GetRefundAdmin(c *gin.Context) {
	r, err := h.refundService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Refund retrieved successfully", r)
}

// ApproveRefund handles POST /admin/refunds/:id/approve
func (h *RefundHandler) ApproveRefund(c *gin.Context) {
	var req refund.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	r, err := h.refundService.Approve(c.Request.Context(), c.Param("id"), admin(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Refund approved successfully", r)
}

// RejectRefund handles POST /admin/refunds/:id/reject
func (h *RefundHandler) RejectRefund(c *gin.Context) {
	var req refund.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	r, err := h.refundService.Reject(c.Request.Context(), c.Param("id"), admin(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Refund rejected", r)
}

// ProcessRefund handles POST /admin/refunds/:id/process. A refund still
// PROCESSING in the response is waiting on the payment gateway.
func (h *RefundHandler) ProcessRefund(c *gin.Context) {
	r, err := h.refundService.Process(c.Request.Context(), c.Param("id"), admin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if r.Status == refund.StatusProcessing {
		status = http.StatusAccepted
	}
	respondOK(c, status, "Refund processed", r)
}

// UpdateRefundStatus handles POST /admin/refunds/:id/status
func (h *RefundHandler) UpdateRefundStatus(c *gin.Context) {
	var req refund.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	r, err := h.refundService.UpdateStatus(c.Request.Context(), c.Param("id"), admin(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Refund status updated successfully", r)
}

// AddNoteAdmin handles POST /admin/refunds/:id/notes
func (h *RefundHandler) AddNoteAdmin(c *gin.Context) {
	h.note(c, true)
}

func (h *RefundHandler) note(c *gin.Context, asAdmin bool) {
	var req refund.NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	actor := customer(c)
	if asAdmin {
		actor = admin(c)
	}

	action, err := h.refundService.AddNote(c.Request.Context(), c.Param("id"), actor, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Note added", action)
}

func (h *RefundHandler) list(c *gin.Context, req *refund.ListRequest) {
	result, err := h.refundService.List(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Refunds retrieved successfully", result)
}
