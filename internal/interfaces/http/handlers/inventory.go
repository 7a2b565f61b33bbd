// internal/interfaces/http/handlers/inventory.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/order-fulfillment/internal/domain/inventory"
)

// InventoryHandler handles inventory endpoints
type InventoryHandler struct {
	inventoryService *inventory.Service
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(inventoryService *inventory.Service) *InventoryHandler {
	return &InventoryHandler{inventoryService: inventoryService}
}

// AvailabilityQuery represents availability lookup parameters
type AvailabilityQuery struct {
	Quantity   int    `form:"quantity,default=1" binding:"min=1"`
	VariantSKU string `form:"variant_sku"`
}

// CreateInventory handles POST /admin/inventory
func (h *InventoryHandler) CreateInventory(c *gin.Context) {
	var req inventory.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	inv, err := h.inventoryService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Inventory created successfully", inv)
}

// GetInventory handles GET /admin/inventory/:product_id
func (h *InventoryHandler) GetInventory(c *gin.Context) {
	productID, ok := uintParam(c, "product_id")
	if !ok {
		return
	}

	inv, err := h.inventoryService.Get(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Inventory retrieved successfully", inv)
}

// AdjustStock handles POST /admin/inventory/:product_id/adjust
func (h *InventoryHandler) AdjustStock(c *gin.Context) {
	productID, ok := uintParam(c, "product_id")
	if !ok {
		return
	}

	var req inventory.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	req.ProductID = productID

	history, err := h.inventoryService.Adjust(c.Request.Context(), nil, req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Stock adjusted successfully", history)
}

// GetHistory handles GET /admin/inventory/:product_id/history
func (h *InventoryHandler) GetHistory(c *gin.Context) {
	productID, ok := uintParam(c, "product_id")
	if !ok {
		return
	}

	history, err := h.inventoryService.History(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Inventory history retrieved successfully", history)
}

// GetLowStock handles GET /admin/inventory/low-stock
func (h *InventoryHandler) GetLowStock(c *gin.Context) {
	items, err := h.inventoryService.LowStock(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Low stock items retrieved successfully", items)
}

// CheckAvailability handles GET /inventory/:id/availability
func (h *InventoryHandler) CheckAvailability(c *gin.Context) {
	productID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var q AvailabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	availability, err := h.inventoryService.CheckAvailability(c.Request.Context(), productID, q.Quantity, q.VariantSKU)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Availability checked", availability)
}
