// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/interfaces/http/handlers"
	"github.com/your-org/order-fulfillment/internal/interfaces/http/middleware"
)

// Handlers groups the HTTP handlers mounted under the API prefix
type Handlers struct {
	Cart      *handlers.CartHandler
	Checkout  *handlers.CheckoutHandler
	Order     *handlers.OrderHandler
	Payment   *handlers.PaymentHandler
	Refund    *handlers.RefundHandler
	Inventory *handlers.InventoryHandler
	Coupon    *handlers.CouponHandler
	Product   *handlers.ProductHandler
}

// SetupProductRoutes sets up public catalog and stock lookups
func SetupProductRoutes(rg *gin.RouterGroup, h Handlers) {
	products := rg.Group("/products")
	{
		products.GET("/:id", h.Product.GetProduct)
	}

	inventory := rg.Group("/inventory")
	{
		inventory.GET("/:id/availability", h.Inventory.CheckAvailability)
	}
}

// SetupCartRoutes sets up cart routes
func SetupCartRoutes(rg *gin.RouterGroup, h Handlers, cfg *config.Config) {
	cart := rg.Group("/cart")
	cart.Use(middleware.AuthMiddleware(cfg))
	{
		cart.GET("", h.Cart.GetCart)
		cart.DELETE("", h.Cart.ClearCart)
		cart.POST("/items", h.Cart.AddItem)
		cart.PUT("/items/:id", h.Cart.UpdateItem)
		cart.DELETE("/items/:id", h.Cart.RemoveItem)
		cart.POST("/select", h.Cart.SelectItems)
	}
}

// SetupCheckoutRoutes sets up checkout and coupon preview routes
func SetupCheckoutRoutes(rg *gin.RouterGroup, h Handlers, cfg *config.Config) {
	checkout := rg.Group("/checkout")
	checkout.Use(middleware.AuthMiddleware(cfg))
	{
		checkout.POST("", h.Checkout.Checkout)
		checkout.GET("/preview", h.Checkout.Preview)
		checkout.POST("/coupon", h.Checkout.ApplyCoupon)
		checkout.DELETE("/coupon", h.Checkout.RemoveCoupon)
	}

	coupons := rg.Group("/coupons")
	coupons.Use(middleware.AuthMiddleware(cfg))
	{
		coupons.POST("/validate", h.Coupon.ValidateCoupon)
	}
}

// SetupOrderRoutes sets up customer order routes
func SetupOrderRoutes(rg *gin.RouterGroup, h Handlers, cfg *config.Config) {
	orders := rg.Group("/orders")
	orders.Use(middleware.AuthMiddleware(cfg))
	{
		orders.GET("", h.Order.GetUserOrders)
		orders.GET("/:id", h.Order.GetOrder)
		orders.POST("/:id/cancel", h.Order.CancelOrder)
		orders.POST("/:id/payment", h.Checkout.RetryPayment)
	}
}

// SetupRefundRoutes sets up customer refund routes
func SetupRefundRoutes(rg *gin.RouterGroup, h Handlers, cfg *config.Config) {
	refunds := rg.Group("/refunds")
	refunds.Use(middleware.AuthMiddleware(cfg))
	{
		refunds.POST("", h.Refund.RequestRefund)
		refunds.GET("", h.Refund.GetUserRefunds)
		refunds.GET("/:id", h.Refund.GetRefund)
		refunds.POST("/:id/cancel", h.Refund.CancelRefund)
		refunds.POST("/:id/notes", h.Refund.AddNote)
	}
}

// SetupWebhookRoutes sets up collaborator callbacks. They are authenticated
// by signature rather than by bearer token.
func SetupWebhookRoutes(rg *gin.RouterGroup, h Handlers) {
	webhooks := rg.Group("/webhooks")
	{
		webhooks.POST("/payments", h.Payment.Webhook)
	}
}

// SetupAdminRoutes sets up admin routes
func SetupAdminRoutes(rg *gin.RouterGroup, h Handlers, cfg *config.Config) {
	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.AdminMiddleware())

	products := admin.Group("/products")
	{
		products.POST("", h.Product.CreateProduct)
		products.PUT("/:id/active", h.Product.SetActive)
	}

	inventory := admin.Group("/inventory")
	{
		inventory.POST("", h.Inventory.CreateInventory)
		inventory.GET("/low-stock", h.Inventory.GetLowStock)
		inventory.GET("/:product_id", h.Inventory.GetInventory)
		inventory.GET("/:product_id/history", h.Inventory.GetHistory)
		inventory.POST("/:product_id/adjust", h.Inventory.AdjustStock)
	}

	coupons := admin.Group("/coupons")
	{
		coupons.POST("", h.Coupon.CreateCoupon)
		coupons.GET("", h.Coupon.ListCoupons)
		coupons.GET("/:code", h.Coupon.GetCoupon)
		coupons.POST("/:code/deactivate", h.Coupon.DeactivateCoupon)
	}

	orders := admin.Group("/orders")
	{
		orders.GET("", h.Order.GetAllOrders)
		orders.GET("/:id", h.Order.GetOrderAdmin)
		orders.POST("/:id/confirm", h.Order.ConfirmOrder)
		orders.POST("/:id/ship", h.Order.ShipOrder)
		orders.POST("/:id/deliver", h.Order.DeliverOrder)
		orders.POST("/:id/complete", h.Order.CompleteOrder)
		orders.POST("/:id/cancel", h.Order.CancelOrderAdmin)
	}

	refunds := admin.Group("/refunds")
	{
		refunds.GET("", h.Refund.GetAllRefunds)
		refunds.GET("/:id", h.Refund.GetRefundAdmin)
		refunds.POST("/:id/approve", h.Refund.ApproveRefund)
		refunds.POST("/:id/reject", h.Refund.RejectRefund)
		refunds.POST("/:id/process", h.Refund.ProcessRefund)
		refunds.POST("/:id/status", h.Refund.UpdateRefundStatus)
		refunds.POST("/:id/notes", h.Refund.AddNoteAdmin)
	}
}

// SetupRoutes mounts every route group on the API prefix
func SetupRoutes(rg *gin.RouterGroup, h Handlers, cfg *config.Config) {
	SetupProductRoutes(rg, h)
	SetupCartRoutes(rg, h, cfg)
	SetupCheckoutRoutes(rg, h, cfg)
	SetupOrderRoutes(rg, h, cfg)
	SetupRefundRoutes(rg, h, cfg)
	SetupWebhookRoutes(rg, h)
	SetupAdminRoutes(rg, h, cfg)
}
