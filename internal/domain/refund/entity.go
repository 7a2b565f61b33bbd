// internal/domain/refund/entity.go
package refund

import (
	"time"
)

// Type is the scope of a refund
type Type string

const (
	TypeFull     Type = "FULL"
	TypePartial  Type = "PARTIAL"
	TypeShipping Type = "SHIPPING"
)

// Valid reports whether t is a known refund type
func (t Type) Valid() bool {
	return t == TypeFull || t == TypePartial || t == TypeShipping
}

// Reason is why the customer wants their money back
type Reason string

const (
	ReasonDamagedProduct   Reason = "DAMAGED_PRODUCT"
	ReasonDefectiveProduct Reason = "DEFECTIVE_PRODUCT"
	ReasonWrongItem        Reason = "WRONG_ITEM"
	ReasonNotAsDescribed   Reason = "NOT_AS_DESCRIBED"
	ReasonMissingItems     Reason = "MISSING_ITEMS"
	ReasonLateDelivery     Reason = "LATE_DELIVERY"
	ReasonChangedMind      Reason = "CHANGED_MIND"
	ReasonOther            Reason = "OTHER"
)

// Valid reports whether r is a known reason
func (r Reason) Valid() bool {
	switch r {
	case ReasonDamagedProduct, ReasonDefectiveProduct, ReasonWrongItem, ReasonNotAsDescribed,
		ReasonMissingItems, ReasonLateDelivery, ReasonChangedMind, ReasonOther:
		return true
	}
	return false
}

// SellerFault reports whether the seller is responsible, which waives the
// processing fee.
func (r Reason) SellerFault() bool {
	return r != ReasonChangedMind && r != ReasonOther
}

// DamagesStock reports whether returned units go to the damaged bucket
func (r Reason) DamagesStock() bool {
	return r == ReasonDamagedProduct || r == ReasonDefectiveProduct
}

// Status represents the refund status
type Status string

const (
	StatusRequested       Status = "REQUESTED"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusProcessing      Status = "PROCESSING"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
	StatusCancelled       Status = "CANCELLED"
)

// Active reports whether the refund still blocks a new one for its order
func (s Status) Active() bool {
	return s != StatusRejected && s != StatusCancelled
}

// Evidence holds links to the customer's photos and videos
type Evidence struct {
	Photos []string `json:"photos,omitempty"`
	Videos []string `json:"videos,omitempty"`
}

// Empty reports whether nothing was attached
func (e Evidence) Empty() bool {
	return len(e.Photos) == 0 && len(e.Videos) == 0
}

// Amounts is the money breakdown of a refund (embedded in Refund)
type Amounts struct {
	ItemsTotal        int64 `gorm:"not null;default:0" json:"items_total"`
	ShippingRefund    int64 `gorm:"not null;default:0" json:"shipping_refund"`
	TaxRefund         int64 `gorm:"not null;default:0" json:"tax_refund"`
	CouponRefund      int64 `gorm:"not null;default:0" json:"coupon_refund"`
	WalletRefund      int64 `gorm:"not null;default:0" json:"wallet_refund"`
	ProcessingFee     int64 `gorm:"not null;default:0" json:"processing_fee"`
	RestockingFee     int64 `gorm:"not null;default:0" json:"restocking_fee"`
	TotalRefundAmount int64 `gorm:"not null;default:0" json:"total_refund_amount"`
}

// Timeline records when each status was entered (embedded in Refund)
type Timeline struct {
	RequestedAt       *time.Time `json:"requested_at,omitempty"`
	PendingApprovalAt *time.Time `json:"pending_approval_at,omitempty"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
	RejectedAt        *time.Time `json:"rejected_at,omitempty"`
	ProcessingAt      *time.Time `json:"processing_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	FailedAt          *time.Time `json:"failed_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
}

// Refund is a request to walk back money taken for an order
type Refund struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	RefundID    string   `gorm:"uniqueIndex;not null;size:40" json:"refund_id"`
	OrderID     string   `gorm:"not null;index;size:40" json:"order_id"`
	UserID      uint     `gorm:"not null;index" json:"user_id"`
	Type        Type     `gorm:"not null;size:20" json:"refund_type"`
	Reason      Reason   `gorm:"not null;size:30" json:"reason"`
	Description string   `gorm:"type:text" json:"description"`
	Evidence    Evidence `gorm:"serializer:json;type:text" json:"evidence"`
	Status      Status   `gorm:"not null;size:20;index" json:"status"`

	Amounts  Amounts  `gorm:"embedded;embeddedPrefix:amount_" json:"amounts"`
	Timeline Timeline `gorm:"embedded" json:"timeline"`

	RejectionReason  string `gorm:"type:text" json:"rejection_reason,omitempty"`
	FailureReason    string `gorm:"type:text" json:"failure_reason,omitempty"`
	GatewayRefundID  string `gorm:"size:100" json:"gateway_refund_id,omitempty"`
	IsStockRestored  bool   `gorm:"not null" json:"is_stock_restored"`
	IsCouponRestored bool   `gorm:"not null" json:"is_coupon_restored"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items        []RefundItem  `gorm:"foreignKey:RefundID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	AdminActions []AdminAction `gorm:"foreignKey:RefundID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"admin_actions,omitempty"`
}

// RefundItem is one order line (or part of it) being refunded
type RefundItem struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	RefundID   uint   `gorm:"not null;index" json:"-"`
	ProductID  uint   `gorm:"not null" json:"product_id"`
	VariantSKU string `gorm:"size:100" json:"variant_sku,omitempty"`
	Title      string `gorm:"size:255" json:"title"`
	Quantity   int    `gorm:"not null" json:"quantity"`
	UnitPrice  int64  `gorm:"not null" json:"unit_price"`
	Amount     int64  `gorm:"not null" json:"amount"`
}

// AdminAction is the append-only audit trail of a refund
type AdminAction struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RefundID   uint      `gorm:"not null;index" json:"-"`
	Action     string    `gorm:"not null;size:40" json:"action"`
	FromStatus Status    `gorm:"size:20" json:"from_status,omitempty"`
	ToStatus   Status    `gorm:"size:20" json:"to_status,omitempty"`
	ActorID    uint      `json:"actor_id"`
	ActorRole  string    `gorm:"size:20" json:"actor_role"`
	Note       string    `gorm:"type:text" json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName overrides
func (Refund) TableName() string      { return "refunds" }
func (RefundItem) TableName() string  { return "refund_items" }
func (AdminAction) TableName() string { return "refund_admin_actions" }

// Models lists the tables owned by refunds
func Models() []any {
	return []any{&Refund{}, &RefundItem{}, &AdminAction{}}
}

// Refunds in these statuses no longer block a new refund on the order. A
// FAILED refund can be reopened and still counts as open.
var settledStatuses = []Status{StatusRejected, StatusCancelled, StatusCompleted}

// ActiveRefundIndexSQL keeps at most one open refund per order
const ActiveRefundIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_refunds_active_order ON refunds(order_id) WHERE status NOT IN ('REJECTED', 'CANCELLED', 'COMPLETED')`

// CreateRequest represents a customer's refund request
type CreateRequest struct {
	OrderID     string        `json:"order_id" binding:"required"`
	Type        Type          `json:"refund_type" binding:"required"`
	Reason      Reason        `json:"reason" binding:"required"`
	Description string        `json:"description"`
	Evidence    Evidence      `json:"evidence"`
	Items       []ItemRequest `json:"items,omitempty"`
}

// ItemRequest selects a quantity of one order line
type ItemRequest struct {
	ProductID  uint   `json:"product_id" binding:"required"`
	VariantSKU string `json:"variant_sku,omitempty"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
}

// ApproveRequest represents an approval with its restoration choices
type ApproveRequest struct {
	RestoreStock  bool   `json:"restore_stock"`
	RestoreCoupon bool   `json:"restore_coupon"`
	Note          string `json:"note"`
}

// RejectRequest represents a rejection
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// StatusUpdateRequest represents a manual recovery transition
type StatusUpdateRequest struct {
	Status          Status `json:"status" binding:"required"`
	Note            string `json:"note"`
	GatewayRefundID string `json:"gateway_refund_id"`
	FailureReason   string `json:"failure_reason"`
}

// NoteRequest represents an audit note
type NoteRequest struct {
	Note string `json:"note" binding:"required"`
}

// ListRequest represents refund list query parameters
type ListRequest struct {
	Page   int    `form:"page,default=1"`
	Limit  int    `form:"limit,default=20"`
	Status Status `form:"status"`
	UserID uint   `form:"user_id"`
}

// Summary is the payload of refund events
type Summary struct {
	RefundID string `json:"refund_id"`
	OrderID  string `json:"order_id"`
	UserID   uint   `json:"user_id"`
	Type     Type   `json:"refund_type"`
	Reason   Reason `json:"reason"`
	Status   Status `json:"status"`
	Amount   int64  `json:"amount"`
}

// Summary returns the event payload of the refund
func (r *Refund) Summary() Summary {
	return Summary{
		RefundID: r.RefundID,
		OrderID:  r.OrderID,
		UserID:   r.UserID,
		Type:     r.Type,
		Reason:   r.Reason,
		Status:   r.Status,
		Amount:   r.Amounts.TotalRefundAmount,
	}
}
