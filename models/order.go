package models

import "time"

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusExpired OrderStatus = "expired"
	OrderStatusFailed  OrderStatus = "failed"
)

// Terminal reports whether no further transitions are possible for s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusExpired || s == OrderStatusFailed
}

// Order is the authoritative record of a purchase attempt for one product
// instance by one payer. The backend owns it; the client holds a read-mostly
// cached copy and must treat any authoritative read as overriding local state.
type Order struct {
	ID         string      `json:"id"`
	ProductRef string      `json:"product_ref"`
	PayerRef   string      `json:"payer_ref"`
	Amount     int64       `json:"amount"`
	Status     OrderStatus `json:"status"`
	CouponCode string      `json:"coupon_code,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// GatewaySessionPayload is the opaque session blob handed back by the
// commerce backend. The redirect URL inside it is the hosted-page fallback
// used when the payment widget is unavailable.
type GatewaySessionPayload struct {
	RedirectURL string `json:"redirect_url"`
}

// PaymentToken is 1:1 with an Order while the Order is pending. It must be
// re-issued if the Order's coupon changes and is discarded once the Order
// leaves pending.
type PaymentToken struct {
	OrderID        string                `json:"order_id"`
	SessionToken   string                `json:"session_token"`
	GatewayPayload GatewaySessionPayload `json:"gateway_payload"`
	Amount         int64                 `json:"amount"`
	Status         OrderStatus           `json:"status"`
}

type CreateOrderRequest struct {
	ProductRef string `json:"product_ref" binding:"required"`
	CouponCode string `json:"coupon_code"`
}

type UnlockEvent struct {
	OrderID    string      `json:"order_id"`
	ProductRef string      `json:"product_ref"`
	PayerRef   string      `json:"payer_ref"`
	Amount     int64       `json:"amount"`
	Status     OrderStatus `json:"status"`
	EventType  string      `json:"event_type"` // order_paid, result_unlocked
}

// Product describes one sellable assessment result. The same purchase and
// reconciliation flow is parametrized by this descriptor instead of being
// duplicated per assessment type.
type Product struct {
	Ref       string `json:"ref"`
	Name      string `json:"name"`
	BasePrice int64  `json:"base_price"`
	Currency  string `json:"currency"`
}
