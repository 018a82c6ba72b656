package models

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

type Coupon struct {
	Code            string       `json:"code"`
	DiscountType    DiscountType `json:"discount_type"`
	DisplayDiscount string       `json:"display_discount"`
}

// PricingQuote is a derived price with no side effects on order state.
// Invariant: FinalAmount = max(0, OriginalAmount - DiscountAmount).
type PricingQuote struct {
	OriginalAmount int64 `json:"original_amount"`
	DiscountAmount int64 `json:"discount_amount"`
	FinalAmount    int64 `json:"final_amount"`
}

// CouponValidation is the backend's verdict on a coupon code against a base
// amount. Message carries the backend's rejection reason verbatim.
type CouponValidation struct {
	Valid   bool          `json:"valid"`
	Message string        `json:"message"`
	Coupon  *Coupon       `json:"coupon,omitempty"`
	Pricing *PricingQuote `json:"pricing,omitempty"`
}

type ValidateCouponRequest struct {
	ProductRef string `json:"product_ref" binding:"required"`
	CouponCode string `json:"coupon_code" binding:"required"`
}
