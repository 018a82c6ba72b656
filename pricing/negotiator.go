package pricing

import (
	"context"
	"fmt"

	"github.com/SMDV/cakravia-v0-sub001/models"

	"go.uber.org/zap"
)

// CouponValidator is the slice of the backend the negotiator needs.
type CouponValidator interface {
	ValidateCoupon(ctx context.Context, code string, amount int64) (*models.CouponValidation, error)
}

// Negotiator derives a price quote from a base amount and an optional coupon
// code. It is side-effect free: it never creates or alters an order, so the
// user can try codes until one sticks.
type Negotiator struct {
	backend CouponValidator
	logger  *zap.Logger
}

func NewNegotiator(backend CouponValidator, logger *zap.Logger) *Negotiator {
	return &Negotiator{backend: backend, logger: logger}
}

// Quote validates couponCode against baseAmount. An empty code yields a
// no-op quote. A rejected code surfaces the backend's reason verbatim as a
// models.ValidationError.
func (n *Negotiator) Quote(ctx context.Context, baseAmount int64, couponCode string) (*models.PricingQuote, *models.Coupon, error) {
	if couponCode == "" {
		return &models.PricingQuote{
			OriginalAmount: baseAmount,
			DiscountAmount: 0,
			FinalAmount:    baseAmount,
		}, nil, nil
	}

	validation, err := n.backend.ValidateCoupon(ctx, couponCode, baseAmount)
	if err != nil {
		return nil, nil, fmt.Errorf("validate coupon: %w", err)
	}
	if !validation.Valid {
		return nil, nil, &models.ValidationError{Message: validation.Message}
	}
	if validation.Pricing == nil {
		return nil, nil, fmt.Errorf("validate coupon: backend accepted %q without pricing", couponCode)
	}

	quote := *validation.Pricing
	if want := clampFinal(quote.OriginalAmount, quote.DiscountAmount); quote.FinalAmount != want {
		n.logger.Warn("backend quote violates pricing law, clamping",
			zap.String("coupon", couponCode),
			zap.Int64("backend_final", quote.FinalAmount),
			zap.Int64("computed_final", want),
		)
		quote.FinalAmount = want
	}
	return &quote, validation.Coupon, nil
}

func clampFinal(original, discount int64) int64 {
	final := original - discount
	if final < 0 {
		return 0
	}
	return final
}
