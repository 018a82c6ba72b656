package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/SMDV/cakravia-v0-sub001/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Quoter derives a price quote without touching order state.
type Quoter interface {
	Quote(ctx context.Context, baseAmount int64, couponCode string) (*models.PricingQuote, *models.Coupon, error)
}

type CouponHandler struct {
	negotiator Quoter
	catalog    map[string]models.Product
	logger     *zap.Logger
}

func NewCouponHandler(negotiator Quoter, catalog map[string]models.Product, logger *zap.Logger) *CouponHandler {
	return &CouponHandler{
		negotiator: negotiator,
		catalog:    catalog,
		logger:     logger,
	}
}

// ValidateCoupon quotes a coupon against a product's base price. Repeatable:
// trying codes here never creates or alters an order.
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	ctx, span := otel.Tracer("payment-unlock-service").Start(c.Request.Context(), "ValidateCoupon")
	defer span.End()

	var req models.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, ok := h.catalog[req.ProductRef]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown product"})
		return
	}

	span.SetAttributes(
		attribute.String("product.ref", product.Ref),
		attribute.String("coupon.code", req.CouponCode),
	)

	quote, coupon, err := h.negotiator.Quote(ctx, product.BasePrice, req.CouponCode)
	if err != nil {
		var validation *models.ValidationError
		if errors.As(err, &validation) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"valid": false,
				"error": validation.Message,
			})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to quote coupon", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Coupon validation unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"coupon":  coupon,
		"pricing": quote,
	})
}
