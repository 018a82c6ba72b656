package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/SMDV/cakravia-v0-sub001/gateway"
	"github.com/SMDV/cakravia-v0-sub001/middleware"
	"github.com/SMDV/cakravia-v0-sub001/models"
	"github.com/SMDV/cakravia-v0-sub001/orders"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Coordinator converges purchase attempts onto a single backend order.
type Coordinator interface {
	EnsureOrder(ctx context.Context, productRef, payerRef, couponCode string) orders.Result
	RefreshToken(ctx context.Context, orderID string) (*models.PaymentToken, error)
}

// Reconciler is the slice of the confirmation reconciler the HTTP surface
// needs: track orders, funnel advisory signals, start fallback polling.
type Reconciler interface {
	Track(order models.Order)
	Signal(orderID string, trigger models.Trigger)
	StartPolling(orderID string)
	Order(orderID string) (models.Order, bool)
	Attempts(orderID string) []models.ConfirmationAttempt
}

// SessionOpener launches the payment widget or the hosted redirect fallback.
type SessionOpener interface {
	Open(ctx context.Context, token *models.PaymentToken, h gateway.Handlers) (*gateway.OpenResult, error)
}

type OrderHandler struct {
	coordinator Coordinator
	reconciler  Reconciler
	session     SessionOpener
	catalog     map[string]models.Product
	logger      *zap.Logger
}

func NewOrderHandler(
	coordinator Coordinator,
	reconciler Reconciler,
	session SessionOpener,
	catalog map[string]models.Product,
	logger *zap.Logger,
) *OrderHandler {
	return &OrderHandler{
		coordinator: coordinator,
		reconciler:  reconciler,
		session:     session,
		catalog:     catalog,
		logger:      logger,
	}
}

type notifyRequest struct {
	Trigger string `json:"trigger" binding:"required"`
	Reason  string `json:"reason"`
}

// CreateOrder establishes (or converges on) the purchase order for the
// authenticated payer and opens a payment session for it. Calling it twice
// for the same pending purchase resolves to the same order id.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx, span := otel.Tracer("payment-unlock-service").Start(c.Request.Context(), "CreateOrder")
	defer span.End()

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, ok := h.catalog[req.ProductRef]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown product"})
		return
	}

	payer := middleware.GetPayer(c)
	span.SetAttributes(
		attribute.String("product.ref", product.Ref),
		attribute.String("payer.ref", payer),
	)

	res := h.coordinator.EnsureOrder(ctx, product.Ref, payer, req.CouponCode)
	if res.Order == nil {
		var validation *models.ValidationError
		if errors.As(res.Err, &validation) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validation.Message})
			return
		}
		span.RecordError(res.Err)
		h.logger.Error("Failed to ensure order", zap.Error(res.Err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not establish order"})
		return
	}

	h.reconciler.Track(*res.Order)
	span.SetAttributes(attribute.String("order.id", res.Order.ID))

	if res.Token == nil {
		// Order retained; the client retries token retrieval, never order
		// creation.
		h.logger.Warn("order established without payment token",
			zap.String("order_id", res.Order.ID),
			zap.Error(res.Err),
		)
		c.JSON(http.StatusOK, gin.H{
			"order":         res.Order,
			"token_pending": true,
		})
		return
	}

	open, err := h.session.Open(ctx, res.Token, h.advisoryHandlers(res.Order.ID))
	if err != nil {
		if errors.Is(err, models.ErrGatewayUnavailable) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})
			return
		}
		var fatal *models.FatalPaymentError
		if errors.As(err, &fatal) {
			c.JSON(http.StatusBadGateway, gin.H{"error": fatal.Error()})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to open payment session", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not open payment session"})
		return
	}

	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"order":         res.Order,
		"payment_token": res.Token,
		"session":       open,
	})
}

// advisoryHandlers funnels every widget callback through the reconciler.
// No code path may trust a callback directly.
func (h *OrderHandler) advisoryHandlers(orderID string) gateway.Handlers {
	return gateway.Handlers{
		OnSuccess: func() { h.reconciler.Signal(orderID, models.TriggerSuccess) },
		OnPending: func() { h.reconciler.Signal(orderID, models.TriggerPending) },
		OnClose:   func() { h.reconciler.Signal(orderID, models.TriggerClose) },
		OnError: func(err error) {
			h.logger.Warn("widget reported payment error",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		},
	}
}

// Notify receives an advisory completion signal relayed from the widget.
// The signal itself is never trusted; it only schedules an authoritative
// check. An error signal is surfaced as an actionable failure instead.
func (h *OrderHandler) Notify(c *gin.Context) {
	_, span := otel.Tracer("payment-unlock-service").Start(c.Request.Context(), "NotifyOrder")
	defer span.End()

	orderID := c.Param("id")
	order, ok := h.orderForPayer(c, orderID)
	if !ok {
		return
	}

	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("signal", req.Trigger),
	)

	if req.Trigger == "error" {
		fatal := &models.FatalPaymentError{Reason: req.Reason}
		h.logger.Warn("fatal payment error reported",
			zap.String("order_id", orderID),
			zap.String("reason", req.Reason),
		)
		c.JSON(http.StatusOK, gin.H{
			"status": models.OrderStatusFailed,
			"error":  fatal.Error() + "; please re-initiate the payment",
		})
		return
	}

	trigger, ok := models.ParseTrigger(req.Trigger)
	if !ok || trigger == models.TriggerManualPoll {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown trigger"})
		return
	}

	h.reconciler.Signal(orderID, trigger)
	c.JSON(http.StatusAccepted, gin.H{
		"status": order.Status,
		"check":  "scheduled",
	})
}

// StartPoll begins the bounded fallback poll for an order whose widget
// failed to load in the payer's browser.
func (h *OrderHandler) StartPoll(c *gin.Context) {
	orderID := c.Param("id")
	if _, ok := h.orderForPayer(c, orderID); !ok {
		return
	}

	h.reconciler.StartPolling(orderID)
	c.JSON(http.StatusAccepted, gin.H{"poll": "started"})
}

// GetOrder returns the local view of an order: cached status plus the audit
// trail of authoritative checks.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID := c.Param("id")
	order, ok := h.orderForPayer(c, orderID)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":    order,
		"unlocked": order.Status == models.OrderStatusPaid,
		"attempts": h.reconciler.Attempts(orderID),
	})
}

// RefreshToken re-issues the payment token after a partial failure or a
// coupon change on the pending order.
func (h *OrderHandler) RefreshToken(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := c.Param("id")
	if _, ok := h.orderForPayer(c, orderID); !ok {
		return
	}

	token, err := h.coordinator.RefreshToken(ctx, orderID)
	if err != nil {
		h.logger.Error("Failed to refresh payment token",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not retrieve payment token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment_token": token})
}

func (h *OrderHandler) orderForPayer(c *gin.Context, orderID string) (models.Order, bool) {
	order, ok := h.reconciler.Order(orderID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return models.Order{}, false
	}
	if payer := middleware.GetPayer(c); payer != "" && order.PayerRef != "" && order.PayerRef != payer {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your order"})
		return models.Order{}, false
	}
	return order, true
}
