package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SMDV/cakravia-v0-sub001/middleware"
	"github.com/SMDV/cakravia-v0-sub001/models"

	"go.uber.org/zap"
)

// Backend is the slice of the commerce backend the coordinator needs.
type Backend interface {
	CreateOrder(ctx context.Context, productRef, couponCode string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	GetPaymentToken(ctx context.Context, orderID string) (*models.PaymentToken, error)
}

// Result is what one create-or-fetch attempt converged to. Token may be nil
// when the order was established but token retrieval failed; the order is
// retained and the caller retries token retrieval, never order creation.
type Result struct {
	Order *models.Order
	Token *models.PaymentToken
	// Reused is true when the backend reported the order already existed
	// and the coordinator converged on it instead of creating one.
	Reused bool
	Err    error
}

type call struct {
	done chan struct{}
	res  Result
}

// Coordinator idempotently creates-or-fetches the purchase order for a
// (product, payer) pair. Two near-simultaneous purchase clicks must not both
// race the backend's idempotency check, so calls for the same pair are
// serialized through an in-flight guard: the second caller waits for and
// shares the first call's result.
type Coordinator struct {
	backend Backend
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[string]*call
}

func NewCoordinator(backend Backend, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		backend:  backend,
		logger:   logger,
		inflight: make(map[string]*call),
	}
}

// EnsureOrder converges to the single non-expired order for the pair. Safe
// to call arbitrarily many times; while the order is pending this re-syncs
// local state with the backend, it never creates a duplicate.
func (c *Coordinator) EnsureOrder(ctx context.Context, productRef, payerRef, couponCode string) Result {
	key := payerRef + "|" + productRef

	c.mu.Lock()
	if existing, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-existing.done:
			return existing.res
		case <-ctx.Done():
			return Result{Err: ctx.Err()}
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	cl.res = c.ensure(ctx, productRef, payerRef, couponCode)
	close(cl.done)

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()

	return cl.res
}

func (c *Coordinator) ensure(ctx context.Context, productRef, payerRef, couponCode string) Result {
	order, err := c.backend.CreateOrder(ctx, productRef, couponCode)

	reused := false
	var conflict *models.ConflictError
	switch {
	case err == nil:
		middleware.RecordOrderCreated(productRef)
		c.logger.Info("order created",
			zap.String("order_id", order.ID),
			zap.String("product_ref", productRef),
			zap.String("payer_ref", payerRef),
		)
	case errors.As(err, &conflict):
		// Not an error condition: the backend already holds the order for
		// this pair. Recover by fetching it instead of surfacing failure.
		middleware.RecordConflictRecovered(productRef)
		c.logger.Info("order already exists, reusing",
			zap.String("order_id", conflict.OrderID),
			zap.String("product_ref", productRef),
			zap.String("payer_ref", payerRef),
		)
		order, err = c.backend.GetOrder(ctx, conflict.OrderID)
		if err != nil {
			return Result{Err: fmt.Errorf("fetch existing order: %w", err)}
		}
		reused = true
	default:
		return Result{Err: fmt.Errorf("create order: %w", err)}
	}

	token, err := c.backend.GetPaymentToken(ctx, order.ID)
	if err != nil {
		// Partial failure: keep the order, let the caller retry the token.
		c.logger.Warn("payment token retrieval failed, order retained",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return Result{Order: order, Reused: reused, Err: fmt.Errorf("get payment token: %w", err)}
	}

	return Result{Order: order, Token: token, Reused: reused}
}

// RefreshToken re-issues the payment token for an established order, used
// after a partial failure or when the order's coupon changed.
func (c *Coordinator) RefreshToken(ctx context.Context, orderID string) (*models.PaymentToken, error) {
	token, err := c.backend.GetPaymentToken(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get payment token: %w", err)
	}
	return token, nil
}
