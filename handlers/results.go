package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/SMDV/cakravia-v0-sub001/cache"
	"github.com/SMDV/cakravia-v0-sub001/middleware"
	"github.com/SMDV/cakravia-v0-sub001/models"
	"github.com/SMDV/cakravia-v0-sub001/unlock"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const unlockCacheTTL = time.Hour

// UnlockStore is the durable side of unlock state, consulted when the
// in-memory view has not seen the unlock (e.g. after a restart).
type UnlockStore interface {
	IsUnlocked(ctx context.Context, productRef, payerRef string) (bool, error)
}

// ResultsHandler gates premium result content on unlock state. The unlock
// boolean is derived only from the reconciler's authoritative observations;
// this handler merely reads it.
type ResultsHandler struct {
	unlocks *unlock.State
	store   UnlockStore
	rdb     *redis.Client
	catalog map[string]models.Product
	logger  *zap.Logger
}

func NewResultsHandler(
	unlocks *unlock.State,
	store UnlockStore,
	rdb *redis.Client,
	catalog map[string]models.Product,
	logger *zap.Logger,
) *ResultsHandler {
	return &ResultsHandler{
		unlocks: unlocks,
		store:   store,
		rdb:     rdb,
		catalog: catalog,
		logger:  logger,
	}
}

// GetResult serves the premium result descriptor, or 402 while the purchase
// is unresolved or absent.
func (h *ResultsHandler) GetResult(c *gin.Context) {
	ctx, span := otel.Tracer("payment-unlock-service").Start(c.Request.Context(), "GetResult")
	defer span.End()

	productRef := c.Param("product_ref")
	product, ok := h.catalog[productRef]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown product"})
		return
	}

	payer := middleware.GetPayer(c)
	span.SetAttributes(
		attribute.String("product.ref", productRef),
		attribute.String("payer.ref", payer),
	)

	unlocked := h.isUnlocked(ctx, productRef, payer)
	span.SetAttributes(attribute.Bool("result.unlocked", unlocked))

	if !unlocked {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":    "Result is locked until payment is confirmed",
			"unlocked": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"unlocked":        true,
		"product":         product,
		"certificate_url": "/certificates/" + payer + "/" + productRef,
	})
}

func (h *ResultsHandler) isUnlocked(ctx context.Context, productRef, payer string) bool {
	if h.rdb != nil {
		unlocked, err := cache.GetUnlocked(ctx, h.rdb, productRef, payer)
		if err == nil {
			return unlocked
		}
		if err != redis.Nil {
			h.logger.Warn("unlock cache read failed", zap.Error(err))
		}
	}

	if h.unlocks.Unlocked(productRef, payer) {
		h.cacheUnlock(ctx, productRef, payer)
		return true
	}

	if h.store != nil {
		unlocked, err := h.store.IsUnlocked(ctx, productRef, payer)
		if err != nil {
			h.logger.Warn("unlock store read failed", zap.Error(err))
			return false
		}
		if unlocked {
			h.cacheUnlock(ctx, productRef, payer)
		}
		return unlocked
	}
	return false
}

func (h *ResultsHandler) cacheUnlock(ctx context.Context, productRef, payer string) {
	if h.rdb == nil {
		return
	}
	if err := cache.SetUnlocked(ctx, h.rdb, productRef, payer, unlockCacheTTL); err != nil {
		h.logger.Warn("unlock cache write failed", zap.Error(err))
	}
}
