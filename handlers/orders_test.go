package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SMDV/cakravia-v0-sub001/config"
	"github.com/SMDV/cakravia-v0-sub001/gateway"
	"github.com/SMDV/cakravia-v0-sub001/models"
	"github.com/SMDV/cakravia-v0-sub001/orders"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type stubCoordinator struct {
	result     orders.Result
	ensures    int
	refreshErr error
}

func (s *stubCoordinator) EnsureOrder(ctx context.Context, productRef, payerRef, couponCode string) orders.Result {
	s.ensures++
	return s.result
}

func (s *stubCoordinator) RefreshToken(ctx context.Context, orderID string) (*models.PaymentToken, error) {
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return &models.PaymentToken{OrderID: orderID, SessionToken: "tok-" + orderID}, nil
}

type stubReconciler struct {
	tracked  []models.Order
	signals  []models.Trigger
	polls    []string
	known    map[string]models.Order
	attempts []models.ConfirmationAttempt
}

func newStubReconciler() *stubReconciler {
	return &stubReconciler{known: make(map[string]models.Order)}
}

func (s *stubReconciler) Track(order models.Order) {
	s.tracked = append(s.tracked, order)
	s.known[order.ID] = order
}

func (s *stubReconciler) Signal(orderID string, trigger models.Trigger) {
	s.signals = append(s.signals, trigger)
}

func (s *stubReconciler) StartPolling(orderID string) {
	s.polls = append(s.polls, orderID)
}

func (s *stubReconciler) Order(orderID string) (models.Order, bool) {
	order, ok := s.known[orderID]
	return order, ok
}

func (s *stubReconciler) Attempts(orderID string) []models.ConfirmationAttempt {
	return s.attempts
}

type stubSession struct {
	result *gateway.OpenResult
	err    error
}

func (s *stubSession) Open(ctx context.Context, token *models.PaymentToken, h gateway.Handlers) (*gateway.OpenResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func pendingResult() orders.Result {
	return orders.Result{
		Order: &models.Order{
			ID:         "ord-1",
			ProductRef: "learning-assessment",
			PayerRef:   "user-1",
			Amount:     30000,
			Status:     models.OrderStatusPending,
		},
		Token: &models.PaymentToken{
			OrderID:      "ord-1",
			SessionToken: "snap-1",
			GatewayPayload: models.GatewaySessionPayload{
				RedirectURL: "https://pay.example.com/r/1",
			},
		},
	}
}

func setupOrderTest(t *testing.T, coordinator *stubCoordinator, reconciler *stubReconciler, session *stubSession) *gin.Engine {
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewOrderHandler(coordinator, reconciler, session, config.Products(), logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/orders", handler.CreateOrder)
	router.GET("/api/orders/:id", handler.GetOrder)
	router.POST("/api/orders/:id/notify", handler.Notify)
	router.POST("/api/orders/:id/poll", handler.StartPoll)
	router.POST("/api/orders/:id/payment-token", handler.RefreshToken)
	return router
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateOrder_FreshOrderIsCreated(t *testing.T) {
	coordinator := &stubCoordinator{result: pendingResult()}
	reconciler := newStubReconciler()
	session := &stubSession{result: &gateway.OpenResult{RedirectURL: "https://pay.example.com/r/1"}}
	router := setupOrderTest(t, coordinator, reconciler, session)

	w := postJSON(router, "/api/orders", models.CreateOrderRequest{ProductRef: "learning-assessment"})

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	if len(reconciler.tracked) != 1 {
		t.Errorf("Expected order tracked for reconciliation, got %d", len(reconciler.tracked))
	}
}

func TestCreateOrder_ReusedOrderReturns200(t *testing.T) {
	result := pendingResult()
	result.Reused = true
	coordinator := &stubCoordinator{result: result}
	reconciler := newStubReconciler()
	session := &stubSession{result: &gateway.OpenResult{RedirectURL: "https://pay.example.com/r/1"}}
	router := setupOrderTest(t, coordinator, reconciler, session)

	w := postJSON(router, "/api/orders", models.CreateOrderRequest{ProductRef: "learning-assessment"})

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d for converged order, got %d", http.StatusOK, w.Code)
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	router := setupOrderTest(t, &stubCoordinator{}, newStubReconciler(), &stubSession{})

	w := postJSON(router, "/api/orders", models.CreateOrderRequest{ProductRef: "no-such-product"})

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestCreateOrder_TokenFailureRetainsOrder(t *testing.T) {
	result := pendingResult()
	result.Token = nil
	result.Err = &models.TransientError{Op: "get payment token"}
	coordinator := &stubCoordinator{result: result}
	reconciler := newStubReconciler()
	router := setupOrderTest(t, coordinator, reconciler, &stubSession{})

	w := postJSON(router, "/api/orders", models.CreateOrderRequest{ProductRef: "learning-assessment"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["token_pending"] != true {
		t.Errorf("Expected token_pending flag, got %v", body)
	}
	if len(reconciler.tracked) != 1 {
		t.Error("Order must be tracked even without a token")
	}

	// The retained order's token can be retried without re-creating.
	w = postJSON(router, "/api/orders/ord-1/payment-token", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected token retry to succeed, got %d", w.Code)
	}
}

func TestCreateOrder_InvalidCouponIs422(t *testing.T) {
	coordinator := &stubCoordinator{result: orders.Result{Err: &models.ValidationError{Message: "Invalid coupon code"}}}
	router := setupOrderTest(t, coordinator, newStubReconciler(), &stubSession{})

	w := postJSON(router, "/api/orders", models.CreateOrderRequest{
		ProductRef: "learning-assessment",
		CouponCode: "NOPE",
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status %d, got %d", http.StatusUnprocessableEntity, w.Code)
	}
}

func TestNotify_AdvisorySignalSchedulesCheck(t *testing.T) {
	reconciler := newStubReconciler()
	reconciler.Track(models.Order{ID: "ord-1", Status: models.OrderStatusPending})
	router := setupOrderTest(t, &stubCoordinator{}, reconciler, &stubSession{})

	w := postJSON(router, "/api/orders/ord-1/notify", map[string]string{"trigger": "close"})

	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status %d, got %d", http.StatusAccepted, w.Code)
	}
	if len(reconciler.signals) != 1 || reconciler.signals[0] != models.TriggerClose {
		t.Errorf("Expected close signal funneled to reconciler, got %v", reconciler.signals)
	}
}

func TestNotify_ErrorSignalIsSurfacedNotRetried(t *testing.T) {
	reconciler := newStubReconciler()
	reconciler.Track(models.Order{ID: "ord-1", Status: models.OrderStatusPending})
	router := setupOrderTest(t, &stubCoordinator{}, reconciler, &stubSession{})

	w := postJSON(router, "/api/orders/ord-1/notify", map[string]string{
		"trigger": "error",
		"reason":  "card declined",
	})

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if len(reconciler.signals) != 0 {
		t.Error("A fatal payment error must not schedule a check")
	}
}

func TestNotify_UnknownOrder(t *testing.T) {
	router := setupOrderTest(t, &stubCoordinator{}, newStubReconciler(), &stubSession{})

	w := postJSON(router, "/api/orders/ord-404/notify", map[string]string{"trigger": "success"})

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestStartPoll_HandsControlToReconciler(t *testing.T) {
	reconciler := newStubReconciler()
	reconciler.Track(models.Order{ID: "ord-1", Status: models.OrderStatusPending})
	router := setupOrderTest(t, &stubCoordinator{}, reconciler, &stubSession{})

	w := postJSON(router, "/api/orders/ord-1/poll", nil)

	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status %d, got %d", http.StatusAccepted, w.Code)
	}
	if len(reconciler.polls) != 1 || reconciler.polls[0] != "ord-1" {
		t.Errorf("Expected poll started for ord-1, got %v", reconciler.polls)
	}
}

func TestGetOrder_ReturnsLocalView(t *testing.T) {
	reconciler := newStubReconciler()
	reconciler.Track(models.Order{ID: "ord-1", Status: models.OrderStatusPending})
	router := setupOrderTest(t, &stubCoordinator{}, reconciler, &stubSession{})

	req := httptest.NewRequest(http.MethodGet, "/api/orders/ord-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}
