package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SMDV/cakravia-v0-sub001/models"

	"go.uber.org/zap/zaptest"
)

func TestCreateOrder_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer jwt-1" {
			t.Errorf("Expected bearer forwarded, got %q", got)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["product_ref"] != "learning-assessment" {
			t.Errorf("Unexpected product_ref %q", req["product_ref"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "ord-1",
			"product_ref": "learning-assessment",
			"payer_ref":   "user-1",
			"amount":      30000,
			"status":      "pending",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zaptest.NewLogger(t))
	ctx := WithBearer(context.Background(), "jwt-1")

	order, err := c.CreateOrder(ctx, "learning-assessment", "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if order.ID != "ord-1" || order.Status != models.OrderStatusPending {
		t.Errorf("Unexpected order: %+v", order)
	}
}

func TestCreateOrder_ConflictDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"ORDER_ALREADY_EXISTS","message":"order exists","order_id":"ord-9"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zaptest.NewLogger(t))

	_, err := c.CreateOrder(context.Background(), "learning-assessment", "")
	var conflict *models.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError, got %v", err)
	}
	if conflict.OrderID != "ord-9" {
		t.Errorf("Expected existing order id ord-9, got %q", conflict.OrderID)
	}
}

func TestGetOrderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders/ord-1/status" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"paid"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zaptest.NewLogger(t))

	status, err := c.GetOrderStatus(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if status != models.OrderStatusPaid {
		t.Errorf("Expected paid, got %s", status)
	}
}

func TestGetOrderStatus_TransientFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zaptest.NewLogger(t))

	_, err := c.GetOrderStatus(context.Background(), "ord-1")
	var transient *models.TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("Expected TransientError, got %v", err)
	}
}

func TestValidateCoupon_RejectionCarriesVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/coupons/validate" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"valid":false,"message":"Coupon has expired"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zaptest.NewLogger(t))

	v, err := c.ValidateCoupon(context.Background(), "OLD", 30000)
	if err != nil {
		t.Fatalf("Expected verdict, got error: %v", err)
	}
	if v.Valid {
		t.Error("Expected invalid verdict")
	}
	if v.Message != "Coupon has expired" {
		t.Errorf("Expected backend message verbatim, got %q", v.Message)
	}
}

func TestGetPaymentToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders/ord-1/payment-token" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_token":"snap-1","gateway_payload":{"redirect_url":"https://pay.example.com/r/1"},"amount":30000,"status":"pending"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zaptest.NewLogger(t))

	token, err := c.GetPaymentToken(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if token.SessionToken != "snap-1" {
		t.Errorf("Unexpected token %q", token.SessionToken)
	}
	if token.GatewayPayload.RedirectURL == "" {
		t.Error("Expected redirect URL in gateway payload")
	}
	if token.OrderID != "ord-1" {
		t.Errorf("Expected token bound to ord-1, got %q", token.OrderID)
	}
}
