package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SMDV/cakravia-v0-sub001/circuitbreaker"
	"github.com/SMDV/cakravia-v0-sub001/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type bearerKey struct{}

// WithBearer stores the payer's bearer credential on the context. The auth
// middleware sets it once per request; every backend call forwards it.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

// BearerFromContext returns the credential stored by WithBearer, if any.
func BearerFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerKey{}).(string)
	return token
}

// Client talks to the authoritative commerce backend. Order and payment
// token records are owned by that backend; everything read through this
// client overrides local assumptions.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	breaker := circuitbreaker.NewCircuitBreaker(5, 30*time.Second)
	breaker.OnStateChange(func(s circuitbreaker.State) {
		logger.Warn("backend circuit state changed", zap.Int("state", int(s)))
	})
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: breaker,
		logger:  logger,
	}
}

type orderBody struct {
	ID         string             `json:"id"`
	ProductRef string             `json:"product_ref"`
	PayerRef   string             `json:"payer_ref"`
	Amount     int64              `json:"amount"`
	Status     models.OrderStatus `json:"status"`
	CouponCode string             `json:"coupon_code"`
	CreatedAt  time.Time          `json:"created_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		OrderID string `json:"order_id"`
	} `json:"error"`
}

// CreateOrder asks the backend to create an order for the authenticated
// payer. An ORDER_ALREADY_EXISTS conflict is decoded into models.ConflictError
// carrying the existing order id; callers recover from it, they do not fail.
func (c *Client) CreateOrder(ctx context.Context, productRef, couponCode string) (*models.Order, error) {
	ctx, span := otel.Tracer("payment-unlock-service").Start(ctx, "backend.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("product.ref", productRef))

	req := map[string]string{"product_ref": productRef}
	if couponCode != "" {
		req["coupon_code"] = couponCode
	}

	var body orderBody
	status, raw, err := c.do(ctx, http.MethodPost, "/v1/orders", req, &body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	switch status {
	case http.StatusCreated, http.StatusOK:
		order := body.toOrder()
		span.SetAttributes(attribute.String("order.id", order.ID))
		return order, nil
	default:
		return nil, decodeError(status, raw, "create order")
	}
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	ctx, span := otel.Tracer("payment-unlock-service").Start(ctx, "backend.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	var body orderBody
	status, raw, err := c.do(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(status, raw, "get order")
	}
	return body.toOrder(), nil
}

func (c *Client) GetPaymentToken(ctx context.Context, orderID string) (*models.PaymentToken, error) {
	ctx, span := otel.Tracer("payment-unlock-service").Start(ctx, "backend.GetPaymentToken")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	var body models.PaymentToken
	status, raw, err := c.do(ctx, http.MethodGet, "/v1/orders/"+orderID+"/payment-token", nil, &body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(status, raw, "get payment token")
	}
	body.OrderID = orderID
	return &body, nil
}

// GetOrderStatus is the authoritative status check, the sole source of truth
// for "paid". It runs behind the circuit breaker because the poll loop can
// call it for minutes against an unhealthy backend.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (models.OrderStatus, error) {
	ctx, span := otel.Tracer("payment-unlock-service").Start(ctx, "backend.GetOrderStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	var body struct {
		Status models.OrderStatus `json:"status"`
	}
	err := c.breaker.Execute(ctx, func() error {
		status, raw, err := c.do(ctx, http.MethodGet, "/v1/orders/"+orderID+"/status", nil, &body)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return decodeError(status, raw, "get order status")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return "", &models.TransientError{Op: "get order status", Err: err}
	}
	span.SetAttributes(attribute.String("order.status", string(body.Status)))
	return body.Status, nil
}

// ValidateCoupon checks a coupon code against a base amount. It never
// creates or mutates an order.
func (c *Client) ValidateCoupon(ctx context.Context, code string, amount int64) (*models.CouponValidation, error) {
	ctx, span := otel.Tracer("payment-unlock-service").Start(ctx, "backend.ValidateCoupon")
	defer span.End()
	span.SetAttributes(attribute.String("coupon.code", code))

	req := map[string]any{"code": code, "amount": amount}
	var body models.CouponValidation
	status, raw, err := c.do(ctx, http.MethodPost, "/v1/coupons/validate", req, &body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	// 422 carries the verdict in the same shape as 200.
	if status != http.StatusOK && status != http.StatusUnprocessableEntity {
		return nil, decodeError(status, raw, "validate coupon")
	}
	span.SetAttributes(attribute.Bool("coupon.valid", body.Valid))
	return &body, nil
}

// do performs one backend request, forwarding the caller's bearer credential
// and decoding a JSON body into out when one is present. Conflict responses
// are surfaced as models.ConflictError before out is touched.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, []byte, error) {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer := BearerFromContext(ctx); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		var eb errorBody
		if err := json.Unmarshal(data, &eb); err == nil && eb.Error.Code == "ORDER_ALREADY_EXISTS" {
			return resp.StatusCode, data, &models.ConflictError{OrderID: eb.Error.OrderID}
		}
		return resp.StatusCode, data, fmt.Errorf("backend conflict: %s", data)
	}

	if out != nil && len(data) > 0 && resp.StatusCode < http.StatusInternalServerError {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, data, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, data, nil
}

func decodeError(status int, body []byte, op string) error {
	var eb errorBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
			if status == http.StatusUnprocessableEntity {
				return &models.ValidationError{Message: eb.Error.Message}
			}
			return fmt.Errorf("%s: %s (status %d)", op, eb.Error.Message, status)
		}
	}
	return fmt.Errorf("%s: unexpected status %d", op, status)
}

func (b orderBody) toOrder() *models.Order {
	return &models.Order{
		ID:         b.ID,
		ProductRef: b.ProductRef,
		PayerRef:   b.PayerRef,
		Amount:     b.Amount,
		Status:     b.Status,
		CouponCode: b.CouponCode,
		CreatedAt:  b.CreatedAt,
		ExpiresAt:  b.ExpiresAt,
	}
}
