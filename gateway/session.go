package gateway

import (
	"context"

	"github.com/SMDV/cakravia-v0-sub001/models"

	"go.uber.org/zap"
)

// Handlers are the four advisory callbacks a widget session can fire. Each
// fires at most once per Open, except OnClose which may follow any of the
// others. None of them are trusted as ground truth; they only feed the
// reconciler's authoritative checks.
type Handlers struct {
	OnSuccess func()
	OnPending func()
	OnError   func(err error)
	OnClose   func()
}

// Widget is the hosted payment widget contract, consumed as a black box.
type Widget interface {
	// Loaded reports whether the widget script is usable at all.
	Loaded() bool
	// Pay opens the widget for the session token and registers the
	// advisory callbacks.
	Pay(sessionToken string, h Handlers) error
}

// OpenResult tells the caller which path a session took. RedirectURL is set
// only on the fallback path; the caller sends the payer there in a new
// browsing context.
type OpenResult struct {
	UsedWidget  bool   `json:"used_widget"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Session launches the payment widget for a payment token, or falls back to
// the gateway's hosted redirect page when the widget is unavailable. On
// fallback there are no advisory callbacks at all, so control is handed to
// the reconciler's bounded poll via onFallback.
type Session struct {
	widget     Widget
	onFallback func(orderID string)
	logger     *zap.Logger
}

func NewSession(widget Widget, onFallback func(orderID string), logger *zap.Logger) *Session {
	return &Session{widget: widget, onFallback: onFallback, logger: logger}
}

func (s *Session) Open(ctx context.Context, token *models.PaymentToken, h Handlers) (*OpenResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.widget != nil && s.widget.Loaded() {
		if err := s.widget.Pay(token.SessionToken, h); err != nil {
			return nil, &models.FatalPaymentError{Reason: err.Error()}
		}
		return &OpenResult{UsedWidget: true}, nil
	}

	redirect := token.GatewayPayload.RedirectURL
	if redirect == "" {
		return nil, models.ErrGatewayUnavailable
	}

	s.logger.Warn("payment widget unavailable, using hosted redirect",
		zap.String("order_id", token.OrderID),
	)
	if s.onFallback != nil {
		s.onFallback(token.OrderID)
	}
	return &OpenResult{RedirectURL: redirect}, nil
}
