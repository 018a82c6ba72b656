package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/SMDV/cakravia-v0-sub001/middleware"
	"github.com/SMDV/cakravia-v0-sub001/models"
	"github.com/SMDV/cakravia-v0-sub001/unlock"

	"go.uber.org/zap"
)

// StatusChecker is the authoritative side of the backend: the sole source of
// truth for "paid".
type StatusChecker interface {
	GetOrderStatus(ctx context.Context, orderID string) (models.OrderStatus, error)
}

// Config holds the reconciliation tunables. Per-trigger delays are tuned to
// expected gateway settlement latency: success settles fast, pending can be
// a slow payment method, close may mean the payer finished right before
// closing the widget.
type Config struct {
	SuccessDelay  time.Duration
	PendingDelay  time.Duration
	CloseDelay    time.Duration
	PollInterval  time.Duration
	MaxPollWindow time.Duration
	CheckTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		SuccessDelay:  2 * time.Second,
		PendingDelay:  5 * time.Second,
		CloseDelay:    1 * time.Second,
		PollInterval:  10 * time.Second,
		MaxPollWindow: 600 * time.Second,
		CheckTimeout:  8 * time.Second,
	}
}

func (c Config) delayFor(trigger models.Trigger) time.Duration {
	switch trigger {
	case models.TriggerSuccess:
		return c.SuccessDelay
	case models.TriggerPending:
		return c.PendingDelay
	case models.TriggerClose:
		return c.CloseDelay
	default:
		return 0
	}
}

type orderTask struct {
	order        models.Order
	checkTimer   Timer
	pollTimer    Timer
	pollDeadline time.Time
	polling      bool
	inflight     bool
	paid         bool
	attempts     []models.ConfirmationAttempt
}

// Reconciler aligns advisory widget signals with backend-confirmed state.
// Each advisory signal schedules exactly one authoritative status check after
// a trigger-specific delay; when the widget is unavailable a bounded poll
// runs instead. Unlock state is mutated here and nowhere else.
//
// Invariants:
//   - unlock never flips true back to false, whatever a later check returns
//   - all outstanding timers are cancelled the instant paid is observed
//   - at most one in-flight authoritative check per order
type Reconciler struct {
	backend StatusChecker
	unlocks *unlock.State
	clock   Clock
	cfg     Config
	logger  *zap.Logger

	onAttempt func(models.ConfirmationAttempt)

	mu     sync.Mutex
	tasks  map[string]*orderTask
	closed bool
}

func NewReconciler(backend StatusChecker, unlocks *unlock.State, clock Clock, cfg Config, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		backend: backend,
		unlocks: unlocks,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
		tasks:   make(map[string]*orderTask),
	}
}

// OnAttempt registers an audit hook invoked after every authoritative check,
// successful or not. Set at wiring time.
func (r *Reconciler) OnAttempt(fn func(models.ConfirmationAttempt)) {
	r.onAttempt = fn
}

// Track registers an order for reconciliation, refreshing the cached copy on
// repeated calls. An already-paid order is unlocked immediately.
func (r *Reconciler) Track(order models.Order) {
	r.mu.Lock()
	t := r.tasks[order.ID]
	if t == nil {
		t = &orderTask{}
		r.tasks[order.ID] = t
	}
	alreadyPaid := t.paid
	t.order = order
	if order.Status == models.OrderStatusPaid {
		t.paid = true
	}
	paidNow := t.paid && !alreadyPaid
	r.mu.Unlock()

	if paidNow {
		r.unlocks.MarkPaid(order)
	}
}

// Signal reacts to one advisory widget callback by scheduling a single
// authoritative check. Overlapping signals for the same order collapse into
// the already-scheduled check; signals for a paid order do nothing at all.
func (r *Reconciler) Signal(orderID string, trigger models.Trigger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.tasks[orderID]
	if t == nil {
		r.logger.Warn("signal for untracked order", zap.String("order_id", orderID))
		return
	}
	if t.paid || r.closed {
		return
	}
	if t.checkTimer != nil || t.inflight {
		// First scheduled check wins.
		return
	}

	delay := r.cfg.delayFor(trigger)
	t.checkTimer = r.clock.AfterFunc(delay, func() {
		r.runCheck(orderID, trigger)
	})
	r.logger.Info("authoritative check scheduled",
		zap.String("order_id", orderID),
		zap.String("trigger", string(trigger)),
		zap.Duration("delay", delay),
	)
}

// StartPolling begins the widget-unavailable fallback: a fixed-interval poll
// bounded by MaxPollWindow. If the window elapses without paid the unlock
// decision stays unresolved; it is never forced to a terminal state.
func (r *Reconciler) StartPolling(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.tasks[orderID]
	if t == nil {
		r.logger.Warn("poll requested for untracked order", zap.String("order_id", orderID))
		return
	}
	if t.paid || t.polling || r.closed {
		return
	}

	t.polling = true
	t.pollDeadline = r.clock.Now().Add(r.cfg.MaxPollWindow)
	t.pollTimer = r.clock.AfterFunc(r.cfg.PollInterval, func() {
		r.pollTick(orderID)
	})
	r.logger.Info("fallback polling started",
		zap.String("order_id", orderID),
		zap.Duration("interval", r.cfg.PollInterval),
		zap.Duration("max_window", r.cfg.MaxPollWindow),
	)
}

func (r *Reconciler) pollTick(orderID string) {
	r.mu.Lock()
	t := r.tasks[orderID]
	if t == nil || t.paid || !t.polling || r.closed {
		if t != nil {
			t.pollTimer = nil
		}
		r.mu.Unlock()
		return
	}
	if r.clock.Now().After(t.pollDeadline) {
		t.polling = false
		t.pollTimer = nil
		r.mu.Unlock()
		middleware.RecordPollExpired()
		r.logger.Warn("poll window elapsed without paid, unlock unresolved",
			zap.String("order_id", orderID),
		)
		return
	}
	r.mu.Unlock()

	r.runCheck(orderID, models.TriggerManualPoll)

	r.mu.Lock()
	t = r.tasks[orderID]
	if t != nil && t.polling && !t.paid && !r.closed {
		t.pollTimer = r.clock.AfterFunc(r.cfg.PollInterval, func() {
			r.pollTick(orderID)
		})
	}
	r.mu.Unlock()
}

// runCheck performs one authoritative status check. Checks are deduplicated:
// if one is already in flight for this order the trigger is dropped.
func (r *Reconciler) runCheck(orderID string, trigger models.Trigger) {
	r.mu.Lock()
	t := r.tasks[orderID]
	if t == nil || t.paid {
		r.mu.Unlock()
		return
	}
	t.checkTimer = nil
	if t.inflight {
		r.mu.Unlock()
		return
	}
	t.inflight = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.CheckTimeout)
	status, err := r.backend.GetOrderStatus(ctx, orderID)
	cancel()

	attempt := models.ConfirmationAttempt{
		OrderID:        orderID,
		Trigger:        trigger,
		ObservedStatus: status,
		CheckedAt:      r.clock.Now(),
	}

	r.mu.Lock()
	t.inflight = false
	t.attempts = append(t.attempts, attempt)

	if err != nil {
		r.mu.Unlock()
		middleware.RecordStatusCheck(string(trigger), "error")
		r.logger.Warn("authoritative check failed, will retry via poll or next signal",
			zap.String("order_id", orderID),
			zap.String("trigger", string(trigger)),
			zap.Error(err),
		)
		r.notifyAttempt(attempt)
		return
	}

	t.order.Status = status
	var paidOrder models.Order
	paidNow := false
	if status == models.OrderStatusPaid {
		t.paid = true
		paidNow = true
		paidOrder = t.order
		r.cancelTimersLocked(t)
	} else if status.Terminal() {
		// Expired or failed: nothing left to confirm, stop polling but do
		// not touch unlock state.
		r.cancelTimersLocked(t)
	}
	r.mu.Unlock()

	middleware.RecordStatusCheck(string(trigger), string(status))
	r.notifyAttempt(attempt)

	if paidNow {
		middleware.RecordResultUnlocked(paidOrder.ProductRef)
		r.logger.Info("payment confirmed, unlocking result",
			zap.String("order_id", orderID),
			zap.String("product_ref", paidOrder.ProductRef),
			zap.String("trigger", string(trigger)),
		)
		r.unlocks.MarkPaid(paidOrder)
	}
}

func (r *Reconciler) cancelTimersLocked(t *orderTask) {
	if t.checkTimer != nil {
		t.checkTimer.Stop()
		t.checkTimer = nil
	}
	if t.pollTimer != nil {
		t.pollTimer.Stop()
		t.pollTimer = nil
	}
	t.polling = false
}

func (r *Reconciler) notifyAttempt(attempt models.ConfirmationAttempt) {
	if r.onAttempt != nil {
		r.onAttempt(attempt)
	}
}

// Order returns the local cached view of a tracked order.
func (r *Reconciler) Order(orderID string) (models.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tasks[orderID]
	if t == nil {
		return models.Order{}, false
	}
	return t.order, true
}

// Attempts returns a copy of the audit trail for an order.
func (r *Reconciler) Attempts(orderID string) []models.ConfirmationAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tasks[orderID]
	if t == nil {
		return nil
	}
	out := make([]models.ConfirmationAttempt, len(t.attempts))
	copy(out, t.attempts)
	return out
}

// Polling reports whether the fallback poll loop is live for an order.
func (r *Reconciler) Polling(orderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tasks[orderID]
	return t != nil && t.polling
}

// Release cancels everything outstanding for one order, as when the page
// that initiated the purchase is torn down.
func (r *Reconciler) Release(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tasks[orderID]
	if t == nil {
		return
	}
	r.cancelTimersLocked(t)
	delete(r.tasks, orderID)
}

// Shutdown cancels all scheduled checks and poll timers across orders.
func (r *Reconciler) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, t := range r.tasks {
		r.cancelTimersLocked(t)
	}
}
