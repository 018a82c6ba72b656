package unlock

import (
	"sync"

	"github.com/SMDV/cakravia-v0-sub001/models"
)

// Listener is notified exactly once when a (product, payer) pair unlocks.
type Listener func(order models.Order)

// State is the single source the UI may gate premium content on. It is a
// monotonic boolean per (product, payer): only the reconciler sets it, only
// upon an authoritative paid observation, and it never flips back to false.
type State struct {
	mu        sync.RWMutex
	unlocked  map[string]bool
	listeners []Listener
}

func NewState() *State {
	return &State{unlocked: make(map[string]bool)}
}

// OnUnlock registers a listener. Registration is expected at wiring time,
// before any MarkPaid can fire.
func (s *State) OnUnlock(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// MarkPaid records an authoritative paid observation for the order's
// (product, payer) pair. Repeated calls are no-ops; listeners fire once.
func (s *State) MarkPaid(order models.Order) {
	key := pairKey(order.ProductRef, order.PayerRef)

	s.mu.Lock()
	if s.unlocked[key] {
		s.mu.Unlock()
		return
	}
	s.unlocked[key] = true
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(order)
	}
}

func (s *State) Unlocked(productRef, payerRef string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlocked[pairKey(productRef, payerRef)]
}

func pairKey(productRef, payerRef string) string {
	return payerRef + "|" + productRef
}
