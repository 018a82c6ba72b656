package models

import "time"

// Trigger identifies which advisory signal caused an authoritative status
// check. None of the widget callbacks are trusted as ground truth; they only
// decide when the backend is asked.
type Trigger string

const (
	TriggerSuccess    Trigger = "success"
	TriggerPending    Trigger = "pending"
	TriggerClose      Trigger = "close"
	TriggerManualPoll Trigger = "manual_poll"
)

func ParseTrigger(s string) (Trigger, bool) {
	switch Trigger(s) {
	case TriggerSuccess, TriggerPending, TriggerClose, TriggerManualPoll:
		return Trigger(s), true
	}
	return "", false
}

// ConfirmationAttempt is an audit record of one authoritative status check.
// ObservedStatus is empty when the check itself failed.
type ConfirmationAttempt struct {
	OrderID        string      `json:"order_id"`
	Trigger        Trigger     `json:"trigger"`
	ObservedStatus OrderStatus `json:"observed_status"`
	CheckedAt      time.Time   `json:"checked_at"`
}
