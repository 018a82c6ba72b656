package reconcile

import "time"

// Timer is a cancellable handle for a scheduled check or poll tick. Every
// live timer belongs to exactly one tracked order, so teardown and paid
// confirmation can cancel everything outstanding.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so tests can fast-forward virtual time instead of
// sleeping through multi-minute poll windows.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is the real wall clock.
func SystemClock() Clock {
	return systemClock{}
}
