package nef

import "time"

// Outcome statuses.
const (
	StatusSuccess       = "success"
	StatusError         = "error"
	StatusNotConfigured = "not_configured"
	StatusSkipped       = "skipped"
)

// Outcome is the explicit result of a best-effort side effect: a desktop
// forward, a backup copy, an attachment save or a cloud upload. Callers that
// do not wait for the effect still get its Outcome through an Observer.
type Outcome struct {
	Operation string
	Target    string
	Status    string
	Detail    string
	Err       error
	At        time.Time
}

// OK reports whether the effect succeeded.
func (o Outcome) OK() bool { return o.Status == StatusSuccess }

// ErrorMessage returns the error text, or "" when there is none.
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Observer receives the Outcome of every best-effort side effect.
// Implementations must be safe for concurrent use.
type Observer interface {
	Observe(o Outcome)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(o Outcome)

func (f ObserverFunc) Observe(o Outcome) { f(o) }

// NopObserver discards outcomes.
type NopObserver struct{}

func (NopObserver) Observe(Outcome) {}

// LogObserver writes outcomes to a Logger: failures at warn level,
// everything else at debug.
type LogObserver struct {
	Logger Logger
}

func (l LogObserver) Observe(o Outcome) {
	args := []any{"operation", o.Operation, "target", o.Target, "status", o.Status}
	if o.Detail != "" {
		args = append(args, "detail", o.Detail)
	}
	if o.Err != nil {
		args = append(args, "error", o.Err)
		l.Logger.Warn("side effect failed", args...)
		return
	}
	l.Logger.Debug("side effect done", args...)
}

// MultiObserver fans an outcome out to several observers.
type MultiObserver []Observer

func (m MultiObserver) Observe(o Outcome) {
	for _, obs := range m {
		if obs != nil {
			obs.Observe(o)
		}
	}
}
