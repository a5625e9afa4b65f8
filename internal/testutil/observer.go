package testutil

import (
	"sync"

	"extranef/internal/nef"
)

// RecordingObserver keeps every Outcome it receives. Safe for concurrent use.
type RecordingObserver struct {
	mu       sync.Mutex
	outcomes []nef.Outcome
}

func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

func (r *RecordingObserver) Observe(o nef.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

// Outcomes returns a copy of the recorded outcomes.
func (r *RecordingObserver) Outcomes() []nef.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]nef.Outcome(nil), r.outcomes...)
}

// Find returns the recorded outcomes for an operation and target. An empty
// target matches any target.
func (r *RecordingObserver) Find(operation, target string) []nef.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []nef.Outcome
	for _, o := range r.outcomes {
		if o.Operation == operation && (target == "" || o.Target == target) {
			out = append(out, o)
		}
	}
	return out
}
