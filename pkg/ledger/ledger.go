// Package ledger holds delivery outcomes.
//
// A Ledger is a capacity-bounded list: once full, every insertion evicts the
// oldest outcome so that the newest Capacity entries remain in insertion
// order. Eviction never looks at success or failure.
package ledger

import "sync"

// DefaultCapacity is used when a ledger is created with a non-positive capacity.
const DefaultCapacity = 1000

// Ledger is a concurrency-safe FIFO-evicting list of outcomes.
type Ledger struct {
	mu       sync.RWMutex
	items    []*Outcome
	capacity int
}

// New creates an empty ledger retaining at most capacity outcomes.
func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{capacity: capacity}
}

// Add appends outcomes, evicting the oldest entries beyond capacity.
func (l *Ledger) Add(outcomes ...*Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, outcomes...)
	l.trim()
}

func (l *Ledger) trim() {
	if over := len(l.items) - l.capacity; over > 0 {
		kept := make([]*Outcome, l.capacity)
		copy(kept, l.items[over:])
		l.items = kept
	}
}

// Len returns the number of retained outcomes.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Capacity returns the maximum number of retained outcomes.
func (l *Ledger) Capacity() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.capacity
}

// SetCapacity changes the capacity, evicting the oldest entries if needed.
func (l *Ledger) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.capacity = capacity
	l.trim()
}

// All returns a snapshot of every retained outcome in insertion order.
func (l *Ledger) All() []*Outcome {
	return l.filter(nil)
}

// Successful returns a snapshot of the outcomes that succeeded.
func (l *Ledger) Successful() []*Outcome {
	return l.filter((*Outcome).Successful)
}

// Failed returns a snapshot of the outcomes that did not succeed.
func (l *Ledger) Failed() []*Outcome {
	return l.filter((*Outcome).Failed)
}

func (l *Ledger) filter(keep func(*Outcome) bool) []*Outcome {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Outcome, 0, len(l.items))
	for _, o := range l.items {
		if keep == nil || keep(o) {
			out = append(out, o)
		}
	}
	return out
}

// Clear removes every outcome.
func (l *Ledger) Clear() {
	l.mu.Lock()
	l.items = nil
	l.mu.Unlock()
}

// Concat snapshots several ledgers into one slice, in argument order.
func Concat(ledgers ...*Ledger) []*Outcome {
	var out []*Outcome
	for _, l := range ledgers {
		if l != nil {
			out = append(out, l.All()...)
		}
	}
	return out
}

// Successful filters outcomes down to the successful ones.
func Successful(outcomes []*Outcome) []*Outcome {
	var out []*Outcome
	for _, o := range outcomes {
		if o.Successful() {
			out = append(out, o)
		}
	}
	return out
}

// Failed filters outcomes down to the failed ones.
func Failed(outcomes []*Outcome) []*Outcome {
	var out []*Outcome
	for _, o := range outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}
