package lifecycle

import (
	"sync"

	"github.com/bft-labs/pushwire/pkg/log"
)

// ChangeFunc observes state changes. It is called outside the machine lock.
type ChangeFunc func(previous, current State, reason string)

// Machine guards lifecycle transitions.
type Machine struct {
	mu       sync.RWMutex
	state    State
	logger   log.Logger
	onChange ChangeFunc
	fields   []log.Field
}

// NewMachine creates a machine in StateStopped. Fields are attached to every
// transition log line.
func NewMachine(logger log.Logger, onChange ChangeFunc, fields ...log.Field) *Machine {
	return &Machine{
		state:    StateStopped,
		logger:   log.OrNoop(logger),
		onChange: onChange,
		fields:   fields,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CanStart reports whether the machine may move to StateStarting.
func (m *Machine) CanStart() bool {
	return CanTransition(m.State(), StateStarting)
}

// TransitionTo moves to next or returns ErrNotRunning / ErrAlreadyRunning.
func (m *Machine) TransitionTo(next State, reason string) error {
	m.mu.Lock()
	prev := m.state
	if !CanTransition(prev, next) {
		m.mu.Unlock()
		return transitionError(prev)
	}
	m.state = next
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(prev, next, reason)
	}

	fields := append([]log.Field{
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	}, m.fields...)
	m.logger.Debug("state transition", fields...)
	return nil
}
