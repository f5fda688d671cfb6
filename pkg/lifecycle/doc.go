// Package lifecycle provides the state machine, backoff and completion
// tracking shared by workers and pools.
//
// # Usage
//
//	m := lifecycle.NewMachine(logger, nil)
//	if err := m.TransitionTo(lifecycle.StateStarting, "start called"); err != nil {
//	    return err
//	}
//
// # State Machine
//
// Valid state transitions:
//   - Stopped -> Starting
//   - Starting -> Running, Crashed
//   - Running -> Stopping, Crashed
//   - Stopping -> Stopped, Crashed
//   - Crashed -> Starting, Stopped
package lifecycle
