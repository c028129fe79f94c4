package screenrec

import (
	"fmt"
	"sync/atomic"
)

// SessionState is the lifecycle state of a Session.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateStarting
	StateRunning
	StateStopping
	StateFinalized
	StateErrored
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFinalized:
		return "finalized"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == StateFinalized || s == StateErrored
}

// legalTransitions lists the forward edges. Errored is reachable from every
// non-terminal state and is checked separately.
var legalTransitions = map[SessionState][]SessionState{
	StateIdle:     {StateStarting},
	StateStarting: {StateRunning, StateStopping},
	StateRunning:  {StateStopping},
	StateStopping: {StateFinalized},
}

func canTransition(from, to SessionState) bool {
	if from.Terminal() {
		return false
	}
	if to == StateErrored {
		return true
	}
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// stateMachine holds a SessionState and only moves along legal edges.
type stateMachine struct {
	v        atomic.Int32
	onChange func(from, to SessionState)
}

func (m *stateMachine) load() SessionState {
	return SessionState(m.v.Load())
}

// transition moves from -> to atomically. It fails with ErrInvalidState when
// the edge is illegal or the current state is not from.
func (m *stateMachine) transition(from, to SessionState) error {
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	if !m.v.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: %s -> %s (current %s)", ErrInvalidState, from, to, m.load())
	}
	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}

// fail moves any non-terminal state to Errored. Returns false if the state
// was already terminal.
func (m *stateMachine) fail() bool {
	for {
		cur := m.load()
		if cur.Terminal() {
			return false
		}
		if m.transition(cur, StateErrored) == nil {
			return true
		}
	}
}
