package optimizer

import (
	"fmt"
	"sync"
)

// State is a phase of an optimization run.
type State string

const (
	StateIdle              State = "idle"
	StateResolving         State = "resolving"
	StateOrdering          State = "ordering"
	StateTrafficRefinement State = "traffic_refinement"
	StateAggregating       State = "aggregating"
	StateReady             State = "ready"
	StateFailed            State = "failed"
)

var transitions = map[State][]State{
	StateIdle:              {StateResolving},
	StateResolving:         {StateOrdering, StateFailed},
	StateOrdering:          {StateTrafficRefinement, StateAggregating, StateFailed},
	StateTrafficRefinement: {StateAggregating, StateFailed},
	StateAggregating:       {StateReady},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionObserver is notified after every state change of a run.
type TransitionObserver func(runID string, from, to State)

// Run tracks the state of one optimization. Every call to Service.Optimize
// uses a fresh Run.
type Run struct {
	id       string
	observer TransitionObserver

	mu    sync.Mutex
	state State
}

// NewRun creates a run in StateIdle.
func NewRun(id string, observer TransitionObserver) *Run {
	return &Run{id: id, observer: observer, state: StateIdle}
}

// ID returns the run id.
func (r *Run) ID() string {
	return r.id
}

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Transition moves the run to the given state.
func (r *Run) Transition(to State) error {
	r.mu.Lock()
	from := r.state
	if !CanTransition(from, to) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	r.state = to
	r.mu.Unlock()

	if r.observer != nil {
		r.observer(r.id, from, to)
	}
	return nil
}
