package campaign

import "fmt"

// State is the lifecycle position of one dispatch run.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StateResolving   State = "resolving"
	StateDispatching State = "dispatching"
	StateCompleted   State = "completed"
	StateAborted     State = "aborted"
)

var allowedTransitions = map[State][]State{
	StateIdle:        {StateValidating},
	StateValidating:  {StateResolving, StateAborted},
	StateResolving:   {StateDispatching, StateCompleted, StateAborted},
	StateDispatching: {StateCompleted, StateAborted},
}

// CanTransition reports whether a run may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the run has finished.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

type runState struct {
	id         string
	campaignID string
	state      State
}

func (r *runState) moveTo(next State) error {
	if !r.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, next)
	}
	r.state = next
	return nil
}
