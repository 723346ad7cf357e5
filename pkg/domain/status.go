package domain

import "fmt"

// State is the execution state reported for a single test leaf.
type State string

// Test states understood by the host.
const (
	// StateRunning marks a test whose process has been started.
	StateRunning State = "running"
	// StatePassed covers plain successes and expected failures.
	StatePassed State = "passed"
	// StateFailed covers failures, errors and unexpected successes.
	StateFailed State = "failed"
	// StateSkipped marks a test excluded at runtime.
	StateSkipped State = "skipped"
)

// ParseState converts a result keyword into a State.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateRunning, StatePassed, StateFailed, StateSkipped:
		return State(s), nil
	default:
		return "", fmt.Errorf("unknown test state %q", s)
	}
}

// TestEvent is a state change of one test leaf.
type TestEvent struct {
	Type    string `json:"type"`
	Test    string `json:"test"`
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

// NewTestEvent returns a TestEvent for the given test id.
func NewTestEvent(id string, state State, message string) TestEvent {
	return TestEvent{
		Type:    "test",
		Test:    id,
		State:   state,
		Message: message,
	}
}
