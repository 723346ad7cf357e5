package events

import "github.com/specvital/pyadapter/pkg/domain"

// Kind tags a notification.
type Kind string

const (
	KindStarted  Kind = "started"
	KindFinished Kind = "finished"
	KindTest     Kind = "test"
)

// LoadEvent is published on the discovery stream.
// A finished event carries either Suite or ErrorMessage; both are empty
// when discovery found nothing.
type LoadEvent struct {
	Type         Kind         `json:"type"`
	Suite        *domain.Node `json:"suite,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
}

// RunEvent is published on the execution stream.
type RunEvent struct {
	Type  Kind     `json:"type"`
	RunID string   `json:"runId"`
	Tests []string `json:"tests,omitempty"`
	// State is set for KindTest events.
	State *domain.TestEvent `json:"state,omitempty"`
}

// LoadStarted opens a discovery.
func LoadStarted() LoadEvent {
	return LoadEvent{Type: KindStarted}
}

// LoadFinished closes a discovery. A non-nil err replaces the suite with
// its message.
func LoadFinished(suite *domain.Node, err error) LoadEvent {
	ev := LoadEvent{Type: KindFinished, Suite: suite}
	if err != nil {
		ev.Suite = nil
		ev.ErrorMessage = err.Error()
	}
	return ev
}

// RunStarted opens a run of the requested ids.
func RunStarted(runID string, tests []string) RunEvent {
	return RunEvent{Type: KindStarted, RunID: runID, Tests: tests}
}

// RunFinished closes a run.
func RunFinished(runID string) RunEvent {
	return RunEvent{Type: KindFinished, RunID: runID}
}

// TestState reports one test state within a run.
func TestState(runID string, state domain.TestEvent) RunEvent {
	return RunEvent{Type: KindTest, RunID: runID, State: &state}
}
