package pipeline

import "fmt"

// State is the position of one run in Pending → Recognized → Translated → Persisted.
type State int

const (
	Pending State = iota
	Recognized
	Translated
	Persisted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Recognized:
		return "recognized"
	case Translated:
		return "translated"
	case Persisted:
		return "persisted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Step names the transition that was being attempted when a run failed.
type Step string

const (
	StepAdmit     Step = "admit"
	StepLoad      Step = "load"
	StepRecognize Step = "recognize"
	StepTranslate Step = "translate"
	StepPersist   Step = "persist"
)

// RunError is the absorbing Failed state of a run. It records the last
// state reached and the step that failed, and unwraps to the cause.
type RunError struct {
	Image string
	State State
	Step  Step
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("label %s: %s failed after %s: %v", e.Image, e.Step, e.State, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// run carries the values produced by each transition
type run struct {
	image      string
	state      State
	raw        string
	translated string
	labelFile  string
}

func (r *run) fail(step Step, err error) *RunError {
	return &RunError{Image: r.image, State: r.state, Step: step, Err: err}
}
