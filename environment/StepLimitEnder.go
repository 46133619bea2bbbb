package environment

import ts "github.com/samuelfneumann/rlrunner/timestep"

// StepLimit implements the Ender interface, cutting episodes off after
// a fixed number of steps. Cut off episodes end with ts.Timeout.
type StepLimit struct {
	limit int
}

// NewStepLimit returns a new StepLimit of episodeSteps steps
func NewStepLimit(episodeSteps int) *StepLimit {
	if episodeSteps <= 0 {
		panic("newStepLimit: episode step limit must be positive")
	}
	return &StepLimit{limit: episodeSteps}
}

// End implements the Ender interface
func (s *StepLimit) End(t *ts.TimeStep) bool {
	if t.Number < s.limit {
		return false
	}
	t.StepType = ts.Last
	t.SetEnd(ts.Timeout)
	return true
}

// Limit returns the maximum number of steps in an episode
func (s *StepLimit) Limit() int {
	return s.limit
}
