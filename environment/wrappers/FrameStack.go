package wrappers

import (
	"fmt"

	env "github.com/samuelfneumann/rlrunner/environment"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
)

// FrameStack wraps an environment so that observations are the
// concatenation of the last n observations of the wrapped environment,
// oldest first. On Reset, the stack is filled with n copies of the
// starting observation.
type FrameStack struct {
	env.Environment
	n        int
	obsLen   int
	frames   []float64
	lastStep ts.TimeStep
}

// NewFrameStack returns a new FrameStack environment stacking the last
// n observations
func NewFrameStack(e env.Environment, n int) (*FrameStack, error) {
	if n < 1 {
		return nil, fmt.Errorf("newFrameStack: number of frames must be "+
			"positive, got %v", n)
	}

	obsLen := e.ObservationSpec().Len()
	f := &FrameStack{
		Environment: e,
		n:           n,
		obsLen:      obsLen,
		frames:      make([]float64, n*obsLen),
	}
	f.lastStep = f.fill(e.CurrentTimeStep())
	return f, nil
}

// Reset resets the environment and returns the starting TimeStep
func (f *FrameStack) Reset() (ts.TimeStep, error) {
	step, err := f.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %w", err)
	}
	f.lastStep = f.fill(step)
	return f.lastStep, nil
}

// Step takes one environmental step
func (f *FrameStack) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	step, _, err := f.Environment.Step(a)
	if err != nil {
		return ts.TimeStep{}, false, fmt.Errorf("step: %w", err)
	}

	// Shift out the oldest observation
	copy(f.frames, f.frames[f.obsLen:])
	tail := f.frames[(f.n-1)*f.obsLen:]
	for i := range tail {
		tail[i] = step.Observation.AtVec(i)
	}

	f.lastStep = f.stacked(step)
	return f.lastStep, f.lastStep.Last(), nil
}

// fill fills every slot of the stack with the observation of t
func (f *FrameStack) fill(t ts.TimeStep) ts.TimeStep {
	for k := 0; k < f.n; k++ {
		for i := 0; i < f.obsLen; i++ {
			f.frames[k*f.obsLen+i] = t.Observation.AtVec(i)
		}
	}
	return f.stacked(t)
}

// stacked returns t with the current stack as its observation
func (f *FrameStack) stacked(t ts.TimeStep) ts.TimeStep {
	obs := make([]float64, len(f.frames))
	copy(obs, f.frames)

	out := ts.New(t.StepType, t.Reward, t.Discount,
		mat.NewVecDense(len(obs), obs), t.Number)
	if t.Last() {
		out.SetEnd(t.EndType())
	}
	return out
}

// CurrentTimeStep returns the last TimeStep returned by the wrapper
func (f *FrameStack) CurrentTimeStep() ts.TimeStep {
	return f.lastStep
}

// ObservationSpec returns the observation specification of the
// environment, the wrapped specification tiled n times
func (f *FrameStack) ObservationSpec() env.Spec {
	inner := f.Environment.ObservationSpec()

	lower := make([]float64, f.n*f.obsLen)
	upper := make([]float64, f.n*f.obsLen)
	for k := 0; k < f.n; k++ {
		for i := 0; i < f.obsLen; i++ {
			lower[k*f.obsLen+i] = inner.LowerBound.AtVec(i)
			upper[k*f.obsLen+i] = inner.UpperBound.AtVec(i)
		}
	}

	return env.NewSpec(mat.NewVecDense(len(lower), nil), env.Observation,
		mat.NewVecDense(len(lower), lower), mat.NewVecDense(len(upper), upper),
		inner.Cardinality)
}

func (f *FrameStack) String() string {
	return fmt.Sprintf("FrameStack(%v): %v", f.n, f.Environment)
}
