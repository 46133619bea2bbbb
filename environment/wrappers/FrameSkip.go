// Package wrappers implements environments which wrap other environments
// to preprocess their observations and rewards.
package wrappers

import (
	"fmt"
	"image"

	env "github.com/samuelfneumann/rlrunner/environment"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
)

// FrameSkip wraps a pixel-based environment and repeats each action for
// a fixed number of frames. The rewards over the skipped frames are
// summed, and the observation returned is the pixel-wise maximum over
// the last two frames, which removes the flickering of sprites drawn
// only on alternate frames.
//
// If the episode ends during the skipped frames, the remaining frames
// are not taken.
//
// FrameSkip itself implements the environment.Pixels interface.
type FrameSkip struct {
	env.Pixels
	skip     int
	lastStep ts.TimeStep
}

// NewFrameSkip returns a new FrameSkip environment which repeats each
// action skip times
func NewFrameSkip(e env.Pixels, skip int) (*FrameSkip, error) {
	if skip < 1 {
		return nil, fmt.Errorf("newFrameSkip: frames to skip must be "+
			"positive, got %v", skip)
	}

	return &FrameSkip{Pixels: e, skip: skip, lastStep: e.CurrentTimeStep()}, nil
}

// Reset resets the environment and returns the starting TimeStep
func (f *FrameSkip) Reset() (ts.TimeStep, error) {
	step, err := f.Pixels.Reset()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %w", err)
	}
	f.lastStep = step
	return step, nil
}

// Step takes skip frames in the environment with the same action
func (f *FrameSkip) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	var (
		step, prev ts.TimeStep
		reward     float64
		taken      int
	)

	for taken < f.skip {
		next, last, err := f.Pixels.Step(a)
		if err != nil {
			return ts.TimeStep{}, false, fmt.Errorf("step: %w", err)
		}
		prev, step = step, next
		reward += next.Reward
		taken++
		if last {
			break
		}
	}

	obs := step.Observation
	if taken > 1 {
		obs = maxPool(prev.Observation, step.Observation)
	}

	next := ts.New(step.StepType, reward, step.Discount, obs,
		f.lastStep.Number+1)
	if step.Last() {
		next.SetEnd(step.EndType())
	}
	f.lastStep = next
	return next, next.Last(), nil
}

// Skip returns the number of frames each action is repeated for
func (f *FrameSkip) Skip() int {
	return f.skip
}

// CurrentTimeStep returns the last TimeStep returned by the wrapper
func (f *FrameSkip) CurrentTimeStep() ts.TimeStep {
	return f.lastStep
}

// Frame returns the current frame of the wrapped environment
func (f *FrameSkip) Frame() *image.Gray {
	return f.Pixels.Frame()
}

func (f *FrameSkip) String() string {
	return fmt.Sprintf("FrameSkip(%v): %v", f.skip, f.Pixels)
}

// maxPool returns the element-wise maximum of a and b
func maxPool(a, b mat.Vector) *mat.VecDense {
	max := mat.NewVecDense(a.Len(), nil)
	for i := 0; i < a.Len(); i++ {
		if a.AtVec(i) > b.AtVec(i) {
			max.SetVec(i, a.AtVec(i))
		} else {
			max.SetVec(i, b.AtVec(i))
		}
	}
	return max
}
