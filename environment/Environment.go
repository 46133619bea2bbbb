// Package environment outlines the interfaces and structs needed to
// implement concrete environments, and a registry which constructs
// environments from their string identifiers.
package environment

import (
	"image"

	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when an episode should end. If End returns true,
// then it should also set the StepType of the argument TimeStep to
// timestep.Last.
type Ender interface {
	End(*ts.TimeStep) bool
}

// Task implements the reward scheme and episode termination for taking
// actions in some environment
type Task interface {
	Starter
	Ender
	GetReward(state, action, nextState mat.Vector) float64
}

// Environment implements a simulated environment. Episodes are
// guaranteed to end in a finite number of steps: every environment
// registered with this package carries an Ender with a step limit.
type Environment interface {
	// Reset resets the environment to a starting state and returns
	// the first TimeStep of the new episode
	Reset() (ts.TimeStep, error)

	// Step takes a single environmental step, returning the next
	// TimeStep and whether the episode has ended
	Step(action *mat.VecDense) (ts.TimeStep, bool, error)

	// CurrentTimeStep returns the most recent TimeStep
	CurrentTimeStep() ts.TimeStep

	ObservationSpec() Spec
	ActionSpec() Spec
	DiscountSpec() Spec

	// Close releases any resources held by the environment
	Close() error
}

// Framer is an Environment which can draw its current state as a
// grayscale image. Pixel-based environments observe these frames
// directly, other environments only produce frames for rendering.
type Framer interface {
	Environment
	Frame() *image.Gray
}

// Pixels is a Framer whose observations are the flattened pixels of
// its frames, in row major order.
type Pixels interface {
	Framer
	FrameShape() (height, width int)
}
