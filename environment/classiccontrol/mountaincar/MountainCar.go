// Package mountaincar implements the discrete action classic control
// environment "Mountain Car"
package mountaincar

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/fogleman/gg"
	env "github.com/samuelfneumann/rlrunner/environment"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"github.com/samuelfneumann/rlrunner/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// ID is the identifier Mountain Car is registered under
const ID env.ID = "MountainCar-v0"

const (
	MinPosition float64 = -1.2
	MaxPosition float64 = 0.6
	MaxSpeed    float64 = 0.07
	Power       float64 = 0.001 // Engine power
	Gravity     float64 = 0.0025

	ActionDims        int = 1
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 2

	EpisodeCutoff int     = 200
	Discount      float64 = 0.99

	frameWidth  int = 96
	frameHeight int = 64
)

func init() {
	env.Register(ID, func(seed uint64) (env.Environment, error) {
		position := r1.Interval{Min: -0.6, Max: -0.4}
		velocity := r1.Interval{Min: 0.0, Max: 0.0}
		s := env.NewUniformStarter([]r1.Interval{position, velocity}, seed)
		task := NewGoal(s, EpisodeCutoff, GoalPosition)

		m, err := New(task, Discount)
		if err != nil {
			return nil, err
		}
		return m, nil
	})
}

// MountainCar implements the classic control Mountain Car environment.
// In this environment, the agent controls a car in a valley between two
// hills. The car is underpowered and cannot drive up the hill unless
// it rocks back and forth from hill to hill, using its momentum to
// gradually climb higher.
//
// State features consist of the x position of the car and its velocity.
// Upon reaching the minimum position, the velocity of the car is set
// to 0.
//
// Actions are 1-dimensional and discrete in (0, 1, 2):
//
//	Action	Meaning
//	  0		Accelerate left
//	  1		Do nothing
//	  2		Accelerate right
type MountainCar struct {
	env.Task
	positionBounds r1.Interval
	speedBounds    r1.Interval
	lastStep       ts.TimeStep
	discount       float64
}

// New creates a new Mountain Car environment with the argument task
func New(t env.Task, discount float64) (*MountainCar, error) {
	m := &MountainCar{
		Task:           t,
		positionBounds: r1.Interval{Min: MinPosition, Max: MaxPosition},
		speedBounds:    r1.Interval{Min: -MaxSpeed, Max: MaxSpeed},
		discount:       discount,
	}

	if _, err := m.Reset(); err != nil {
		return nil, fmt.Errorf("new: could not reset environment: %v", err)
	}
	return m, nil
}

// Reset resets the environment and returns a starting state drawn from
// the environment Starter
func (m *MountainCar) Reset() (ts.TimeStep, error) {
	state := m.Start()
	if err := validateState(state, m.positionBounds, m.speedBounds); err != nil {
		return ts.TimeStep{}, err
	}

	startStep := ts.New(ts.First, 0, m.discount, state, 0)
	m.lastStep = startStep

	return startStep, nil
}

// CurrentTimeStep returns the last TimeStep in the environment
func (m *MountainCar) CurrentTimeStep() ts.TimeStep {
	return m.lastStep
}

// ObservationSpec returns the observation specification of the
// environment
func (m *MountainCar) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(2, nil)
	lowerBound := mat.NewVecDense(2, []float64{m.positionBounds.Min,
		m.speedBounds.Min})
	upperBound := mat.NewVecDense(2, []float64{m.positionBounds.Max,
		m.speedBounds.Max})

	return env.NewSpec(shape, env.Observation, lowerBound, upperBound,
		env.Continuous)
}

// ActionSpec returns the action specification of the environment
func (m *MountainCar) ActionSpec() env.Spec {
	return env.NewDiscreteActionSpec(MaxDiscreteAction + 1)
}

// DiscountSpec returns the discounting specification of the environment
func (m *MountainCar) DiscountSpec() env.Spec {
	return env.NewBoxSpec(1, env.Discount, m.discount, m.discount,
		env.Continuous)
}

// Step takes one environmental step given action a and returns the next
// timestep and a bool indicating whether or not the episode has ended.
func (m *MountainCar) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.Len() != ActionDims {
		return ts.TimeStep{}, false, fmt.Errorf("step: actions should be " +
			"1-dimensional")
	}
	if m.lastStep.Last() {
		return ts.TimeStep{}, true, fmt.Errorf("step: episode has ended, " +
			"call Reset")
	}

	intAction := int(a.AtVec(0))
	if intAction > MaxDiscreteAction || intAction < MinDiscreteAction {
		return ts.TimeStep{}, false, fmt.Errorf("step: illegal action %v "+
			"∉ (0, 1, 2)", intAction)
	}
	force := float64(intAction) - 1.0

	// Get the current state
	state := m.lastStep.Observation
	position, velocity := state.AtVec(0), state.AtVec(1)

	velocity += force*Power - Gravity*math.Cos(3*position)
	velocity = floatutils.ClipInterval(velocity, m.speedBounds)

	position += velocity
	position = floatutils.ClipInterval(position, m.positionBounds)
	if position <= m.positionBounds.Min && velocity < 0 {
		velocity = 0
	}

	newState := mat.NewVecDense(2, []float64{position, velocity})
	reward := m.GetReward(state, a, newState)
	nextStep := ts.New(ts.Mid, reward, m.discount, newState,
		m.lastStep.Number+1)
	m.End(&nextStep)

	m.lastStep = nextStep
	return nextStep, nextStep.Last(), nil
}

// Frame draws the hill and the car
func (m *MountainCar) Frame() *image.Gray {
	dc := gg.NewContext(frameWidth, frameHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	toPixels := func(x float64) (float64, float64) {
		px := (x - MinPosition) / (MaxPosition - MinPosition) *
			float64(frameWidth)
		py := float64(frameHeight) * (0.9 - 0.35*(math.Sin(3*x)+1))
		return px, py
	}

	// Hill
	dc.SetRGB(0.4, 0.4, 0.4)
	dc.SetLineWidth(1.5)
	for i := 0; i <= frameWidth; i++ {
		x := MinPosition + float64(i)/float64(frameWidth)*
			(MaxPosition-MinPosition)
		px, py := toPixels(x)
		dc.LineTo(px, py)
	}
	dc.Stroke()

	// Flag
	fx, fy := toPixels(GoalPosition)
	dc.DrawLine(fx, fy, fx, fy-10)
	dc.Stroke()

	// Car
	cx, cy := toPixels(m.lastStep.Observation.AtVec(0))
	dc.SetRGB(0, 0, 0)
	dc.DrawCircle(cx, cy-3, 3)
	dc.Fill()

	img := dc.Image()
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray
}

// Close implements the environment.Environment interface
func (m *MountainCar) Close() error {
	return nil
}

// String returns a string representation of the environment
func (m *MountainCar) String() string {
	str := "Mountain Car  |  Position: %v  |  Speed: %v"
	state := m.lastStep.Observation
	return fmt.Sprintf(str, state.AtVec(0), state.AtVec(1))
}

// validateState validates the state to ensure the position and speed
// are within the environmental limits
func validateState(s mat.Vector, positionBounds,
	speedBounds r1.Interval) error {
	position := s.AtVec(0)
	if position < positionBounds.Min || position > positionBounds.Max {
		return fmt.Errorf("illegal position %v ∉ [%v, %v]", position,
			positionBounds.Min, positionBounds.Max)
	}

	speed := s.AtVec(1)
	if speed < speedBounds.Min || speed > speedBounds.Max {
		return fmt.Errorf("illegal speed %v ∉ [%v, %v]", speed,
			speedBounds.Min, speedBounds.Max)
	}
	return nil
}
