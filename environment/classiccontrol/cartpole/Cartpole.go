// Package cartpole implements the Cartpole classic control environment
package cartpole

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/fogleman/gg"
	env "github.com/samuelfneumann/rlrunner/environment"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// ID is the identifier Cartpole is registered under
const ID env.ID = "CartPole-v1"

const (
	// Physical constants
	Gravity        float64 = 9.8
	CartMass       float64 = 1.0
	PoleMass       float64 = 0.1
	HalfPoleLength float64 = 0.5  // half of pole length
	ForceMag       float64 = 10.0 // Magnification of force applied
	Dt             float64 = 0.02 // seconds between state updates

	// Bounds (+/-) on state variables
	PositionBounds        float64 = 4.8
	SpeedBounds           float64 = math.MaxFloat64
	AngleBounds           float64 = math.Pi
	AngularVelocityBounds float64 = math.MaxFloat64

	// Discrete Actions
	ActionDims        int = 1
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 1

	EpisodeCutoff int     = 500
	Discount      float64 = 0.99

	frameWidth  int = 96
	frameHeight int = 48
)

func init() {
	env.Register(ID, func(seed uint64) (env.Environment, error) {
		bounds := r1.Interval{Min: -0.05, Max: 0.05}
		s := env.NewUniformStarter([]r1.Interval{bounds, bounds, bounds,
			bounds}, seed)
		task := NewBalance(s, EpisodeCutoff, FailPosition, FailAngle)

		c, _ := New(task, Discount)
		return c, nil
	})
}

// Cartpole implements the classic control environment Cartpole. In
// this environment, a pole is attached to a cart, which can move
// horizontally. The agent must keep the pole upright for as long as
// possible.
//
// The state features are continuous and consist of the cart's x
// position and speed, as well as the pole's angle from the positive
// y-axis and the pole's angular velocity.
//
// Actions are discrete and consist of the force applied to the cart:
//
//	Action	Meaning
//	  0		Push left
//	  1		Push right
type Cartpole struct {
	env.Task
	lastStep              ts.TimeStep
	discount              float64
	positionBounds        r1.Interval
	speedBounds           r1.Interval
	angleBounds           r1.Interval
	angularVelocityBounds r1.Interval
}

// New constructs a new Cartpole environment
func New(t env.Task, discount float64) (*Cartpole, ts.TimeStep) {
	c := &Cartpole{
		Task:           t,
		discount:       discount,
		positionBounds: r1.Interval{Min: -PositionBounds, Max: PositionBounds},
		speedBounds:    r1.Interval{Min: -SpeedBounds, Max: SpeedBounds},
		angleBounds:    r1.Interval{Min: -AngleBounds, Max: AngleBounds},
		angularVelocityBounds: r1.Interval{Min: -AngularVelocityBounds,
			Max: AngularVelocityBounds},
	}
	step, _ := c.Reset()

	return c, step
}

// Reset resets the environment and returns a starting state drawn from
// the environment Starter
func (c *Cartpole) Reset() (ts.TimeStep, error) {
	state := c.Start()
	if state.Len() != 4 {
		return ts.TimeStep{}, fmt.Errorf("reset: starting state must have "+
			"4 features, got %v", state.Len())
	}

	startStep := ts.New(ts.First, 0, c.discount, state, 0)
	c.lastStep = startStep

	return startStep, nil
}

// CurrentTimeStep returns the last TimeStep in the environment
func (c *Cartpole) CurrentTimeStep() ts.TimeStep {
	return c.lastStep
}

// ActionSpec returns the action specification of the environment
func (c *Cartpole) ActionSpec() env.Spec {
	return env.NewDiscreteActionSpec(MaxDiscreteAction + 1)
}

// ObservationSpec returns the observation specification of the
// environment
func (c *Cartpole) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(4, nil)

	lower := []float64{c.positionBounds.Min, c.speedBounds.Min,
		c.angleBounds.Min, c.angularVelocityBounds.Min}
	upper := []float64{c.positionBounds.Max, c.speedBounds.Max,
		c.angleBounds.Max, c.angularVelocityBounds.Max}

	return env.NewSpec(shape, env.Observation, mat.NewVecDense(4, lower),
		mat.NewVecDense(4, upper), env.Continuous)
}

// DiscountSpec returns the discounting specification of the environment
func (c *Cartpole) DiscountSpec() env.Spec {
	return env.NewBoxSpec(1, env.Discount, c.discount, c.discount,
		env.Continuous)
}

// Step takes one environmental step given action a and returns the next
// state as a timestep.TimeStep and a bool indicating whether or not the
// episode has ended
func (c *Cartpole) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.Len() != ActionDims {
		return ts.TimeStep{}, false, fmt.Errorf("step: actions should be " +
			"1-dimensional")
	}
	if c.lastStep.Last() {
		return ts.TimeStep{}, true, fmt.Errorf("step: episode has ended, " +
			"call Reset")
	}

	// Ensure a legal action was selected
	intAction := int(a.AtVec(0))
	if intAction < MinDiscreteAction || intAction > MaxDiscreteAction {
		return ts.TimeStep{}, false, fmt.Errorf("step: illegal action %v "+
			"∉ (0, 1)", intAction)
	}
	force := ForceMag
	if intAction == 0 {
		force = -ForceMag
	}

	// Get state variables
	state := c.lastStep.Observation
	x, xDot := state.AtVec(0), state.AtVec(1)
	th, thDot := state.AtVec(2), state.AtVec(3)

	// Calculate physical variables to determine next state
	cosTheta := math.Cos(th)
	sinTheta := math.Sin(th)

	totalMass := PoleMass + CartMass
	poleMassLength := PoleMass * HalfPoleLength

	temp := (force + poleMassLength*thDot*thDot*sinTheta) / totalMass
	thAcc := (Gravity*sinTheta - cosTheta*temp) / (HalfPoleLength *
		(4.0/3.0 - PoleMass*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thAcc*cosTheta/totalMass

	// Update state variables using Euler kinematic integration
	x += Dt * xDot
	xDot += Dt * xAcc
	th += Dt * thDot
	th = normalizeAngle(th, c.angleBounds)
	thDot += Dt * thAcc

	// Create the new timestep
	newState := mat.NewVecDense(4, []float64{x, xDot, th, thDot})
	reward := c.GetReward(c.lastStep.Observation, a, newState)
	nextStep := ts.New(ts.Mid, reward, c.discount, newState,
		c.lastStep.Number+1)

	// Check if the step ends the episode
	c.End(&nextStep)

	c.lastStep = nextStep
	return nextStep, nextStep.Last(), nil
}

// Frame draws the cart and pole
func (c *Cartpole) Frame() *image.Gray {
	dc := gg.NewContext(frameWidth, frameHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	scale := float64(frameWidth) / (2 * PositionBounds)
	state := c.lastStep.Observation
	cartX := (state.AtVec(0) + PositionBounds) * scale
	cartY := float64(frameHeight) * 0.75

	// Track
	dc.SetRGB(0.6, 0.6, 0.6)
	dc.DrawLine(0, cartY, float64(frameWidth), cartY)
	dc.Stroke()

	// Cart
	dc.SetRGB(0, 0, 0)
	dc.DrawRectangle(cartX-6, cartY-3, 12, 6)
	dc.Fill()

	// Pole
	poleLength := 2 * HalfPoleLength * scale * 2
	th := state.AtVec(2)
	dc.SetRGB(0.35, 0.35, 0.35)
	dc.SetLineWidth(2)
	dc.DrawLine(cartX, cartY, cartX+poleLength*math.Sin(th),
		cartY-poleLength*math.Cos(th))
	dc.Stroke()

	img := dc.Image()
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray
}

// Close implements the environment.Environment interface
func (c *Cartpole) Close() error {
	return nil
}

func (c *Cartpole) String() string {
	msg := "Cartpole  |  Position: %v  | Speed: %v  |  Angle: %v" +
		"  |  Angular Velocity: %v"

	state := c.lastStep.Observation
	position, speed := state.AtVec(0), state.AtVec(1)
	angle, velocity := state.AtVec(2), state.AtVec(3)

	return fmt.Sprintf(msg, position, speed, angle, velocity)
}

// normalizeAngle normalizes the pole angle to the appropriate limits
func normalizeAngle(th float64, angleBounds r1.Interval) float64 {
	if angleBounds.Max != -angleBounds.Min {
		panic("angle bounds should be centered around 0")
	}

	if th > angleBounds.Max {
		divisor := int(th / angleBounds.Max)
		return -math.Pi + th - (angleBounds.Max * float64(divisor))
	} else if th < angleBounds.Min {
		divisor := int(th / angleBounds.Min)
		return math.Pi + th - (angleBounds.Min * float64(divisor))
	}
	return th
}
