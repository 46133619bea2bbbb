//go:build gogym

package gym

import (
	"fmt"
	"strings"

	"github.com/samuelfneumann/gogym"
	env "github.com/samuelfneumann/rlrunner/environment"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
)

// Enabled reports whether Gym environments are available
const Enabled = true

// Discount is the discount factor of Gym environments
const Discount float64 = 0.99

func init() {
	env.RegisterResolver(func(id env.ID) (env.Maker, bool) {
		name, ok := strings.CutPrefix(string(id), Prefix)
		if !ok || name == "" {
			return nil, false
		}
		return func(seed uint64) (env.Environment, error) {
			return New(name, Discount, seed)
		}, true
	})
}

// Shutdown releases the Python interpreter. No Gym environment may be
// used afterwards.
func Shutdown() {
	gogym.Close()
}

// GymEnv implements access to an OpenAI Gym environment using GoGym
type GymEnv struct {
	gogym.Environment

	name        string
	currentStep ts.TimeStep
	discount    float64
}

// New returns a new GymEnv with the given name, which must be a legal
// name from the OpenAI Gym suite.
func New(name string, discount float64, seed uint64) (*GymEnv, error) {
	goGymEnv, err := gogym.Make(name)
	if err != nil {
		return nil, fmt.Errorf("new: could not create environment %v: %w",
			name, err)
	}

	goGymEnv.Seed(int(seed))
	gymEnv := &GymEnv{
		Environment: goGymEnv,
		name:        name,
		discount:    discount,
	}
	if _, err := gymEnv.Reset(); err != nil {
		goGymEnv.Close()
		return nil, fmt.Errorf("new: %w", err)
	}

	return gymEnv, nil
}

// Step takes a single environmental step
func (g *GymEnv) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if g.currentStep.Last() {
		return ts.TimeStep{}, true, fmt.Errorf("step: episode has ended, " +
			"call Reset")
	}

	obs, reward, done, err := g.Environment.Step(a)
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: could not step "+
			"GoGym environment: %w", err)
	}

	t := ts.New(ts.Mid, reward, g.discount, obs, g.currentStep.Number+1)
	if done {
		// Gym does not report why an episode ended
		t.StepType = ts.Last
		t.SetEnd(ts.Unknown)
	}
	g.currentStep = t

	return t, done, nil
}

// Reset resets the environment to some starting state
func (g *GymEnv) Reset() (ts.TimeStep, error) {
	obs, err := g.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: could not reset "+
			"environment %v: %w", g.name, err)
	}

	t := ts.New(ts.First, 0, g.discount, obs, 0)
	g.currentStep = t

	return t, nil
}

// CurrentTimeStep returns the current timestep in the environment
func (g *GymEnv) CurrentTimeStep() ts.TimeStep {
	return g.currentStep
}

// ObservationSpec returns the observation spec of the environment
func (g *GymEnv) ObservationSpec() env.Spec {
	space := g.ObservationSpace()

	var cardinality env.Cardinality
	switch space.(type) {
	case *gogym.BoxSpace:
		cardinality = env.Continuous
	case *gogym.DiscreteSpace:
		cardinality = env.Discrete
	default:
		panic("observationSpec: invalid space type, package gym supports " +
			"only GoGym's BoxSpace or DiscreteSpace")
	}
	return boundsSpec(space.Low()[0], space.High()[0], env.Observation,
		cardinality)
}

// ActionSpec returns the action specification of the environment
func (g *GymEnv) ActionSpec() env.Spec {
	space := g.ActionSpace()

	var cardinality env.Cardinality
	switch space.(type) {
	case *gogym.BoxSpace:
		cardinality = env.Continuous
	case *gogym.DiscreteSpace:
		cardinality = env.Discrete
	default:
		panic("actionSpec: invalid space type, package gym supports " +
			"only GoGym's BoxSpace or DiscreteSpace")
	}
	return boundsSpec(space.Low()[0], space.High()[0], env.Action,
		cardinality)
}

func boundsSpec(low, high *mat.VecDense, t env.SpecType,
	cardinality env.Cardinality) env.Spec {
	shape := mat.NewVecDense(low.Len(), nil)
	return env.NewSpec(shape, t, low, high, cardinality)
}

// DiscountSpec returns the discount specification of the environment
func (g *GymEnv) DiscountSpec() env.Spec {
	return env.NewBoxSpec(1, env.Discount, g.discount, g.discount,
		env.Continuous)
}

// Close performs resource cleanup after the environment is no longer
// needed
func (g *GymEnv) Close() error {
	g.Environment.Close()
	return nil
}

func (g *GymEnv) String() string {
	return fmt.Sprintf("Gym(%v)", g.name)
}
