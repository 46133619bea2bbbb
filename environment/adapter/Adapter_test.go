package adapter

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/samuelfneumann/rlrunner/environment"
	"github.com/samuelfneumann/rlrunner/environment/atari/breakout"
	"github.com/samuelfneumann/rlrunner/environment/classiccontrol/cartpole"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
)

// blind is an environment without frames which counts how often it
// was closed
type blind struct {
	step   ts.TimeStep
	closes *int
}

func (b *blind) Reset() (ts.TimeStep, error) {
	b.step = ts.New(ts.First, 0, 1, mat.NewVecDense(1, nil), 0)
	return b.step, nil
}

func (b *blind) Step(*mat.VecDense) (ts.TimeStep, bool, error) {
	b.step = ts.New(ts.Last, 1, 1, mat.NewVecDense(1, nil), b.step.Number+1)
	b.step.SetEnd(ts.TerminalStateReached)
	return b.step, true, nil
}

func (b *blind) CurrentTimeStep() ts.TimeStep { return b.step }
func (b *blind) ObservationSpec() environment.Spec {
	return environment.NewBoxSpec(1, environment.Observation, 0, 0,
		environment.Continuous)
}
func (b *blind) ActionSpec() environment.Spec { return environment.NewDiscreteActionSpec(1) }
func (b *blind) DiscountSpec() environment.Spec {
	return environment.NewBoxSpec(1, environment.Discount, 1, 1,
		environment.Continuous)
}
func (b *blind) Close() error { *b.closes++; return nil }

var blindCloses int

func init() {
	environment.Register("Blind-v0", func(uint64) (environment.Environment, error) {
		b := &blind{closes: &blindCloses}
		b.Reset()
		return b, nil
	})
}

type recorder struct {
	frames int
	closed int
}

func (r *recorder) Render(_ context.Context, _ *image.Gray) error {
	r.frames++
	return nil
}

func (r *recorder) Close() error {
	r.closed++
	return nil
}

func TestNewUnknown(t *testing.T) {
	_, err := New("NoSuchEnv-v0", 0, Preprocessing{})
	if !errors.Is(err, environment.ErrUnknownEnvironment) {
		t.Errorf("got error %v, want ErrUnknownEnvironment", err)
	}
}

func TestObservationShapes(t *testing.T) {
	p := Preprocessing{FrameSkip: 4, Dim: 42, FrameStack: 4}

	tests := []struct {
		name string
		id   environment.ID
		want int
	}{
		{name: "Pixels", id: breakout.ID, want: 42 * 42 * 4},
		{name: "Vector", id: cartpole.ID, want: 4 * 4},
		{name: "Blind", id: "Blind-v0", want: 4},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a, err := New(test.id, 1, p)
			if err != nil {
				t.Fatal(err)
			}
			defer a.Close()

			if got := a.ObservationSpec().Len(); got != test.want {
				t.Errorf("spec length: got %v, want %v", got, test.want)
			}
			obs, err := a.Reset()
			if err != nil {
				t.Fatal(err)
			}
			if obs.Len() != test.want {
				t.Errorf("observation length: got %v, want %v", obs.Len(),
					test.want)
			}
		})
	}
}

func TestStepInfo(t *testing.T) {
	a, err := New(breakout.ID, 3, Preprocessing{FrameSkip: 4, Dim: 42})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	a.Reset()
	_, _, done, info, err := a.Step(mat.NewVecDense(1, []float64{1}))
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Error("episode ended after one step")
	}
	if info.RawSteps != 4 {
		t.Errorf("raw steps: got %v, want 4", info.RawSteps)
	}
	if info.Lives != breakout.Lives {
		t.Errorf("lives: got %v, want %v", info.Lives, breakout.Lives)
	}
}

func TestRendering(t *testing.T) {
	r := &recorder{}
	a, err := New(cartpole.ID, 0, Preprocessing{}, WithRenderer(r))
	if err != nil {
		t.Fatal(err)
	}

	a.Reset()
	a.Step(mat.NewVecDense(1, []float64{0}))
	a.Close()

	if r.frames != 2 {
		t.Errorf("frames rendered: got %v, want 2", r.frames)
	}
	if r.closed != 1 {
		t.Errorf("renderer closed %v times, want 1", r.closed)
	}
}

func TestRenderingWithoutFrames(t *testing.T) {
	before := blindCloses
	_, err := New("Blind-v0", 0, Preprocessing{}, WithRenderer(&recorder{}))
	if !errors.Is(err, ErrNoFrames) {
		t.Errorf("got error %v, want ErrNoFrames", err)
	}
	if blindCloses != before+1 {
		t.Error("environment was not released after a failed construction")
	}
}

func TestCloseOnce(t *testing.T) {
	before := blindCloses
	a, err := New("Blind-v0", 0, Preprocessing{})
	if err != nil {
		t.Fatal(err)
	}

	a.Reset()
	_, _, done, info, _ := a.Step(mat.NewVecDense(1, nil))
	if !done || info.EndType != ts.TerminalStateReached {
		t.Errorf("got done=%v end=%v, want terminal end", done, info.EndType)
	}

	a.Close()
	a.Close()
	if blindCloses != before+1 {
		t.Errorf("closed %v times, want 1", blindCloses-before)
	}
}
