package mountaincar

import (
	"testing"

	"github.com/samuelfneumann/rlrunner/environment"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
)

func TestTimeout(t *testing.T) {
	e, err := environment.Make(ID, 3)
	if err != nil {
		t.Fatal(err)
	}

	// Doing nothing never reaches the goal
	noop := mat.NewVecDense(1, []float64{1})
	var step ts.TimeStep
	total := 0.0
	for !step.Last() {
		if step, _, err = e.Step(noop); err != nil {
			t.Fatal(err)
		}
		total += step.Reward
	}

	if step.EndType() != ts.Timeout {
		t.Errorf("end type: got %v, want %v", step.EndType(), ts.Timeout)
	}
	if total != -float64(EpisodeCutoff) {
		t.Errorf("return: got %v, want %v", total, -EpisodeCutoff)
	}
}

func TestGoal(t *testing.T) {
	g := NewGoal(nil, EpisodeCutoff, GoalPosition)
	step := ts.New(ts.Mid, -1, Discount, mat.NewVecDense(2,
		[]float64{0.55, 0.01}), 10)
	if !g.End(&step) || step.EndType() != ts.TerminalStateReached {
		t.Errorf("expected goal to end the episode, got %v", step.EndType())
	}
}

func TestFrame(t *testing.T) {
	e, _ := environment.Make(ID, 0)
	frame := e.(environment.Framer).Frame()
	if b := frame.Bounds(); b.Dx() != frameWidth || b.Dy() != frameHeight {
		t.Errorf("frame size: got %v, want %vx%v", b, frameWidth,
			frameHeight)
	}
}
