package cartpole

import (
	"testing"

	"github.com/samuelfneumann/rlrunner/environment"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
)

func TestRegistered(t *testing.T) {
	e, err := environment.Make(ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := e.ActionSpec().NumActions(); n != 2 {
		t.Errorf("actions: got %v, want 2", n)
	}

	obs := e.CurrentTimeStep().Observation
	for i := 0; i < obs.Len(); i++ {
		if v := obs.AtVec(i); v < -0.05 || v > 0.05 {
			t.Errorf("starting feature %v = %v ∉ [-0.05, 0.05]", i, v)
		}
	}
}

func TestPoleFalls(t *testing.T) {
	e, _ := environment.Make(ID, 1)

	// Always pushing right tips the pole over long before the cutoff
	right := mat.NewVecDense(1, []float64{1})
	var step ts.TimeStep
	var err error
	for !step.Last() {
		if step, _, err = e.Step(right); err != nil {
			t.Fatal(err)
		}
		if step.Reward != 1 {
			t.Fatalf("reward: got %v, want 1", step.Reward)
		}
	}

	if step.EndType() != ts.TerminalStateReached {
		t.Errorf("end type: got %v, want %v", step.EndType(),
			ts.TerminalStateReached)
	}
	if step.Number >= EpisodeCutoff {
		t.Errorf("pole did not fall before step %v", EpisodeCutoff)
	}

	if _, _, err := e.Step(right); err == nil {
		t.Error("expected error stepping after the episode ended")
	}
}

func TestIllegalAction(t *testing.T) {
	e, _ := environment.Make(ID, 1)
	if _, _, err := e.Step(mat.NewVecDense(1, []float64{2})); err == nil {
		t.Error("expected error for illegal action")
	}
}
