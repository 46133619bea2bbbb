package breakout

import (
	"testing"

	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
)

func TestTimeout(t *testing.T) {
	b, err := New(0, Discount, 50, 0)
	if err != nil {
		t.Fatal(err)
	}

	noop := mat.NewVecDense(1, []float64{float64(Noop)})
	for i := 1; i <= 50; i++ {
		step, last, err := b.Step(noop)
		if err != nil {
			t.Fatal(err)
		}
		if last != (i == 50) {
			t.Fatalf("step %v: last = %v", i, last)
		}
		if last && step.EndType() != ts.Timeout {
			t.Errorf("end type: got %v, want %v", step.EndType(), ts.Timeout)
		}
	}

	if _, _, err := b.Step(noop); err == nil {
		t.Error("expected error stepping after the episode ended")
	}
}

func TestEpisodeEnds(t *testing.T) {
	b, err := New(7, Discount, MaxEpisodeSteps, RepeatActionProbability)
	if err != nil {
		t.Fatal(err)
	}

	left := mat.NewVecDense(1, []float64{float64(Left)})
	var step ts.TimeStep
	for !step.Last() {
		if step, _, err = b.Step(left); err != nil {
			t.Fatal(err)
		}
		if step.Reward < 0 {
			t.Fatalf("negative reward %v", step.Reward)
		}
	}

	switch step.EndType() {
	case ts.TerminalStateReached:
		if b.Lives() != 0 && b.bricksLeft != 0 {
			t.Errorf("terminal with %v lives and %v bricks", b.Lives(),
				b.bricksLeft)
		}
	case ts.Timeout:
		if step.Number != MaxEpisodeSteps {
			t.Errorf("timeout at step %v, want %v", step.Number,
				MaxEpisodeSteps)
		}
	default:
		t.Errorf("unexpected end type %v", step.EndType())
	}
}

func TestSeedDeterminism(t *testing.T) {
	b1, _ := New(42, Discount, 500, RepeatActionProbability)
	b2, _ := New(42, Discount, 500, RepeatActionProbability)

	episodes := 0
	for i := 0; i < 1000; i++ {
		a := mat.NewVecDense(1, []float64{float64(i % NumActions)})
		s1, done1, err := b1.Step(a)
		if err != nil {
			t.Fatalf("step %v: %v", i, err)
		}
		s2, done2, err := b2.Step(a)
		if err != nil {
			t.Fatalf("step %v: %v", i, err)
		}

		if done1 != done2 || s1.Reward != s2.Reward ||
			s1.EndType() != s2.EndType() ||
			!mat.Equal(s1.Observation, s2.Observation) {
			t.Fatalf("environments diverged at step %v", i)
		}

		if done1 {
			episodes++
			r1, err := b1.Reset()
			if err != nil {
				t.Fatal(err)
			}
			r2, err := b2.Reset()
			if err != nil {
				t.Fatal(err)
			}
			if !mat.Equal(r1.Observation, r2.Observation) {
				t.Fatalf("environments diverged on reset after step %v", i)
			}
		}
	}
	if episodes == 0 {
		t.Error("no episode ended")
	}
}

func TestIllegalAction(t *testing.T) {
	b, _ := New(0, Discount, 10, 0)
	if _, _, err := b.Step(mat.NewVecDense(1, []float64{4})); err == nil {
		t.Error("expected error for illegal action")
	}
	if _, _, err := b.Step(mat.NewVecDense(2, nil)); err == nil {
		t.Error("expected error for 2-dimensional action")
	}
}

func TestFrame(t *testing.T) {
	b, _ := New(0, Discount, 10, 0)
	h, w := b.FrameShape()
	frame := b.Frame()
	if frame.Bounds().Dx() != w || frame.Bounds().Dy() != h {
		t.Fatalf("frame size: got %v, want %vx%v", frame.Bounds(), w, h)
	}

	obs := b.CurrentTimeStep().Observation
	for i, p := range frame.Pix {
		if float64(p) != obs.AtVec(i) {
			t.Fatalf("pixel %v: frame %v != observation %v", i, p,
				obs.AtVec(i))
		}
	}
}
