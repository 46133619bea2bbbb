package gae

import (
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestDiscountCumSum(t *testing.T) {
	got := discountCumSum([]float64{1, 2, 3}, 0.5)
	want := []float64{1 + 0.5*2 + 0.25*3, 2 + 0.5*3, 3}
	if !floats.EqualApprox(got, want, 1e-12) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReturns(t *testing.T) {
	const gamma = 0.9
	b := New(1, 1, 4, 1.0, gamma)

	// A terminated trajectory of two steps and a cut off trajectory of
	// two steps bootstrapped with v(s) = 10
	for _, r := range []float64{1, 1} {
		if err := b.Store(mat.NewVecDense(1, nil), []float64{0}, r, 0); err != nil {
			t.Fatal(err)
		}
	}
	b.FinishPath(0)
	for _, r := range []float64{2, 0} {
		b.Store(mat.NewVecDense(1, nil), []float64{1}, r, 0)
	}
	b.FinishPath(10)

	batch, err := b.Get()
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{1 + gamma, 1, 2 + gamma*gamma*10, gamma * 10}
	if !floats.EqualApprox(batch.Returns, want, 1e-12) {
		t.Errorf("returns: got %v, want %v", batch.Returns, want)
	}

	// With λ = 1 and zero values, advantages are the returns, then
	// standardized
	mean, std := stat.MeanStdDev(batch.Advantages, nil)
	if !scalar.EqualWithinAbs(mean, 0, 1e-9) ||
		!scalar.EqualWithinAbs(std, 1, 1e-6) {
		t.Errorf("advantages not standardized: mean %v std %v", mean, std)
	}
	if r, c := batch.Observations.Dims(); r != 4 || c != 1 {
		t.Errorf("observations: got %vx%v, want 4x1", r, c)
	}
}

func TestCapacity(t *testing.T) {
	b := New(2, 1, 1, 0.95, 0.99)

	if err := b.Store(mat.NewVecDense(3, nil), []float64{0}, 0, 0); err == nil {
		t.Error("expected error storing wrong observation size")
	}
	if _, err := b.Get(); err == nil {
		t.Error("expected error getting from a buffer which is not full")
	}

	b.Store(mat.NewVecDense(2, nil), []float64{0}, 0, 0)
	if err := b.Store(mat.NewVecDense(2, nil), []float64{0}, 0, 0); err == nil {
		t.Error("expected error storing to a full buffer")
	}
	if _, err := b.Get(); err == nil {
		t.Error("expected error getting an unfinished trajectory")
	}

	b.FinishPath(0)
	if _, err := b.Get(); err != nil {
		t.Error(err)
	}
	if b.Len() != 0 {
		t.Errorf("buffer not emptied, holds %v timesteps", b.Len())
	}
}
