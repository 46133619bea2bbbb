// Package matutils implements utility functions for working with
// gonum vectors
package matutils

import (
	"math"

	"github.com/samuelfneumann/rlrunner/utils/floatutils"
	"gonum.org/v1/gonum/mat"
)

// MaxVec returns the index of the largest element of values. Ties are
// broken by the lowest index, and NaN elements are never selected
// unless all elements are NaN.
func MaxVec(values mat.Vector) int {
	if values.Len() == 0 {
		panic("maxVec: empty vector")
	}

	idx, best := 0, math.Inf(-1)
	for i := 0; i < values.Len(); i++ {
		if v := values.AtVec(i); v > best {
			idx, best = i, v
		}
	}
	return idx
}

// Softmax returns the softmax of logits, computed in log space so that
// large logits do not overflow
func Softmax(logits mat.Vector) *mat.VecDense {
	n := logits.Len()
	probs := make([]float64, n)
	for i := range probs {
		probs[i] = logits.AtVec(i)
	}

	norm := floatutils.LogSumExp(probs)
	for i, l := range probs {
		probs[i] = math.Exp(l - norm)
	}
	return mat.NewVecDense(n, probs)
}

// VecOnes returns a vector of n ones
func VecOnes(n int) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, 1)
	}
	return v
}
