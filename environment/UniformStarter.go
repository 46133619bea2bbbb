package environment

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// UniformStarter implements the Starter interface, sampling each
// feature of the starting state uniformly and independently from an
// interval. Starting states are reproducible given the seed.
type UniformStarter struct {
	dist *distmv.Uniform
	dims int
}

// NewUniformStarter returns a new UniformStarter. NewUniformStarter
// panics if an interval is empty or reversed.
func NewUniformStarter(bounds []r1.Interval, seed uint64) *UniformStarter {
	if len(bounds) == 0 {
		panic("newUniformStarter: at least one interval is required")
	}
	for i, b := range bounds {
		if b.Min > b.Max {
			panic(fmt.Sprintf("newUniformStarter: interval %v has min %v "+
				"> max %v", i, b.Min, b.Max))
		}
	}

	return &UniformStarter{
		dist: distmv.NewUniform(bounds, rand.NewSource(seed)),
		dims: len(bounds),
	}
}

// Start implements the Starter interface
func (u *UniformStarter) Start() *mat.VecDense {
	return mat.NewVecDense(u.dims, u.dist.Rand(nil))
}
