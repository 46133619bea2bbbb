// Package gae implements functionality for storing a generalized
// advantage estimate buffer
package gae

import (
	"fmt"

	"github.com/samuelfneumann/rlrunner/utils/matutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Buffer implements a forward view generalized advantage estimate -
// GAE(λ) - buffer following https://arxiv.org/abs/1506.02438. This
// implementation is adapted from:
//
// https://github.com/openai/spinningup/tree/master/spinup/algos/tf1/vpg
//
// A Buffer holds a fixed number of timesteps, which may span multiple
// trajectories. Each trajectory is closed with FinishPath.
type Buffer struct {
	obsSize    int // Size of state observations
	actionSize int // Number of action dimensions
	maxSize    int // Max buffer size

	currentPos   int // Current position in the buffer
	pathStartIdx int // Position in the buffer where current trajectory starts

	lambda float64 // λ for GAE(λ) calculation
	gamma  float64 // Discount factor ℽ; overwrites env discount factor

	// Buffers for storing data
	obsBuffer []float64
	actBuffer []float64
	advBuffer []float64
	rewBuffer []float64
	retBuffer []float64
	valBuffer []float64
}

// New creates and returns a new GAE(λ) buffer
func New(obsDim, actDim, size int, lambda, gamma float64) *Buffer {
	if size <= 0 {
		panic("new: buffer size must be positive")
	}

	return &Buffer{
		obsSize:    obsDim,
		actionSize: actDim,
		maxSize:    size,
		lambda:     lambda,
		gamma:      gamma,
		obsBuffer:  make([]float64, size*obsDim),
		actBuffer:  make([]float64, size*actDim),
		advBuffer:  make([]float64, size),
		rewBuffer:  make([]float64, size),
		retBuffer:  make([]float64, size),
		valBuffer:  make([]float64, size),
	}
}

// Store stores a single timestep state, action, reward, and value to
// the Buffer.
func (v *Buffer) Store(obs mat.Vector, act []float64, rew, val float64) error {
	if v.currentPos >= v.maxSize {
		return fmt.Errorf("store: cannot add new transition, buffer at " +
			"maximum capacity")
	}
	if obs.Len() != v.obsSize {
		return fmt.Errorf("store: illegal obs length \n\twant(%v)\n\thave(%v)",
			v.obsSize, obs.Len())
	}
	if len(act) != v.actionSize {
		return fmt.Errorf("store: illegal act length \n\twant(%v)\n\thave(%v)",
			v.actionSize, len(act))
	}

	// Add observations
	start := v.currentPos * v.obsSize
	for i := 0; i < v.obsSize; i++ {
		v.obsBuffer[start+i] = obs.AtVec(i)
	}

	// Add actions
	start = v.currentPos * v.actionSize
	copy(v.actBuffer[start:start+v.actionSize], act)

	v.rewBuffer[v.currentPos] = rew
	v.valBuffer[v.currentPos] = val
	v.currentPos++
	return nil
}

// Full returns whether the buffer is at maximum capacity
func (v *Buffer) Full() bool {
	return v.currentPos == v.maxSize
}

// Len returns the number of timesteps stored
func (v *Buffer) Len() int {
	return v.currentPos
}

// FinishPath computes advatange estimates using GAE(λ) and
// rewards-to-go estiamtes for each state for the current trajectory.
// This should be called at the end of a trajectory or when one gets
// cut off by an epoch ending. If no timesteps were stored since the
// last call, FinishPath does nothing.
//
// The lastVal argument should be 0 if the trajectory ended because
// the agent reached a terminal state, and otherwise it should be
// v(s), the value estimate of the current state. This allows for
// bootstrapping the rewards-to-go calculation to account for timesteps
// beyond the arbitrary episode horizon or epoch cutoff.
func (v *Buffer) FinishPath(lastVal float64) {
	start := v.pathStartIdx
	stop := v.currentPos
	if start == stop {
		return
	}

	n := stop - start
	rews := make([]float64, n+1)
	vals := make([]float64, n+1)
	copy(rews, v.rewBuffer[start:stop])
	copy(vals, v.valBuffer[start:stop])
	rews[n], vals[n] = lastVal, lastVal

	// GAE-lambda advantage calculation
	deltas := make([]float64, n)
	for i := range deltas {
		deltas[i] = rews[i] + v.gamma*vals[i+1] - vals[i]
	}
	copy(v.advBuffer[start:stop], discountCumSum(deltas, v.gamma*v.lambda))

	// Rewards-to-go
	copy(v.retBuffer[start:stop], discountCumSum(rews, v.gamma)[:n])

	v.pathStartIdx = v.currentPos
}

// Batch holds the data of a full Buffer. Observations and actions are
// stored row major, one row per timestep.
type Batch struct {
	Observations *mat.Dense
	Actions      []float64
	Advantages   []float64
	Returns      []float64
}

// Get returns the observations, actions, advantages, and returns stored
// in the buffer and empties the buffer. Advantages are first
// standardized to mean 0 and standard deviation 1. The data of the
// returned Batch is overwritten by the next use of the Buffer.
func (v *Buffer) Get() (Batch, error) {
	if v.currentPos != v.maxSize {
		return Batch{}, fmt.Errorf("get: buffer must be full before sampling")
	}
	if v.pathStartIdx != v.currentPos {
		return Batch{}, fmt.Errorf("get: trajectory must be finished " +
			"before sampling")
	}

	v.currentPos = 0
	v.pathStartIdx = 0

	// Advantage normalization
	adv := mat.NewVecDense(len(v.advBuffer), v.advBuffer)
	ones := matutils.VecOnes(adv.Len())
	mean, std := stat.MeanStdDev(v.advBuffer, nil)
	if v.maxSize == 1 {
		std = 0
	}
	adv.AddScaledVec(adv, -mean, ones)
	adv.ScaleVec(1/(std+1e-8), adv)

	return Batch{
		Observations: mat.NewDense(v.maxSize, v.obsSize, v.obsBuffer),
		Actions:      v.actBuffer,
		Advantages:   adv.RawVector().Data,
		Returns:      v.retBuffer,
	}, nil
}

// discountCumSum computes and returns the discounted cumulative sum
// of all elements of x. Given x = [x0 x1 x2 ... xN] and discount ℽ,
// this function computes and returns:
//
//	[
//		x0 + ℽ x1 + ℽ^2 x2 + ... + ℽ^N xN
//		x1 + ℽ x2 + ... + ℽ^(N-1) xN
//		...
//		xN
//	]
func discountCumSum(x []float64, discount float64) []float64 {
	cumSums := make([]float64, len(x))
	running := 0.0
	for i := len(x) - 1; i >= 0; i-- {
		running = x[i] + discount*running
		cumSums[i] = running
	}
	return cumSums
}
