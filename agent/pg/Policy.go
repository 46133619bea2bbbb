package pg

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/rlrunner/utils/floatutils"
	"github.com/samuelfneumann/rlrunner/utils/matutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Policy implements a softmax policy using linear function
// approximation, together with a linear state value baseline
type Policy struct {
	weights   *mat.Dense    // rows = actions, cols = features
	bias      *mat.VecDense // one per action
	value     *mat.VecDense // one per feature
	valueBias float64
}

// NewPolicy returns a new Policy with zero weights, which selects all
// actions with equal probability
func NewPolicy(features, actions int) *Policy {
	if features <= 0 || actions <= 0 {
		panic(fmt.Sprintf("newPolicy: features (%v) and actions (%v) must "+
			"be positive", features, actions))
	}

	return &Policy{
		weights: mat.NewDense(actions, features, nil),
		bias:    mat.NewVecDense(actions, nil),
		value:   mat.NewVecDense(features, nil),
	}
}

// Dims returns the number of features and actions of the Policy
func (p *Policy) Dims() (features, actions int) {
	actions, features = p.weights.Dims()
	return features, actions
}

// Logits returns the action preferences in a state
func (p *Policy) Logits(obs mat.Vector) *mat.VecDense {
	actions, _ := p.weights.Dims()
	logits := mat.NewVecDense(actions, nil)
	logits.MulVec(p.weights, obs)
	logits.AddVec(logits, p.bias)
	return logits
}

// Probabilities returns the probability of selecting each action in a
// state
func (p *Policy) Probabilities(obs mat.Vector) *mat.VecDense {
	return matutils.Softmax(p.Logits(obs))
}

// Value returns the estimated value of a state
func (p *Policy) Value(obs mat.Vector) float64 {
	return mat.Dot(p.value, obs) + p.valueBias
}

// Greedy returns the most probable action in a state. Ties are broken
// by the lowest action index.
func (p *Policy) Greedy(obs mat.Vector) int {
	return matutils.MaxVec(p.Logits(obs))
}

// Sample samples an action in a state
func (p *Policy) Sample(obs mat.Vector, src rand.Source) int {
	probs := p.Probabilities(obs)
	dist := distuv.NewCategorical(probs.RawVector().Data, src)
	return int(dist.Rand())
}

// Clone returns a deep copy of the Policy
func (p *Policy) Clone() *Policy {
	return &Policy{
		weights:   mat.DenseCopyOf(p.weights),
		bias:      mat.VecDenseCopyOf(p.bias),
		value:     mat.VecDenseCopyOf(p.value),
		valueBias: p.valueBias,
	}
}

// gradient accumulates the policy gradient and value gradient over a
// batch of timesteps
type gradient struct {
	weights   *mat.Dense
	bias      *mat.VecDense
	value     *mat.VecDense
	valueBias float64

	// Sum of squared feature norms, used to normalize step sizes
	sqNorm float64

	policyLoss float64
	vfLoss     float64
	entropy    float64
	n          int
}

func newGradient(features, actions int) *gradient {
	return &gradient{
		weights: mat.NewDense(actions, features, nil),
		bias:    mat.NewVecDense(actions, nil),
		value:   mat.NewVecDense(features, nil),
	}
}

// accumulate adds the gradient of the objective
//
//	adv * log π(a|s) + β H(π(⋅|s)) - ½ (ret - v(s))²
//
// for a single timestep
func (g *gradient) accumulate(p *Policy, obs mat.Vector, action int, adv,
	ret, entropyCoeff float64) {
	logits := p.Logits(obs)
	raw := logits.RawVector().Data
	norm := floatutils.LogSumExp(raw)

	// Entropy of the policy in the state
	entropy := 0.0
	logProbs := make([]float64, len(raw))
	for i := range raw {
		logProbs[i] = raw[i] - norm
		entropy -= math.Exp(logProbs[i]) * logProbs[i]
	}

	// Gradient with respect to the logits
	grad := mat.NewVecDense(len(raw), nil)
	for i := range raw {
		prob := math.Exp(logProbs[i])
		indicator := 0.0
		if i == action {
			indicator = 1
		}
		dEntropy := -prob * (logProbs[i] + entropy)
		grad.SetVec(i, adv*(indicator-prob)+entropyCoeff*dEntropy)
	}
	g.weights.RankOne(g.weights, 1, grad, obs)
	g.bias.AddVec(g.bias, grad)

	// Value gradient
	tdErr := ret - p.Value(obs)
	g.value.AddScaledVec(g.value, tdErr, obs)
	g.valueBias += tdErr

	g.sqNorm += mat.Dot(obs, obs) + 1
	g.policyLoss -= adv * logProbs[action]
	g.vfLoss += 0.5 * tdErr * tdErr
	g.entropy += entropy
	g.n++
}

// add adds other to g
func (g *gradient) add(other *gradient) {
	g.weights.Add(g.weights, other.weights)
	g.bias.AddVec(g.bias, other.bias)
	g.value.AddVec(g.value, other.value)
	g.valueBias += other.valueBias
	g.sqNorm += other.sqNorm
	g.policyLoss += other.policyLoss
	g.vfLoss += other.vfLoss
	g.entropy += other.entropy
	g.n += other.n
}

// apply takes a gradient ascent step on p along the mean gradient. The
// step size is lr divided by the mean squared norm of the features
// seen, so it does not grow with the number of features.
func (g *gradient) apply(p *Policy, lr float64) {
	if g.n == 0 {
		return
	}
	step := lr / g.sqNorm

	p.weights.Add(p.weights, scaled(g.weights, step))
	p.bias.AddScaledVec(p.bias, step, g.bias)
	p.value.AddScaledVec(p.value, step, g.value)
	p.valueBias += step * g.valueBias
}

func scaled(m *mat.Dense, s float64) *mat.Dense {
	var out mat.Dense
	out.Scale(s, m)
	return &out
}

// means returns the mean policy loss, value loss, and entropy
func (g *gradient) means() (policyLoss, vfLoss, entropy float64) {
	if g.n == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	n := float64(g.n)
	return g.policyLoss / n, g.vfLoss / n, g.entropy / n
}
