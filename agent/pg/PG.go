package pg

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/samuelfneumann/rlrunner/agent"
	"github.com/samuelfneumann/rlrunner/utils/floatutils"
	"gonum.org/v1/gonum/mat"
)

// srcOffset separates the seeds of action sampling from the seeds of
// the environments
const srcOffset uint64 = 1 << 32

// PG implements a vanilla policy gradient agent.
//
// Each iteration collects Config.Fragments() fragments of experience
// with the current policy. With NumWorkers == 0, fragments are collected
// in a local environment. Otherwise, fragments are split round-robin
// between NumWorkers samplers which run concurrently, each in its own
// environment. Gradients are summed in worker order, so training is
// deterministic given the seed.
type PG struct {
	config Config
	logger *slog.Logger
	envs   agent.EnvFactory
	sig    agent.Signature

	policy *Policy
	src    rand.Source // action sampling in SelectAction

	local   *sampler
	workers []*sampler // created on the first iteration
	evalEnv agent.Env  // created on the first evaluation

	iteration int
	timesteps int
}

// New creates a new PG agent. The local environment is created
// immediately with seed c.Seed, worker i gets seed c.Seed+i+1.
func New(c Config, envs agent.EnvFactory, logger *slog.Logger) (*PG, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if c.NumGPUs > 0 {
		logger.Warn("GPUs are not supported, training on the CPU",
			"num_gpus", c.NumGPUs)
	}

	env, err := envs(c.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create local environment: %w",
			err)
	}
	actions, err := env.ActionSpec().NumActions()
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("new: PG requires discrete actions: %w", err)
	}
	features := env.ObservationSpec().Len()

	return &PG{
		config: c,
		logger: logger,
		envs:   envs,
		sig: agent.Signature{
			Type:           Type,
			Env:            c.Env,
			ObservationLen: features,
			NumActions:     actions,
		},
		policy: NewPolicy(features, actions),
		src:    rand.NewSource(c.Seed + srcOffset),
		local: newSampler(env, c.Seed+srcOffset+1, c.RolloutFragmentLength,
			c.Lambda, c.Gamma),
	}, nil
}

// Signature returns the Signature of the agent
func (p *PG) Signature() agent.Signature {
	return p.sig
}

// Policy returns the policy of the agent
func (p *PG) Policy() *Policy {
	return p.policy
}

// samplers returns the samplers used for training, creating the
// worker environments if needed
func (p *PG) samplers() ([]*sampler, error) {
	if p.config.NumWorkers == 0 {
		return []*sampler{p.local}, nil
	}

	for i := len(p.workers); i < p.config.NumWorkers; i++ {
		seed := p.config.Seed + uint64(i) + 1
		env, err := p.envs(seed)
		if err != nil {
			return nil, fmt.Errorf("samplers: could not create environment "+
				"for worker %v: %w", i, err)
		}
		p.workers = append(p.workers, newSampler(env, seed+srcOffset+1,
			p.config.RolloutFragmentLength, p.config.Lambda, p.config.Gamma))
		p.logger.Debug("created worker environment", "worker", i,
			"seed", seed)
	}
	return p.workers, nil
}

// TrainIteration collects a batch of experience and takes one gradient
// step on the policy and value function
func (p *PG) TrainIteration(ctx context.Context) (agent.Report, error) {
	start := time.Now()
	samplers, err := p.samplers()
	if err != nil {
		return agent.Report{}, fmt.Errorf("trainIteration: %w", err)
	}

	counts := make([]int, len(samplers))
	for i := 0; i < p.config.Fragments(); i++ {
		counts[i%len(samplers)]++
	}

	rollouts := make([]rollout, len(samplers))
	if p.config.NumWorkers == 0 {
		rollouts[0], err = p.local.sample(ctx, p.policy, counts[0],
			p.config.EntropyCoeff)
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i, s := range samplers {
			if counts[i] == 0 {
				continue
			}
			g.Go(func() error {
				r, err := s.sample(gctx, p.policy, counts[i],
					p.config.EntropyCoeff)
				rollouts[i] = r
				return err
			})
		}
		err = g.Wait()
	}
	if err != nil {
		return agent.Report{}, fmt.Errorf("trainIteration: %w", err)
	}

	features, actions := p.policy.Dims()
	grad := newGradient(features, actions)
	var returns, lengths []float64
	steps := 0
	for _, r := range rollouts {
		if r.grad == nil {
			continue
		}
		grad.add(r.grad)
		returns = append(returns, r.returns...)
		lengths = append(lengths, r.lengths...)
		steps += r.timestep
	}
	grad.apply(p.policy, p.config.LR)

	p.iteration++
	p.timesteps += steps

	rewards := floatutils.Summarize(returns)
	policyLoss, vfLoss, entropy := grad.means()
	report := agent.Report{
		Iteration:         p.iteration,
		TimestepsTotal:    p.timesteps,
		TimestepsThisIter: steps,
		EpisodesThisIter:  len(returns),
		EpisodeRewardMean: rewards.Mean,
		EpisodeRewardMin:  rewards.Min,
		EpisodeRewardMax:  rewards.Max,
		EpisodeLenMean:    floatutils.Summarize(lengths).Mean,
		PolicyLoss:        policyLoss,
		VFLoss:            vfLoss,
		Entropy:           entropy,
		NumWorkers:        p.config.NumWorkers,
	}

	if p.config.EvaluationInterval > 0 &&
		p.iteration%p.config.EvaluationInterval == 0 {
		eval, err := p.evaluate(ctx)
		if err != nil {
			return agent.Report{}, fmt.Errorf("trainIteration: %w", err)
		}
		report.Evaluation = &eval
	}

	report.TimeThisIterS = time.Since(start).Seconds()
	p.logger.Debug("finished iteration", "iteration", p.iteration,
		"timesteps", steps, "episodes", len(returns))
	return report, nil
}

// evaluate runs greedy episodes in a separate environment
func (p *PG) evaluate(ctx context.Context) (agent.EvaluationReport, error) {
	if p.evalEnv == nil {
		seed := p.config.Seed + uint64(p.config.NumWorkers) + 1
		env, err := p.envs(seed)
		if err != nil {
			return agent.EvaluationReport{}, fmt.Errorf("evaluate: could "+
				"not create environment: %w", err)
		}
		p.evalEnv = env
	}

	returns := make([]float64, 0, p.config.EvaluationDuration)
	lengths := make([]float64, 0, p.config.EvaluationDuration)
	for i := 0; i < p.config.EvaluationDuration; i++ {
		obs, err := p.evalEnv.Reset()
		if err != nil {
			return agent.EvaluationReport{}, fmt.Errorf("evaluate: %w", err)
		}

		ret, steps := 0.0, 0
		for done := false; !done; {
			if err := ctx.Err(); err != nil {
				return agent.EvaluationReport{}, fmt.Errorf("evaluate: %w",
					err)
			}
			if p.config.MaxEvalSteps > 0 && steps >= p.config.MaxEvalSteps {
				break
			}

			action := mat.NewVecDense(1,
				[]float64{float64(p.policy.Greedy(obs))})
			var reward float64
			obs, reward, done, _, err = p.evalEnv.Step(action)
			if err != nil {
				return agent.EvaluationReport{}, fmt.Errorf("evaluate: %w",
					err)
			}
			ret += reward
			steps++
		}
		returns = append(returns, ret)
		lengths = append(lengths, float64(steps))
	}

	return agent.EvaluationReport{
		Episodes:          len(returns),
		EpisodeRewardMean: floatutils.Summarize(returns).Mean,
		EpisodeLenMean:    floatutils.Summarize(lengths).Mean,
	}, nil
}

// SelectAction samples an action from the policy if the agent
// explores, and otherwise returns the most probable action
func (p *PG) SelectAction(obs mat.Vector) (*mat.VecDense, error) {
	if obs.Len() != p.sig.ObservationLen {
		return nil, fmt.Errorf("selectAction: observation of length %v, "+
			"expected %v", obs.Len(), p.sig.ObservationLen)
	}

	var action int
	if p.config.Explore {
		action = p.policy.Sample(obs, p.src)
	} else {
		action = p.policy.Greedy(obs)
	}
	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// GobEncode implements the gob.GobEncoder interface
func (p *PG) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	features, actions := p.policy.Dims()
	for _, v := range []interface{}{features, actions, p.policy.weights,
		p.policy.bias, p.policy.value, p.policy.valueBias, p.iteration,
		p.timesteps} {
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("gobencode: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The encoded
// policy must have the dimensions of the agent's policy.
func (p *PG) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var features, actions int
	if err := dec.Decode(&features); err != nil {
		return fmt.Errorf("gobdecode: could not decode features: %w", err)
	}
	if err := dec.Decode(&actions); err != nil {
		return fmt.Errorf("gobdecode: could not decode actions: %w", err)
	}
	if f, a := p.policy.Dims(); f != features || a != actions {
		return fmt.Errorf("gobdecode: policy with %v features and %v "+
			"actions, expected %v and %v", features, actions, f, a)
	}

	var policy Policy
	if err := dec.Decode(&policy.weights); err != nil {
		return fmt.Errorf("gobdecode: could not decode weights: %w", err)
	}
	if err := dec.Decode(&policy.bias); err != nil {
		return fmt.Errorf("gobdecode: could not decode bias: %w", err)
	}
	if err := dec.Decode(&policy.value); err != nil {
		return fmt.Errorf("gobdecode: could not decode value weights: %w",
			err)
	}
	if err := dec.Decode(&policy.valueBias); err != nil {
		return fmt.Errorf("gobdecode: could not decode value bias: %w", err)
	}

	var iteration, timesteps int
	if err := dec.Decode(&iteration); err != nil {
		return fmt.Errorf("gobdecode: could not decode iteration: %w", err)
	}
	if err := dec.Decode(&timesteps); err != nil {
		return fmt.Errorf("gobdecode: could not decode timesteps: %w", err)
	}

	bias := mat.NewVecDense(1, []float64{policy.valueBias})
	if !finite(policy.weights) || !finite(policy.bias) ||
		!finite(policy.value) || !finite(bias) {
		return fmt.Errorf("gobdecode: policy has non-finite weights")
	}

	p.policy = &policy
	p.iteration, p.timesteps = iteration, timesteps
	return nil
}

func finite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Close closes all environments of the agent
func (p *PG) Close() error {
	var errs []error
	if err := p.local.close(); err != nil {
		errs = append(errs, err)
	}
	for _, w := range p.workers {
		if err := w.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.evalEnv != nil {
		if err := p.evalEnv.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.workers, p.evalEnv = nil, nil

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
