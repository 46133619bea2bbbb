package pg

import (
	"context"
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/rlrunner/agent"
	"github.com/samuelfneumann/rlrunner/buffer/gae"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
)

// sampler collects fragments of experience in its own environment.
// Episodes continue across fragments.
type sampler struct {
	env agent.Env
	src rand.Source
	buf *gae.Buffer

	obs      mat.Vector // nil when the episode must be reset
	epReturn float64
	epLen    int
}

func newSampler(env agent.Env, seed uint64, fragment int, lambda,
	gamma float64) *sampler {
	return &sampler{
		env: env,
		src: rand.NewSource(seed),
		buf: gae.New(env.ObservationSpec().Len(), 1, fragment, lambda, gamma),
	}
}

// rollout is the result of sampling fragments with a fixed policy
type rollout struct {
	grad     *gradient
	returns  []float64
	lengths  []float64
	timestep int
}

// sample collects n fragments of experience with policy p and
// accumulates their gradient
func (s *sampler) sample(ctx context.Context, p *Policy, n int,
	entropyCoeff float64) (rollout, error) {
	features, actions := p.Dims()
	out := rollout{grad: newGradient(features, actions)}

	for i := 0; i < n; i++ {
		if err := s.fragment(ctx, p, &out); err != nil {
			return rollout{}, err
		}

		batch, err := s.buf.Get()
		if err != nil {
			return rollout{}, fmt.Errorf("sample: %w", err)
		}
		for t := range batch.Returns {
			out.grad.accumulate(p, batch.Observations.RowView(t),
				int(batch.Actions[t]), batch.Advantages[t], batch.Returns[t],
				entropyCoeff)
		}
	}
	return out, nil
}

// fragment fills the buffer with experience
func (s *sampler) fragment(ctx context.Context, p *Policy, out *rollout) error {
	for !s.buf.Full() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fragment: %w", err)
		}

		if s.obs == nil {
			obs, err := s.env.Reset()
			if err != nil {
				return fmt.Errorf("fragment: %w", err)
			}
			s.obs, s.epReturn, s.epLen = obs, 0, 0
		}

		action := p.Sample(s.obs, s.src)
		next, reward, done, info, err := s.env.Step(
			mat.NewVecDense(1, []float64{float64(action)}))
		if err != nil {
			return fmt.Errorf("fragment: %w", err)
		}

		if err := s.buf.Store(s.obs, []float64{float64(action)}, reward,
			p.Value(s.obs)); err != nil {
			return fmt.Errorf("fragment: %w", err)
		}
		s.epReturn += reward
		s.epLen++
		out.timestep++

		if done {
			// Bootstrap episodes which were cut off
			lastVal := 0.0
			if info.EndType == ts.Timeout {
				lastVal = p.Value(next)
			}
			s.buf.FinishPath(lastVal)

			out.returns = append(out.returns, s.epReturn)
			out.lengths = append(out.lengths, float64(s.epLen))
			s.obs = nil
		} else {
			s.obs = next
		}
	}

	if s.obs != nil {
		s.buf.FinishPath(p.Value(s.obs))
	}
	return nil
}

// close closes the environment of the sampler
func (s *sampler) close() error {
	return s.env.Close()
}
