// Package experiment implements training runs, which train an agent
// and checkpoint it after every iteration, and evaluation runs, which
// restore an agent from a checkpoint and score one greedy episode.
package experiment

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/samuelfneumann/rlrunner/agent"
	"github.com/samuelfneumann/rlrunner/config"
	"github.com/samuelfneumann/rlrunner/environment"
	"github.com/samuelfneumann/rlrunner/environment/adapter"
	"github.com/samuelfneumann/rlrunner/experiment/checkpointer"
)

// ErrCheckpointWrite is returned when a training iteration could not
// be checkpointed
var ErrCheckpointWrite = errors.New("could not write checkpoint")

// Deps constructs the collaborators of an experiment
type Deps struct {
	NewAgent func(c config.Config, envs agent.EnvFactory,
		logger *slog.Logger) (agent.Agent, error)

	// NewStore creates the Store training checkpoints are saved to
	NewStore func(kind, root string) (checkpointer.Store, error)

	// OpenStore opens the Store an evaluation restores from
	OpenStore func(h checkpointer.Handle) (checkpointer.Store, error)

	NewEnv func(id environment.ID, seed uint64, p adapter.Preprocessing,
		opts ...adapter.Option) (agent.Env, error)
}

// DefaultDeps returns the Deps which use the agent and environment
// registries and the checkpoint backends of package checkpointer
func DefaultDeps() Deps {
	return Deps{
		NewAgent:  agent.New,
		NewStore:  checkpointer.New,
		OpenStore: checkpointer.Open,
		NewEnv: func(id environment.ID, seed uint64, p adapter.Preprocessing,
			opts ...adapter.Option) (agent.Env, error) {
			a, err := adapter.New(id, seed, p, opts...)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	}
}

// withDefaults fills the unset fields of d with those of DefaultDeps
func (d Deps) withDefaults() Deps {
	def := DefaultDeps()
	if d.NewAgent == nil {
		d.NewAgent = def.NewAgent
	}
	if d.NewStore == nil {
		d.NewStore = def.NewStore
	}
	if d.OpenStore == nil {
		d.OpenStore = def.OpenStore
	}
	if d.NewEnv == nil {
		d.NewEnv = def.NewEnv
	}
	return d
}

// Preprocessing returns the observation preprocessing described by c
func Preprocessing(c config.Config) adapter.Preprocessing {
	return adapter.Preprocessing{
		FrameSkip:  c.FrameSkip,
		Dim:        c.Dim,
		FrameStack: c.FrameStack,
	}
}

// newAgent constructs the agent described by c, whose environments are
// created with d.NewEnv
func newAgent(c config.Config, d Deps, logger *slog.Logger) (agent.Agent,
	error) {
	id := environment.ID(c.Env)
	p := Preprocessing(c)
	envs := func(seed uint64) (agent.Env, error) {
		return d.NewEnv(id, seed, p, adapter.WithLogger(logger))
	}

	a, err := d.NewAgent(c, envs, logger)
	if err != nil {
		return nil, fmt.Errorf("newAgent: %w", err)
	}
	return a, nil
}

// joinClose closes every closer and joins their errors
func joinClose(name string, closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close %v: %w", name, err)
	}
	return nil
}
