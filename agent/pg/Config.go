// Package pg implements a vanilla policy gradient agent with a linear
// softmax policy and a linear state value baseline. Advantages are
// estimated with GAE(λ).
package pg

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/samuelfneumann/rlrunner/agent"
	"github.com/samuelfneumann/rlrunner/config"
)

// Type is the agent type the package registers
const Type agent.Type = "PG-Linear"

func init() {
	agent.Register(Type, func(c config.Config, envs agent.EnvFactory,
		logger *slog.Logger) (agent.Agent, error) {
		return New(NewConfig(c), envs, logger)
	})
}

// Config represents a configuration of the PG agent
type Config struct {
	Env string

	LR           float64
	Gamma        float64
	Lambda       float64
	EntropyCoeff float64

	// Steps collected per iteration, split into fragments of
	// RolloutFragmentLength steps
	TrainBatchSize        int
	RolloutFragmentLength int
	NumWorkers            int

	Explore bool

	EvaluationInterval int
	EvaluationDuration int
	MaxEvalSteps       int

	NumGPUs int
	Seed    uint64
}

// NewConfig returns the PG configuration described by a run
// configuration
func NewConfig(c config.Config) Config {
	return Config{
		Env:                   c.Env,
		LR:                    c.LR,
		Gamma:                 c.Gamma,
		Lambda:                c.Lambda,
		EntropyCoeff:          c.EntropyCoeff,
		TrainBatchSize:        c.TrainBatchSize,
		RolloutFragmentLength: c.RolloutFragmentLength,
		NumWorkers:            c.NumWorkers,
		Explore:               c.Explore,
		EvaluationInterval:    c.EvaluationInterval,
		EvaluationDuration:    c.EvaluationDuration,
		MaxEvalSteps:          c.MaxEvalSteps,
		NumGPUs:               c.NumGPUs,
		Seed:                  c.Seed,
	}
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	var errs []error
	if c.LR <= 0 {
		errs = append(errs, fmt.Errorf("learning rate %v must be positive",
			c.LR))
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		errs = append(errs, fmt.Errorf("gamma %v ∉ [0, 1]", c.Gamma))
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		errs = append(errs, fmt.Errorf("lambda %v ∉ [0, 1]", c.Lambda))
	}
	if c.EntropyCoeff < 0 {
		errs = append(errs, fmt.Errorf("entropy coefficient %v < 0",
			c.EntropyCoeff))
	}
	if c.TrainBatchSize <= 0 || c.RolloutFragmentLength <= 0 {
		errs = append(errs, fmt.Errorf("batch size %v and fragment length "+
			"%v must be positive", c.TrainBatchSize, c.RolloutFragmentLength))
	}
	if c.NumWorkers < 0 {
		errs = append(errs, fmt.Errorf("number of workers %v < 0",
			c.NumWorkers))
	}
	if c.EvaluationInterval > 0 && c.EvaluationDuration <= 0 {
		errs = append(errs, fmt.Errorf("evaluation duration %v must be "+
			"positive", c.EvaluationDuration))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("validate: %w: %w", config.ErrInvalid, err)
	}
	return nil
}

// Fragments returns the number of rollout fragments collected per
// iteration
func (c Config) Fragments() int {
	return (c.TrainBatchSize + c.RolloutFragmentLength - 1) /
		c.RolloutFragmentLength
}
