package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/samuelfneumann/rlrunner/agent"
	"github.com/samuelfneumann/rlrunner/config"
	"github.com/samuelfneumann/rlrunner/environment"
	"github.com/samuelfneumann/rlrunner/environment/adapter"
	"github.com/samuelfneumann/rlrunner/environment/render"
	"github.com/samuelfneumann/rlrunner/experiment/checkpointer"
)

// EvaluatorState is the state of an Evaluator
type EvaluatorState int

const (
	Init EvaluatorState = iota
	Restoring
	Running
	Terminated
)

func (s EvaluatorState) String() string {
	switch s {
	case Init:
		return "Init"
	case Restoring:
		return "Restoring"
	case Running:
		return "Running"
	default:
		return "Terminated"
	}
}

// Result is the outcome of an evaluation episode
type Result struct {
	Score float64
	Steps int

	// Truncated is true if the episode was cut off by MaxEvalSteps
	Truncated bool
}

// Evaluator restores an agent from a checkpoint and runs one episode
// with its greedy policy.
type Evaluator struct {
	config   config.Config
	handle   checkpointer.Handle
	deps     Deps
	renderer render.Renderer

	out    io.Writer
	logger *slog.Logger
	state  EvaluatorState
}

// EvaluatorOption configures an Evaluator
type EvaluatorOption func(*Evaluator)

// WithRenderer renders every frame of the evaluation episode with r
func WithRenderer(r render.Renderer) EvaluatorOption {
	return func(e *Evaluator) {
		e.renderer = r
	}
}

// WithEvalOutput writes progress messages and the score to w instead
// of stdout
func WithEvalOutput(w io.Writer) EvaluatorOption {
	return func(e *Evaluator) {
		e.out = w
	}
}

// WithEvaluatorLogger sets the logger of the Evaluator
func WithEvaluatorLogger(l *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// NewEvaluator returns an Evaluator of the checkpoint h of an agent
// trained with configuration train. The agent is evaluated with
// config.DeriveEval(train).
func NewEvaluator(train config.Config, h checkpointer.Handle, d Deps,
	opts ...EvaluatorOption) (*Evaluator, error) {
	c := config.DeriveEval(train)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newEvaluator: %w", err)
	}
	if h == "" {
		return nil, fmt.Errorf("newEvaluator: %w: empty checkpoint handle",
			config.ErrInvalid)
	}

	e := &Evaluator{
		config: c,
		handle: h,
		deps:   d.withDefaults(),
		out:    os.Stdout,
		logger: slog.Default(),
		state:  Init,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// State returns the state of the Evaluator
func (e *Evaluator) State() EvaluatorState {
	return e.state
}

// Run runs the evaluation. The agent and environment are constructed,
// the agent is restored, and then one episode is run until the
// environment ends it, or until MaxEvalSteps steps if MaxEvalSteps > 0.
// If restoring fails, no environmental step is taken. The environment
// is closed exactly once, however Run returns.
func (e *Evaluator) Run(ctx context.Context) (result Result, err error) {
	if e.state != Init {
		return Result{}, fmt.Errorf("run: evaluator is %v, expected %v",
			e.state, Init)
	}
	defer func() { e.state = Terminated }()

	id := environment.ID(e.config.Env)
	a, err := newAgent(e.config, e.deps, e.logger)
	if err != nil {
		e.closeRenderer()
		return Result{}, fmt.Errorf("run: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("run: could not close agent: %w",
				closeErr))
		}
	}()

	opts := []adapter.Option{adapter.WithContext(ctx),
		adapter.WithLogger(e.logger)}
	if e.renderer != nil {
		opts = append(opts, adapter.WithRenderer(e.renderer))
	}
	env, err := e.deps.NewEnv(id, e.config.Seed, Preprocessing(e.config),
		opts...)
	if err != nil {
		e.closeRenderer()
		return Result{}, fmt.Errorf("run: could not create environment: %w",
			err)
	}
	defer func() {
		if closeErr := env.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("run: could not close "+
				"environment: %w", closeErr))
		}
	}()

	e.state = Restoring
	if err := e.restore(ctx, a); err != nil {
		return Result{}, fmt.Errorf("run: %w", err)
	}
	fmt.Fprintf(e.out, "Checkpoint loaded from %v\n", e.handle)

	e.state = Running
	obs, err := env.Reset()
	if err != nil {
		return Result{}, fmt.Errorf("run: %w", err)
	}
	fmt.Fprintf(e.out, "Created env for %v\n", id)

	for done := false; !done; {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("run: %w", err)
		}
		if e.config.MaxEvalSteps > 0 && result.Steps >= e.config.MaxEvalSteps {
			result.Truncated = true
			e.logger.Warn("evaluation episode truncated", "env", id,
				"max_eval_steps", e.config.MaxEvalSteps)
			break
		}

		action, err := a.SelectAction(obs)
		if err != nil {
			return result, fmt.Errorf("run: %w", err)
		}

		var reward float64
		obs, reward, done, _, err = env.Step(action)
		if err != nil {
			return result, fmt.Errorf("run: %w", err)
		}
		result.Score += reward
		result.Steps++
	}

	fmt.Fprintf(e.out, "Evaluation score: %v\n", result.Score)
	e.logger.Info("evaluation finished", "env", id, "score", result.Score,
		"steps", result.Steps, "truncated", result.Truncated)
	return result, nil
}

// closeRenderer closes a renderer not yet owned by an environment
func (e *Evaluator) closeRenderer() {
	if e.renderer != nil {
		e.renderer.Close()
	}
}

// restore restores a from the Evaluator's checkpoint
func (e *Evaluator) restore(ctx context.Context, a agent.Agent) error {
	store, err := e.deps.OpenStore(e.handle)
	if err != nil {
		return fmt.Errorf("restore: could not open checkpoint store: %w", err)
	}
	defer store.Close()

	if err := agent.Restore(ctx, store, a, e.handle); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	e.logger.Info("restored checkpoint", "handle", e.handle)
	return nil
}
