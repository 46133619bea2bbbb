package experiment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/samuelfneumann/rlrunner/config"
	"github.com/samuelfneumann/rlrunner/environment/render"
	"github.com/samuelfneumann/rlrunner/experiment/checkpointer"
)

// Terminal rendering defaults
const (
	RenderColumns = 80
	RenderFPS     = 30
	PNGScale      = 4
)

// Options determines what Run does. A non-empty Checkpoint selects an
// evaluation of the checkpoint, otherwise an agent is trained for
// Iterations iterations.
type Options struct {
	Checkpoint string
	Iterations int

	// Render renders the evaluation episode to the terminal, or to PNG
	// files in RenderDir if RenderDir is set
	Render    bool
	RenderDir string

	// Progress displays a progress bar over the training iterations
	Progress bool

	// Out receives reports, checkpoint handles, and scores. It defaults
	// to stdout.
	Out    io.Writer
	Logger *slog.Logger
}

// Outcome is the outcome of Run. Handles is set by training runs and
// Result by evaluation runs.
type Outcome struct {
	Handles []checkpointer.Handle
	Result  *Result
}

// Run runs exactly one of a training run or an evaluation run
func Run(ctx context.Context, c config.Config, opts Options,
	d Deps) (Outcome, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if err := opts.validate(); err != nil {
		return Outcome{}, fmt.Errorf("run: %w", err)
	}

	if opts.Checkpoint != "" {
		result, err := evaluate(ctx, c, opts, d)
		if err != nil {
			return Outcome{}, fmt.Errorf("run: %w", err)
		}
		return Outcome{Result: &result}, nil
	}

	handles, err := train(ctx, c, opts, d)
	if err != nil {
		return Outcome{Handles: handles}, fmt.Errorf("run: %w", err)
	}
	return Outcome{Handles: handles}, nil
}

// validate rejects options which only apply to the other mode
func (o Options) validate() error {
	if o.Checkpoint != "" {
		return nil
	}
	if o.Render || o.RenderDir != "" {
		return fmt.Errorf("%w: rendering requires a checkpoint to evaluate",
			config.ErrInvalid)
	}
	if o.Iterations < 1 {
		return fmt.Errorf("%w: iterations %v < 1", config.ErrInvalid,
			o.Iterations)
	}
	return nil
}

func train(ctx context.Context, c config.Config, opts Options,
	d Deps) ([]checkpointer.Handle, error) {
	fmt.Fprintln(opts.Out, "Start training.")

	trainerOpts := []TrainerOption{WithOutput(opts.Out),
		WithTrainerLogger(opts.Logger)}
	if opts.Progress {
		trainerOpts = append(trainerOpts, WithProgress())
	}
	t, err := NewTrainer(c, opts.Iterations, d, trainerOpts...)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	handles, err := t.Run(ctx)
	if closeErr := t.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return handles, fmt.Errorf("train: %w", err)
	}
	return handles, nil
}

func evaluate(ctx context.Context, c config.Config, opts Options,
	d Deps) (Result, error) {
	fmt.Fprintln(opts.Out, "Start evaluation.")

	e, err := NewEvaluator(c, checkpointer.Handle(opts.Checkpoint), d,
		WithEvalOutput(opts.Out), WithEvaluatorLogger(opts.Logger))
	if err != nil {
		return Result{}, fmt.Errorf("evaluate: %w", err)
	}
	if opts.Render {
		r, err := newRenderer(opts)
		if err != nil {
			return Result{}, fmt.Errorf("evaluate: %w", err)
		}
		WithRenderer(r)(e)
	}

	result, err := e.Run(ctx)
	if err != nil {
		return result, fmt.Errorf("evaluate: %w", err)
	}
	return result, nil
}

func newRenderer(opts Options) (render.Renderer, error) {
	if opts.RenderDir != "" {
		png, err := render.NewPNG(opts.RenderDir, PNGScale)
		if err != nil {
			return nil, fmt.Errorf("newRenderer: %w", err)
		}
		return png, nil
	}
	return render.NewTerminal(os.Stderr, RenderColumns, RenderFPS), nil
}
