package experiment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/samuelfneumann/rlrunner/agent"
	"github.com/samuelfneumann/rlrunner/config"
	"github.com/samuelfneumann/rlrunner/experiment/checkpointer"
	"github.com/samuelfneumann/rlrunner/utils/progressbar"
)

// TrainerState is the state of a Trainer
type TrainerState int

const (
	Ready TrainerState = iota
	Iterating
	Done
)

func (s TrainerState) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Iterating:
		return "Iterating"
	default:
		return "Done"
	}
}

// Trainer trains a freshly constructed agent for a fixed number of
// iterations. After every iteration the training report is written and
// the agent is checkpointed. A Trainer never restores an agent.
type Trainer struct {
	agent      agent.Agent
	store      checkpointer.Store
	runID      string
	iterations int

	out      io.Writer
	progress bool
	logger   *slog.Logger
	state    TrainerState
}

// TrainerOption configures a Trainer
type TrainerOption func(*Trainer)

// WithOutput writes reports and checkpoint handles to w instead of
// stdout
func WithOutput(w io.Writer) TrainerOption {
	return func(t *Trainer) {
		t.out = w
	}
}

// WithProgress displays a progress bar over the iterations on stderr
func WithProgress() TrainerOption {
	return func(t *Trainer) {
		t.progress = true
	}
}

// WithTrainerLogger sets the logger of the Trainer
func WithTrainerLogger(l *slog.Logger) TrainerOption {
	return func(t *Trainer) {
		t.logger = l
	}
}

// NewTrainer constructs the agent described by c and the Store its
// checkpoints are saved to. The Trainer starts in the Ready state.
func NewTrainer(c config.Config, iterations int, d Deps,
	opts ...TrainerOption) (*Trainer, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newTrainer: %w", err)
	}
	if iterations < 1 {
		return nil, fmt.Errorf("newTrainer: %w: iterations %v < 1",
			config.ErrInvalid, iterations)
	}
	d = d.withDefaults()

	t := &Trainer{
		runID:      uuid.NewString(),
		iterations: iterations,
		out:        os.Stdout,
		logger:     slog.Default(),
		state:      Ready,
	}
	for _, opt := range opts {
		opt(t)
	}

	store, err := d.NewStore(c.CheckpointBackend, c.CheckpointDir)
	if err != nil {
		return nil, fmt.Errorf("newTrainer: could not create checkpoint "+
			"store: %w", err)
	}
	a, err := newAgent(c, d, t.logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("newTrainer: %w", err)
	}

	t.store, t.agent = store, a
	t.logger.Info("created trainer", "run_id", t.runID, "agent", c.Agent,
		"env", c.Env, "iterations", iterations)
	return t, nil
}

// State returns the state of the Trainer
func (t *Trainer) State() TrainerState {
	return t.state
}

// RunID returns the identifier of the training run, which names its
// checkpoints
func (t *Trainer) RunID() string {
	return t.runID
}

// Run performs all training iterations and returns the handles of the
// checkpoints saved, in order. Any error aborts the run, and an
// iteration only starts once the checkpoint of the previous iteration
// has been saved. A failed save returns an error wrapping
// ErrCheckpointWrite.
func (t *Trainer) Run(ctx context.Context) ([]checkpointer.Handle, error) {
	if t.state != Ready {
		return nil, fmt.Errorf("run: trainer is %v, expected %v", t.state,
			Ready)
	}
	t.state = Iterating
	defer func() { t.state = Done }()

	var bar *progressbar.ManualProgressBar
	if t.progress && t.iterations > 0 {
		bar = progressbar.NewManualProgressBar(os.Stderr, "Training", 40,
			t.iterations)
		bar.Display()
		defer bar.Finish()
	}

	handles := make([]checkpointer.Handle, 0, t.iterations)
	for i := 1; i <= t.iterations; i++ {
		report, err := t.agent.TrainIteration(ctx)
		if err != nil {
			return handles, fmt.Errorf("run: iteration %v: %w", i, err)
		}
		if err := report.Write(t.out); err != nil {
			return handles, fmt.Errorf("run: iteration %v: %w", i, err)
		}

		h, err := agent.Save(ctx, t.store, t.agent, t.runID, i)
		if err != nil {
			return handles, fmt.Errorf("run: iteration %v: %w: %w", i,
				ErrCheckpointWrite, err)
		}
		handles = append(handles, h)
		fmt.Fprintf(t.out, "Checkpoint saved in %v\n", h)
		t.logger.Info("saved checkpoint", "iteration", i, "handle", h)

		if bar != nil {
			bar.Increment()
			bar.Display()
		}
	}
	return handles, nil
}

// Close closes the agent and the checkpoint store
func (t *Trainer) Close() error {
	return joinClose("trainer", t.agent, t.store)
}
