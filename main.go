// Command rlrunner trains a reinforcement learning agent, checkpointing
// it after every iteration, or evaluates a checkpoint of a trained
// agent on one episode.
//
// Training:
//
//	rlrunner --env Breakout-v0 --n-iters 10 --n-workers 4
//
// Evaluation:
//
//	rlrunner --env Breakout-v0 --checkpoint <handle> --render
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	_ "github.com/samuelfneumann/rlrunner/agent/pg"
	"github.com/samuelfneumann/rlrunner/bootstrap"
	"github.com/samuelfneumann/rlrunner/config"
	"github.com/samuelfneumann/rlrunner/experiment"
)

// flags are the command line flags of rlrunner
type flags struct {
	configFile string
	logLevel   string
	logFormat  string

	env           string
	checkpoint    string
	iterations    int
	workers       int
	gpu           bool
	render        bool
	renderDir     string
	progress      bool
	checkpointDir string
	store         string
	seed          uint64
	lr            float64
	maxEvalSteps  int
}

// runFunc runs an experiment with a fully assembled configuration
type runFunc func(ctx context.Context, c config.Config,
	opts experiment.Options) error

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newCommand(func(ctx context.Context, c config.Config,
		opts experiment.Options) error {
		_, err := experiment.Run(ctx, c, opts, experiment.DefaultDeps())
		return err
	})
	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("rlrunner failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// newCommand returns the root command, which runs experiments with run
func newCommand(run runFunc) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "rlrunner",
		Short: "Train a reinforcement learning agent or evaluate a checkpoint",
		Long: "Train a reinforcement learning agent, saving a checkpoint " +
			"after every iteration.\nWith --checkpoint, evaluate the " +
			"checkpoint on one episode instead.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap.Initialize(bootstrap.Options{
				LogLevel:  f.logLevel,
				LogFormat: f.logFormat,
			})
			if err != nil {
				return err
			}
			defer rt.Shutdown()

			c, err := assemble(cmd, f, os.LookupEnv)
			if err != nil {
				return err
			}
			rt.Logger.Debug("assembled configuration", "config", c.AsMap())

			return run(cmd.Context(), c, experiment.Options{
				Checkpoint: f.checkpoint,
				Iterations: f.iterations,
				Render:     f.render,
				RenderDir:  f.renderDir,
				Progress:   f.progress,
				Out:        cmd.OutOrStdout(),
				Logger:     rt.Logger,
			})
		},
	}

	def := config.Default()
	fs := cmd.Flags()
	fs.StringVar(&f.env, "env", def.Env, "environment name")
	fs.StringVar(&f.checkpoint, "checkpoint", "",
		"checkpoint to evaluate, training runs when empty")
	fs.IntVar(&f.iterations, "n-iters", 10, "training iterations")
	fs.IntVar(&f.workers, "n-workers", def.NumWorkers,
		"number of sampling workers")
	fs.BoolVar(&f.gpu, "gpu", false, "use a GPU")
	fs.BoolVar(&f.render, "render", false, "render the evaluation episode")

	fs.StringVar(&f.configFile, "config", "", "YAML configuration file")
	fs.StringVar(&f.checkpointDir, "checkpoint-dir", def.CheckpointDir,
		"directory checkpoints are saved in")
	fs.StringVar(&f.store, "store", def.CheckpointBackend,
		"checkpoint backend, file or sqlite")
	fs.Uint64Var(&f.seed, "seed", def.Seed, "random seed")
	fs.Float64Var(&f.lr, "lr", def.LR, "learning rate")
	fs.StringVar(&f.renderDir, "render-dir", "",
		"render to PNG files in this directory instead of the terminal")
	fs.IntVar(&f.maxEvalSteps, "max-eval-steps", def.MaxEvalSteps,
		"maximum steps of the evaluation episode, 0 for no limit")
	fs.BoolVar(&f.progress, "progress", false,
		"display a progress bar while training")
	fs.StringVar(&f.logLevel, "log-level", "info",
		"log level: debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", bootstrap.TextFormat,
		"log format: text or json")

	return cmd
}

// assemble builds the configuration of a run. From lowest to highest
// precedence, options come from the defaults, the YAML configuration
// file, RLRUNNER_* environment variables, and flags set on the command
// line.
func assemble(cmd *cobra.Command, f flags,
	lookup config.LookupFunc) (config.Config, error) {
	c := config.Default()

	var err error
	if f.configFile != "" {
		if c, err = config.Load(f.configFile, c); err != nil {
			return config.Config{}, fmt.Errorf("assemble: %w", err)
		}
	}
	if c, err = config.ApplyEnv(c, lookup); err != nil {
		return config.Config{}, fmt.Errorf("assemble: %w", err)
	}

	set := cmd.Flags().Changed
	if set("env") {
		c.Env = f.env
	}
	if set("n-workers") {
		c.NumWorkers = f.workers
	}
	if set("gpu") {
		c.NumGPUs = 0
		if f.gpu {
			c.NumGPUs = 1
		}
	}
	if set("checkpoint-dir") {
		c.CheckpointDir = f.checkpointDir
	}
	if set("store") {
		c.CheckpointBackend = f.store
	}
	if set("seed") {
		c.Seed = f.seed
	}
	if set("lr") {
		c.LR = f.lr
	}
	if set("max-eval-steps") {
		c.MaxEvalSteps = f.maxEvalSteps
	}

	if err := c.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("assemble: %w", err)
	}
	return c, nil
}
