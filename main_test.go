package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/samuelfneumann/rlrunner/config"
	"github.com/samuelfneumann/rlrunner/experiment"
)

// execute runs the command with args and returns what it would run
func execute(t *testing.T, args ...string) (config.Config,
	experiment.Options, error) {
	t.Helper()
	defer slog.SetDefault(slog.Default())

	var (
		got  config.Config
		opts experiment.Options
	)
	cmd := newCommand(func(_ context.Context, c config.Config,
		o experiment.Options) error {
		got, opts = c, o
		return nil
	})
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return got, opts, err
}

func TestDefaults(t *testing.T) {
	c, opts, err := execute(t)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(config.Default(), c); diff != "" {
		t.Errorf("config (-want +got):\n%v", diff)
	}
	if opts.Iterations != 10 || opts.Checkpoint != "" || opts.Render {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "lr: 0.5\nseed: 2\nnum_workers: 2\nenv: CartPole-v1\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RLRUNNER_SEED", "5")
	t.Setenv("RLRUNNER_NUM_WORKERS", "3")

	c, _, err := execute(t, "--config", path, "--n-workers", "1", "--gpu")
	if err != nil {
		t.Fatal(err)
	}

	want := config.Default()
	want.Env = "CartPole-v1"
	want.LR = 0.5
	want.Seed = 5
	want.NumWorkers = 1
	want.NumGPUs = 1
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config (-want +got):\n%v", diff)
	}
}

func TestEvaluationOptions(t *testing.T) {
	_, opts, err := execute(t, "--checkpoint", "ckpt/checkpoint-1",
		"--render", "--render-dir", "frames", "--progress")
	if err != nil {
		t.Fatal(err)
	}
	if opts.Checkpoint != "ckpt/checkpoint-1" || !opts.Render ||
		opts.RenderDir != "frames" || !opts.Progress {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestInvalid(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	for _, args := range [][]string{
		{"--store", "s3"},
		{"--lr", "-1"},
		{"--log-format", "xml"},
	} {
		called := false
		cmd := newCommand(func(context.Context, config.Config,
			experiment.Options) error {
			called = true
			return nil
		})
		cmd.SetArgs(args)
		err := cmd.ExecuteContext(context.Background())
		if !errors.Is(err, config.ErrInvalid) {
			t.Errorf("%v: got error %v, want %v", args, err, config.ErrInvalid)
		}
		if called {
			t.Errorf("%v: ran with an invalid configuration", args)
		}
	}
}

func TestInvalidRunOptions(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	for _, args := range [][]string{
		{"--n-iters", "0"},
		{"--render"},
		{"--render-dir", "frames"},
	} {
		cmd := newCommand(func(ctx context.Context, c config.Config,
			o experiment.Options) error {
			_, err := experiment.Run(ctx, c, o, experiment.DefaultDeps())
			return err
		})
		args = append(args, "--env", "CartPole-v1", "--checkpoint-dir",
			t.TempDir(), "--log-level", "error")
		cmd.SetArgs(args)
		if err := cmd.ExecuteContext(context.Background()); !errors.Is(err,
			config.ErrInvalid) {
			t.Errorf("%v: got error %v, want %v", args, err, config.ErrInvalid)
		}
	}
}
