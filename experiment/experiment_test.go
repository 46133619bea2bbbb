package experiment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/samuelfneumann/rlrunner/agent"
	_ "github.com/samuelfneumann/rlrunner/agent/pg"
	"github.com/samuelfneumann/rlrunner/config"
	"github.com/samuelfneumann/rlrunner/environment"
	"github.com/samuelfneumann/rlrunner/environment/adapter"
	"github.com/samuelfneumann/rlrunner/environment/atari/breakout"
	"github.com/samuelfneumann/rlrunner/environment/classiccontrol/cartpole"
	"github.com/samuelfneumann/rlrunner/experiment/checkpointer"
	"gonum.org/v1/gonum/mat"
)

// countingEnv counts the calls made to an environment
type countingEnv struct {
	agent.Env
	resets, steps, closes int
	rewards               float64
}

func (c *countingEnv) Reset() (mat.Vector, error) {
	c.resets++
	return c.Env.Reset()
}

func (c *countingEnv) Step(a *mat.VecDense) (mat.Vector, float64, bool,
	adapter.Info, error) {
	c.steps++
	obs, reward, done, info, err := c.Env.Step(a)
	c.rewards += reward
	return obs, reward, done, info, err
}

func (c *countingEnv) Close() error {
	c.closes++
	return c.Env.Close()
}

// recorder wraps the default Deps and records every environment and
// store created, and every configuration an agent is created with
type recorder struct {
	mu      sync.Mutex
	envs    []*countingEnv
	configs []config.Config
	stores  int
	opened  int
}

func (r *recorder) deps() Deps {
	def := DefaultDeps()
	return Deps{
		NewAgent: func(c config.Config, envs agent.EnvFactory,
			logger *slog.Logger) (agent.Agent, error) {
			r.configs = append(r.configs, c)
			return def.NewAgent(c, envs, logger)
		},
		NewStore: func(kind, root string) (checkpointer.Store, error) {
			r.stores++
			return def.NewStore(kind, root)
		},
		OpenStore: func(h checkpointer.Handle) (checkpointer.Store, error) {
			r.opened++
			return def.OpenStore(h)
		},
		NewEnv: func(id environment.ID, seed uint64, p adapter.Preprocessing,
			opts ...adapter.Option) (agent.Env, error) {
			env, err := def.NewEnv(id, seed, p, opts...)
			if err != nil {
				return nil, err
			}
			c := &countingEnv{Env: env}
			r.mu.Lock()
			r.envs = append(r.envs, c)
			r.mu.Unlock()
			return c, nil
		},
	}
}

func testConfig(t *testing.T, id environment.ID) config.Config {
	c := config.Default()
	c.Env = string(id)
	c.NumWorkers = 0
	c.TrainBatchSize = 64
	c.RolloutFragmentLength = 32
	c.Seed = 3
	c.CheckpointDir = t.TempDir()
	return c
}

func trainOnce(t *testing.T, c config.Config) checkpointer.Handle {
	t.Helper()
	var out bytes.Buffer
	outcome, err := Run(context.Background(), c,
		Options{Iterations: 1, Out: &out}, DefaultDeps())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Handles) != 1 {
		t.Fatalf("got %v handles, want 1", len(outcome.Handles))
	}
	return outcome.Handles[0]
}

func TestTrainBreakout(t *testing.T) {
	c := testConfig(t, breakout.ID)
	var out bytes.Buffer
	rec := &recorder{}

	outcome, err := Run(context.Background(), c,
		Options{Iterations: 1, Out: &out}, rec.deps())
	if err != nil {
		t.Fatal(err)
	}

	if len(outcome.Handles) != 1 || outcome.Result != nil {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if _, err := os.Stat(string(outcome.Handles[0])); err != nil {
		t.Errorf("checkpoint not written: %v", err)
	}

	text := out.String()
	if !strings.HasPrefix(text, "Start training.\n") {
		t.Errorf("output should start with the training banner, got %q",
			text)
	}
	if n := strings.Count(text, "timesteps_this_iter:"); n != 1 {
		t.Errorf("got %v reports, want 1", n)
	}
	want := fmt.Sprintf("Checkpoint saved in %v\n", outcome.Handles[0])
	if strings.Count(text, "Checkpoint saved in") != 1 ||
		!strings.HasSuffix(text, want) {
		t.Errorf("output should end with %q, got %q", want, text)
	}

	for i, env := range rec.envs {
		if env.closes != 1 {
			t.Errorf("environment %v closed %v times", i, env.closes)
		}
	}
}

func TestTrainerStates(t *testing.T) {
	c := testConfig(t, cartpole.ID)
	tr, err := NewTrainer(c, 2, DefaultDeps(), WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if tr.State() != Ready {
		t.Errorf("new trainer is %v, want %v", tr.State(), Ready)
	}
	handles, err := tr.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(handles) != 2 || handles[0] == handles[1] {
		t.Errorf("want 2 distinct handles, got %v", handles)
	}
	if tr.State() != Done {
		t.Errorf("trainer is %v after running, want %v", tr.State(), Done)
	}
	if _, err := tr.Run(context.Background()); err == nil {
		t.Error("expected an error running a finished trainer")
	}
}

func TestEvaluate(t *testing.T) {
	c := testConfig(t, breakout.ID)
	h := trainOnce(t, c)

	var out bytes.Buffer
	rec := &recorder{}
	outcome, err := Run(context.Background(), c,
		Options{Checkpoint: string(h), Out: &out}, rec.deps())
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Result == nil || outcome.Handles != nil {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	result := *outcome.Result

	// The agent's own environment is never stepped
	var stepped *countingEnv
	for i, env := range rec.envs {
		if env.closes != 1 {
			t.Errorf("environment %v closed %v times", i, env.closes)
		}
		if env.steps > 0 {
			stepped = env
		}
	}
	if stepped == nil {
		t.Fatal("no environment was stepped")
	}
	if stepped.resets != 1 || stepped.steps != result.Steps {
		t.Errorf("evaluation env reset %v times and stepped %v times, "+
			"result %+v", stepped.resets, stepped.steps, result)
	}
	if stepped.rewards != result.Score || result.Truncated {
		t.Errorf("score %v, want the sum of rewards %v", result.Score,
			stepped.rewards)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		"Start evaluation.",
		fmt.Sprintf("Checkpoint loaded from %v", h),
		fmt.Sprintf("Created env for %v", breakout.ID),
		fmt.Sprintf("Evaluation score: %v", result.Score),
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("output:\n%v\nwant:\n%v", out.String(),
			strings.Join(want, "\n"))
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	c := testConfig(t, cartpole.ID)
	h := trainOnce(t, c)

	var results []Result
	for i := 0; i < 2; i++ {
		outcome, err := Run(context.Background(), c,
			Options{Checkpoint: string(h), Out: &bytes.Buffer{}},
			DefaultDeps())
		if err != nil {
			t.Fatal(err)
		}
		results = append(results, *outcome.Result)
	}
	if results[0] != results[1] {
		t.Errorf("two evaluations differ: %+v, %+v", results[0], results[1])
	}
}

func TestEvaluateIncompatible(t *testing.T) {
	c := testConfig(t, breakout.ID)
	h := trainOnce(t, c)

	c.Env = string(cartpole.ID)
	rec := &recorder{}
	_, err := Run(context.Background(), c,
		Options{Checkpoint: string(h), Out: &bytes.Buffer{}}, rec.deps())
	if !errors.Is(err, checkpointer.ErrIncompatible) {
		t.Fatalf("got error %v, want %v", err, checkpointer.ErrIncompatible)
	}

	for i, env := range rec.envs {
		if env.resets != 0 || env.steps != 0 {
			t.Errorf("environment %v was used before restoring", i)
		}
		if env.closes != 1 {
			t.Errorf("environment %v closed %v times", i, env.closes)
		}
	}
}

func TestEvaluateMissing(t *testing.T) {
	c := testConfig(t, cartpole.ID)
	missing := c.CheckpointDir + "/CartPole-v1_run/checkpoint_000001/" +
		"checkpoint-1"

	_, err := Run(context.Background(), c,
		Options{Checkpoint: missing, Out: &bytes.Buffer{}}, DefaultDeps())
	if !errors.Is(err, checkpointer.ErrNotFound) {
		t.Errorf("got error %v, want %v", err, checkpointer.ErrNotFound)
	}
}

func TestMaxEvalSteps(t *testing.T) {
	c := testConfig(t, cartpole.ID)
	h := trainOnce(t, c)

	c.MaxEvalSteps = 5
	outcome, err := Run(context.Background(), c,
		Options{Checkpoint: string(h), Out: &bytes.Buffer{}}, DefaultDeps())
	if err != nil {
		t.Fatal(err)
	}
	if r := *outcome.Result; r.Steps != 5 || !r.Truncated || r.Score != 5 {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestSQLiteBackend(t *testing.T) {
	c := testConfig(t, cartpole.ID)
	c.CheckpointBackend = config.SQLiteBackend
	h := trainOnce(t, c)

	if !strings.HasPrefix(string(h), "sqlite://") {
		t.Fatalf("handle %v is not an sqlite handle", h)
	}
	if _, err := Run(context.Background(), c,
		Options{Checkpoint: string(h), Out: &bytes.Buffer{}},
		DefaultDeps()); err != nil {
		t.Fatal(err)
	}
}

func TestDispatch(t *testing.T) {
	c := testConfig(t, cartpole.ID)

	rec := &recorder{}
	if _, err := Run(context.Background(), c,
		Options{Iterations: 1, Out: &bytes.Buffer{}}, rec.deps()); err != nil {
		t.Fatal(err)
	}
	if rec.opened != 0 || rec.stores != 1 || len(rec.configs) != 1 ||
		!rec.configs[0].Explore {
		t.Errorf("training: opened %v stores, created %v stores, agent "+
			"configs %+v", rec.opened, rec.stores, rec.configs)
	}

	rec = &recorder{}
	_, err := Run(context.Background(), c,
		Options{Checkpoint: c.CheckpointDir + "/missing", Out: &bytes.Buffer{}},
		rec.deps())
	if err == nil {
		t.Fatal("expected an error evaluating a missing checkpoint")
	}
	if rec.stores != 0 || len(rec.configs) != 1 {
		t.Fatalf("evaluation: created %v stores and %v agents", rec.stores,
			len(rec.configs))
	}
	if got, want := rec.configs[0], config.DeriveEval(c); got != want {
		t.Errorf("evaluation agent config %+v, want %+v", got, want)
	}
}

// failingStore fails every Save
type failingStore struct {
	checkpointer.Store
	saves int
}

func (f *failingStore) Save(context.Context, checkpointer.Serializable,
	checkpointer.Meta) (checkpointer.Handle, error) {
	f.saves++
	return "", errors.New("disk full")
}

func (f *failingStore) Close() error { return nil }

func TestCheckpointWriteFailure(t *testing.T) {
	c := testConfig(t, cartpole.ID)
	store := &failingStore{}
	deps := DefaultDeps()
	deps.NewStore = func(string, string) (checkpointer.Store, error) {
		return store, nil
	}

	var out bytes.Buffer
	outcome, err := Run(context.Background(), c,
		Options{Iterations: 3, Out: &out}, deps)
	if !errors.Is(err, ErrCheckpointWrite) {
		t.Fatalf("got error %v, want %v", err, ErrCheckpointWrite)
	}
	if store.saves != 1 || len(outcome.Handles) != 0 {
		t.Errorf("saves %v, handles %v: training continued after a failed "+
			"save", store.saves, outcome.Handles)
	}
	if n := strings.Count(out.String(), "timesteps_this_iter:"); n != 1 {
		t.Errorf("got %v reports, want 1", n)
	}
}

func TestInvalidConfig(t *testing.T) {
	c := testConfig(t, cartpole.ID)
	c.LR = -1
	rec := &recorder{}

	_, err := Run(context.Background(), c,
		Options{Iterations: 1, Out: &bytes.Buffer{}}, rec.deps())
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("got error %v, want %v", err, config.ErrInvalid)
	}
	if rec.stores != 0 || len(rec.configs) != 0 {
		t.Error("invalid configuration constructed collaborators")
	}
}

func TestUnknownEnvironment(t *testing.T) {
	c := testConfig(t, "Pong-v0")
	_, err := Run(context.Background(), c,
		Options{Iterations: 1, Out: &bytes.Buffer{}}, DefaultDeps())
	if !errors.Is(err, environment.ErrUnknownEnvironment) {
		t.Errorf("got error %v, want %v", err,
			environment.ErrUnknownEnvironment)
	}
}

func TestCancelledEvaluation(t *testing.T) {
	c := testConfig(t, cartpole.ID)
	h := trainOnce(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recorder{}
	_, err := Run(ctx, c, Options{Checkpoint: string(h),
		Out: &bytes.Buffer{}}, rec.deps())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got error %v, want %v", err, context.Canceled)
	}
	for i, env := range rec.envs {
		if env.steps != 0 || env.closes != 1 {
			t.Errorf("environment %v stepped %v times and closed %v times",
				i, env.steps, env.closes)
		}
	}
}

// snapshotAgent records the state of an agent after every iteration
type snapshotAgent struct {
	agent.Agent
	states [][]byte
}

func (s *snapshotAgent) TrainIteration(ctx context.Context) (agent.Report,
	error) {
	report, err := s.Agent.TrainIteration(ctx)
	if err != nil {
		return report, err
	}
	state, err := s.Agent.GobEncode()
	if err != nil {
		return report, err
	}
	s.states = append(s.states, state)
	return report, nil
}

func TestCheckpointPerIteration(t *testing.T) {
	c := testConfig(t, cartpole.ID)
	c.NumWorkers = 2

	var trained *snapshotAgent
	deps := DefaultDeps()
	deps.NewAgent = func(c config.Config, envs agent.EnvFactory,
		logger *slog.Logger) (agent.Agent, error) {
		a, err := DefaultDeps().NewAgent(c, envs, logger)
		if err != nil {
			return nil, err
		}
		trained = &snapshotAgent{Agent: a}
		return trained, nil
	}

	outcome, err := Run(context.Background(), c,
		Options{Iterations: 3, Out: &bytes.Buffer{}}, deps)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Handles) != 3 || len(trained.states) != 3 {
		t.Fatalf("got %v handles and %v states, want 3 of each",
			len(outcome.Handles), len(trained.states))
	}

	for i, h := range outcome.Handles {
		a, err := newAgent(c, DefaultDeps(), slog.Default())
		if err != nil {
			t.Fatal(err)
		}
		store, err := checkpointer.Open(h)
		if err != nil {
			t.Fatal(err)
		}
		if err := agent.Restore(context.Background(), store, a, h); err != nil {
			t.Fatal(err)
		}
		state, err := a.GobEncode()
		if err != nil {
			t.Fatal(err)
		}
		store.Close()
		a.Close()

		if !bytes.Equal(state, trained.states[i]) {
			t.Errorf("checkpoint %v does not hold the state after "+
				"iteration %v", h, i+1)
		}
	}
}

func TestInvalidOptions(t *testing.T) {
	tests := map[string]Options{
		"no iterations":       {Iterations: 0},
		"negative iterations": {Iterations: -1},
		"render training":     {Iterations: 1, Render: true},
		"render dir training": {Iterations: 1, RenderDir: t.TempDir()},
	}

	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			opts.Out = &out
			rec := &recorder{}

			outcome, err := Run(context.Background(),
				testConfig(t, cartpole.ID), opts, rec.deps())
			if !errors.Is(err, config.ErrInvalid) {
				t.Errorf("got error %v, want %v", err, config.ErrInvalid)
			}
			if len(outcome.Handles) != 0 || rec.stores != 0 ||
				len(rec.configs) != 0 || out.Len() != 0 {
				t.Errorf("invalid options ran: outcome %+v, output %q",
					outcome, out.String())
			}
		})
	}

	c := testConfig(t, cartpole.ID)
	_, err := NewTrainer(c, 0, DefaultDeps())
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("newTrainer with 0 iterations: got error %v, want %v", err,
			config.ErrInvalid)
	}
}

var errClose = errors.New("close failed")

// closeFailingEnv fails to close
type closeFailingEnv struct {
	agent.Env
}

func (c *closeFailingEnv) Close() error {
	return errors.Join(c.Env.Close(), errClose)
}

func TestEvaluationCloseError(t *testing.T) {
	c := testConfig(t, cartpole.ID)
	h := trainOnce(t, c)

	deps := DefaultDeps()
	deps.NewEnv = func(id environment.ID, seed uint64, p adapter.Preprocessing,
		opts ...adapter.Option) (agent.Env, error) {
		env, err := DefaultDeps().NewEnv(id, seed, p, opts...)
		if err != nil {
			return nil, err
		}
		return &closeFailingEnv{Env: env}, nil
	}

	var out bytes.Buffer
	_, err := Run(context.Background(), c,
		Options{Checkpoint: string(h), Out: &out}, deps)
	if !errors.Is(err, errClose) {
		t.Errorf("got error %v, want %v", err, errClose)
	}
	if !strings.Contains(out.String(), "Evaluation score:") {
		t.Errorf("episode did not run: %q", out.String())
	}
}
