// Package config implements the configuration of training and
// evaluation runs
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when a configuration fails validation
var ErrInvalid = errors.New("invalid configuration")

// Checkpoint storage backends
const (
	FileBackend   = "file"
	SQLiteBackend = "sqlite"
)

// Config describes an agent, the environment it acts in, and how it is
// trained and evaluated.
//
// Config is a value type: it has no pointer, slice, or map fields, so
// copies never share state.
type Config struct {
	Env   string `yaml:"env" json:"env"`
	Agent string `yaml:"agent" json:"agent"`

	NumGPUs    int     `yaml:"num_gpus" json:"num_gpus"`
	LR         float64 `yaml:"lr" json:"lr"`
	NumWorkers int     `yaml:"num_workers" json:"num_workers"`
	Explore    bool    `yaml:"explore" json:"explore"`

	// EvaluationInterval is the number of training iterations between
	// periodic evaluations. 0 disables periodic evaluation.
	EvaluationInterval int `yaml:"evaluation_interval" json:"evaluation_interval"`

	// EvaluationDuration is the number of episodes of each periodic
	// evaluation
	EvaluationDuration int `yaml:"evaluation_duration" json:"evaluation_duration"`

	Gamma                 float64 `yaml:"gamma" json:"gamma"`
	Lambda                float64 `yaml:"lambda" json:"lambda"`
	TrainBatchSize        int     `yaml:"train_batch_size" json:"train_batch_size"`
	RolloutFragmentLength int     `yaml:"rollout_fragment_length" json:"rollout_fragment_length"`
	EntropyCoeff          float64 `yaml:"entropy_coeff" json:"entropy_coeff"`
	Seed                  uint64  `yaml:"seed" json:"seed"`

	// Observation preprocessing
	FrameStack int `yaml:"frame_stack" json:"frame_stack"`
	FrameSkip  int `yaml:"frame_skip" json:"frame_skip"`
	Dim        int `yaml:"dim" json:"dim"`

	CheckpointDir     string `yaml:"checkpoint_dir" json:"checkpoint_dir"`
	CheckpointBackend string `yaml:"checkpoint_backend" json:"checkpoint_backend"`

	// MaxEvalSteps caps the number of steps of an evaluation episode.
	// 0 means evaluation runs until the episode ends.
	MaxEvalSteps int `yaml:"max_eval_steps" json:"max_eval_steps"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Env:                   "Breakout-v0",
		Agent:                 "PG-Linear",
		NumGPUs:               0,
		LR:                    1e-3,
		NumWorkers:            4,
		Explore:               true,
		EvaluationInterval:    0,
		EvaluationDuration:    1,
		Gamma:                 0.99,
		Lambda:                0.95,
		TrainBatchSize:        4000,
		RolloutFragmentLength: 200,
		EntropyCoeff:          0.01,
		Seed:                  0,
		FrameStack:            4,
		FrameSkip:             4,
		Dim:                   42,
		CheckpointDir:         "./rlrunner_results",
		CheckpointBackend:     FileBackend,
		MaxEvalSteps:          0,
	}
}

// DeriveEval returns the configuration used to evaluate an agent
// trained with c: exploration, sampling workers, and periodic
// evaluation are turned off. All other fields are unchanged.
func DeriveEval(c Config) Config {
	c.Explore = false
	c.NumWorkers = 0
	c.EvaluationInterval = 0
	return c
}

// Validate returns an error wrapping ErrInvalid describing every
// invalid field of the Config, or nil if the Config is valid
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Env != "", "env must be set")
	check(c.Agent != "", "agent must be set")
	check(c.NumGPUs >= 0, "num_gpus %v < 0", c.NumGPUs)
	check(c.LR > 0, "lr %v must be positive", c.LR)
	check(c.NumWorkers >= 0, "num_workers %v < 0", c.NumWorkers)
	check(c.EvaluationInterval >= 0, "evaluation_interval %v < 0",
		c.EvaluationInterval)
	check(c.EvaluationInterval == 0 || c.EvaluationDuration > 0,
		"evaluation_duration %v must be positive", c.EvaluationDuration)
	check(c.Gamma >= 0 && c.Gamma <= 1, "gamma %v ∉ [0, 1]", c.Gamma)
	check(c.Lambda >= 0 && c.Lambda <= 1, "lambda %v ∉ [0, 1]", c.Lambda)
	check(c.TrainBatchSize > 0, "train_batch_size %v must be positive",
		c.TrainBatchSize)
	check(c.RolloutFragmentLength > 0, "rollout_fragment_length %v must "+
		"be positive", c.RolloutFragmentLength)
	check(c.EntropyCoeff >= 0, "entropy_coeff %v < 0", c.EntropyCoeff)
	check(c.FrameStack >= 0, "frame_stack %v < 0", c.FrameStack)
	check(c.FrameSkip >= 0, "frame_skip %v < 0", c.FrameSkip)
	check(c.Dim >= 0, "dim %v < 0", c.Dim)
	check(c.CheckpointDir != "", "checkpoint_dir must be set")
	check(c.CheckpointBackend == FileBackend ||
		c.CheckpointBackend == SQLiteBackend,
		"checkpoint_backend %q must be %q or %q", c.CheckpointBackend,
		FileBackend, SQLiteBackend)
	check(c.MaxEvalSteps >= 0, "max_eval_steps %v < 0", c.MaxEvalSteps)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// AsMap returns the Config as a mapping from option names to values,
// for display
func (c Config) AsMap() map[string]interface{} {
	out, err := yaml.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("asMap: could not marshal config: %v", err))
	}

	m := make(map[string]interface{})
	if err := yaml.Unmarshal(out, &m); err != nil {
		panic(fmt.Sprintf("asMap: could not unmarshal config: %v", err))
	}
	return m
}

// String returns the Config as YAML
func (c Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		type plain Config
		return fmt.Sprintf("%+v", plain(c))
	}
	return string(out)
}

// Load reads a YAML configuration file. Options missing from the file
// keep the values of base. Unknown options are an error.
func Load(path string, base Config) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("load: could not open config: %w", err)
	}
	defer f.Close()

	c := base
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("load: could not decode %v: %w", path,
			err)
	}
	return c, nil
}
