package config

import (
	"fmt"
	"strconv"
)

// EnvPrefix prefixes the environment variables which override
// configuration options, e.g. RLRUNNER_NUM_WORKERS
const EnvPrefix = "RLRUNNER_"

// LookupFunc looks up an environment variable, like os.LookupEnv
type LookupFunc func(key string) (string, bool)

// envReader applies environment variable overrides, recording the
// first parse error
type envReader struct {
	lookup LookupFunc
	err    error
}

func (r *envReader) get(name string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	value, ok := r.lookup(EnvPrefix + name)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func (r *envReader) fail(name, value string, err error) {
	r.err = fmt.Errorf("%w: %v%v=%q: %v", ErrInvalid, EnvPrefix, name,
		value, err)
}

func (r *envReader) stringVar(name string, dst *string) {
	if value, ok := r.get(name); ok {
		*dst = value
	}
}

func (r *envReader) intVar(name string, dst *int) {
	if value, ok := r.get(name); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			r.fail(name, value, err)
			return
		}
		*dst = parsed
	}
}

func (r *envReader) uint64Var(name string, dst *uint64) {
	if value, ok := r.get(name); ok {
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			r.fail(name, value, err)
			return
		}
		*dst = parsed
	}
}

func (r *envReader) floatVar(name string, dst *float64) {
	if value, ok := r.get(name); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			r.fail(name, value, err)
			return
		}
		*dst = parsed
	}
}

func (r *envReader) boolVar(name string, dst *bool) {
	if value, ok := r.get(name); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			r.fail(name, value, err)
			return
		}
		*dst = parsed
	}
}

// ApplyEnv returns c with options overridden by the RLRUNNER_*
// environment variables found by lookup. Empty variables are ignored.
func ApplyEnv(c Config, lookup LookupFunc) (Config, error) {
	r := &envReader{lookup: lookup}

	r.stringVar("ENV", &c.Env)
	r.stringVar("AGENT", &c.Agent)
	r.intVar("NUM_GPUS", &c.NumGPUs)
	r.floatVar("LR", &c.LR)
	r.intVar("NUM_WORKERS", &c.NumWorkers)
	r.boolVar("EXPLORE", &c.Explore)
	r.intVar("EVALUATION_INTERVAL", &c.EvaluationInterval)
	r.intVar("EVALUATION_DURATION", &c.EvaluationDuration)
	r.floatVar("GAMMA", &c.Gamma)
	r.floatVar("LAMBDA", &c.Lambda)
	r.intVar("TRAIN_BATCH_SIZE", &c.TrainBatchSize)
	r.intVar("ROLLOUT_FRAGMENT_LENGTH", &c.RolloutFragmentLength)
	r.floatVar("ENTROPY_COEFF", &c.EntropyCoeff)
	r.uint64Var("SEED", &c.Seed)
	r.intVar("FRAME_STACK", &c.FrameStack)
	r.intVar("FRAME_SKIP", &c.FrameSkip)
	r.intVar("DIM", &c.Dim)
	r.stringVar("CHECKPOINT_DIR", &c.CheckpointDir)
	r.stringVar("CHECKPOINT_BACKEND", &c.CheckpointBackend)
	r.intVar("MAX_EVAL_STEPS", &c.MaxEvalSteps)

	if r.err != nil {
		return Config{}, fmt.Errorf("applyEnv: %w", r.err)
	}
	return c, nil
}
