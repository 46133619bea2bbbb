// Package bootstrap initializes and shuts down the process-wide state
// of a run: the default logger, variables from .env files, and
// external simulators.
package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/samuelfneumann/rlrunner/config"
	"github.com/samuelfneumann/rlrunner/environment/gym"
)

// Log formats
const (
	TextFormat = "text"
	JSONFormat = "json"
)

// EnvFiles are the .env files searched for environment variables, in
// order. The first one found is loaded.
var EnvFiles = []string{".env", "../.env"}

// Options configures Initialize
type Options struct {
	LogLevel  string // debug, info, warn or error
	LogFormat string // text or json
	LogOutput io.Writer

	// EnvFiles overrides the package level EnvFiles when not nil
	EnvFiles []string
}

// Runtime is the initialized process state
type Runtime struct {
	Logger *slog.Logger

	// EnvFile is the .env file that was loaded, or empty
	EnvFile string

	shutdown sync.Once
}

// Initialize installs the default logger and loads the first .env file
// found. Variables already set in the environment are never
// overwritten by .env files.
func Initialize(opts Options) (*Runtime, error) {
	level, err := ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(opts.LogFormat) {
	case "", TextFormat:
		handler = slog.NewTextHandler(out, handlerOpts)
	case JSONFormat:
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		return nil, fmt.Errorf("initialize: %w: unknown log format %q",
			config.ErrInvalid, opts.LogFormat)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	files := opts.EnvFiles
	if files == nil {
		files = EnvFiles
	}
	rt := &Runtime{Logger: logger}
	for _, f := range files {
		if err := godotenv.Load(f); err == nil {
			rt.EnvFile = f
			logger.Debug("loaded environment file", "file", f)
			break
		}
	}

	if gym.Enabled {
		logger.Debug("gym environments enabled", "prefix", gym.Prefix)
	}
	return rt, nil
}

// Shutdown releases process-wide resources. It is safe to call more
// than once.
func (r *Runtime) Shutdown() {
	r.shutdown.Do(func() {
		gym.Shutdown()
		r.Logger.Debug("shut down")
	})
}

// ParseLevel parses a log level name. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("parseLevel: %w: %v", config.ErrInvalid, err)
	}
	return level, nil
}
