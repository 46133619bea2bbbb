package agent

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/samuelfneumann/rlrunner/config"
)

// Type represents a specific type of agent, e.g. "PG-Linear"
type Type string

// Maker constructs an agent of some Type from its configuration. The
// agent creates its environments with envs.
type Maker func(c config.Config, envs EnvFactory, logger *slog.Logger) (Agent,
	error)

// Registered types with the package. Once a Type has been registered,
// agents of the Type can be created with New.
//
// No Types are registered with this package upon initialization.
// Each separate package is in charge of registering its Type with
// the package separately to avoid circular imports.
var (
	mu         sync.RWMutex
	registered = make(map[Type]Maker)
)

// Register registers an agent's Type with the Maker of the Type
func Register(t Type, maker Maker) {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := registered[t]; ok {
		panic(fmt.Sprintf("register: agent type %v already registered", t))
	}
	registered[t] = maker
}

// New constructs the agent of type c.Agent
func New(c config.Config, envs EnvFactory, logger *slog.Logger) (Agent,
	error) {
	mu.RLock()
	maker, ok := registered[Type(c.Agent)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("new: %w: unknown agent type %q (registered: %v)",
			config.ErrInvalid, c.Agent, Registered())
	}

	if logger == nil {
		logger = slog.Default()
	}
	a, err := maker(c, envs, logger)
	if err != nil {
		return nil, fmt.Errorf("new: could not create %v agent: %w", c.Agent,
			err)
	}
	return a, nil
}

// Registered returns the sorted registered agent Types
func Registered() []Type {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]Type, 0, len(registered))
	for t := range registered {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
