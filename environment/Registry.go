package environment

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownEnvironment is returned when constructing an environment
// from an identifier which no package has registered
var ErrUnknownEnvironment = errors.New("unknown environment")

// ID identifies an environment, e.g. "CartPole-v1"
type ID string

// Maker constructs a new environment seeded with seed
type Maker func(seed uint64) (Environment, error)

// Resolver looks up a Maker for identifiers which were not registered
// explicitly, for example by forwarding them to an external simulator.
type Resolver func(id ID) (Maker, bool)

var (
	mu         sync.RWMutex
	registered = make(map[ID]Maker)
	resolvers  []Resolver
)

// Register registers an environment's Maker with an ID so that the
// environment can be created with Make.
//
// Each environment package registers itself separately to avoid
// circular imports.
func Register(id ID, maker Maker) {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := registered[id]; ok {
		panic(fmt.Sprintf("register: environment %v already registered", id))
	}
	registered[id] = maker
}

// RegisterResolver adds a fallback Resolver, consulted by Make in
// registration order for identifiers with no registered Maker
func RegisterResolver(r Resolver) {
	mu.Lock()
	defer mu.Unlock()
	resolvers = append(resolvers, r)
}

// Lookup returns the Maker for id. Errors wrap ErrUnknownEnvironment.
func Lookup(id ID) (Maker, error) {
	mu.RLock()
	defer mu.RUnlock()

	if maker, ok := registered[id]; ok {
		return maker, nil
	}
	for _, resolve := range resolvers {
		if maker, ok := resolve(id); ok {
			return maker, nil
		}
	}
	return nil, fmt.Errorf("lookup: %w %q (registered: %v)",
		ErrUnknownEnvironment, id, registeredIDs())
}

// Make constructs the environment registered with id
func Make(id ID, seed uint64) (Environment, error) {
	maker, err := Lookup(id)
	if err != nil {
		return nil, err
	}

	env, err := maker(seed)
	if err != nil {
		return nil, fmt.Errorf("make: could not create environment %v: %w",
			id, err)
	}
	return env, nil
}

// Registered returns the sorted IDs of all registered environments
func Registered() []ID {
	mu.RLock()
	defer mu.RUnlock()
	return registeredIDs()
}

func registeredIDs() []ID {
	ids := make([]ID, 0, len(registered))
	for id := range registered {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
