// Package agent defines the interface of learning agents and a registry
// which constructs agents from their configuration
package agent

import (
	"context"

	"github.com/samuelfneumann/rlrunner/environment"
	"github.com/samuelfneumann/rlrunner/environment/adapter"
	"github.com/samuelfneumann/rlrunner/experiment/checkpointer"
	"gonum.org/v1/gonum/mat"
)

// Agent is a learning algorithm together with the policy it learns.
//
// The state of an Agent is serialized with GobEncode and restored with
// GobDecode. An Agent is only restored from the state of an Agent with
// the same Signature.
type Agent interface {
	// TrainIteration performs one iteration of training: collecting
	// experience and updating the policy
	TrainIteration(ctx context.Context) (Report, error)

	// SelectAction returns the action the agent's policy takes given
	// an observation
	SelectAction(obs mat.Vector) (*mat.VecDense, error)

	// Signature describes what an agent can be restored from
	Signature() Signature

	checkpointer.Serializable

	// Close releases the environments held by the agent
	Close() error
}

// Signature identifies the kind of an agent and the environment it was
// built for
type Signature struct {
	Type           Type
	Env            string
	ObservationLen int
	NumActions     int
}

// Meta returns the checkpoint metadata of an agent with the Signature
func (s Signature) Meta() checkpointer.Meta {
	return checkpointer.Meta{
		AgentType:      string(s.Type),
		Env:            s.Env,
		ObservationLen: s.ObservationLen,
		NumActions:     s.NumActions,
	}
}

// Env is the environment contract agents act through
type Env interface {
	Reset() (mat.Vector, error)
	Step(action *mat.VecDense) (mat.Vector, float64, bool, adapter.Info, error)
	ObservationSpec() environment.Spec
	ActionSpec() environment.Spec
	Close() error
}

// EnvFactory constructs a new environment with the given seed. Agents
// call it once per environment they need.
type EnvFactory func(seed uint64) (Env, error)
