package mountaincar

import (
	"math"

	env "github.com/samuelfneumann/rlrunner/environment"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// GoalPosition is the position of the flag on top of the right hill
const GoalPosition float64 = 0.5

// Goal implements the Mountain Car task of driving the underpowered car
// up to the flag, which it can only reach by rocking back and forth
// between the hills.
//
// The reward is -1 on every timestep. Episodes end once the car passes
// the goal position or after a step limit. Passing the goal takes
// precedence when both happen on the same step.
type Goal struct {
	env.Starter
	enders env.Enders
}

// NewGoal returns a new Goal task with the goal at position goalX
func NewGoal(s env.Starter, episodeSteps int, goalX float64) *Goal {
	reached := env.NewIntervalLimit(
		[]r1.Interval{{Min: math.Inf(-1), Max: goalX}}, []int{0},
		ts.TerminalStateReached)

	return &Goal{
		Starter: s,
		enders:  env.Enders{reached, env.NewStepLimit(episodeSteps)},
	}
}

// GetReward implements the Task interface
func (g *Goal) GetReward(_, _, _ mat.Vector) float64 {
	return -1.0
}

// End implements the Task interface
func (g *Goal) End(t *ts.TimeStep) bool {
	return g.enders.End(t)
}
