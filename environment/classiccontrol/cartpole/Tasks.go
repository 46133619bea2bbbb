package cartpole

import (
	"math"

	env "github.com/samuelfneumann/rlrunner/environment"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	FailAngle    float64 = 12 * 2 * math.Pi / 360
	FailPosition float64 = 2.4
)

// Balance implements the classic control Cartpole Balance task. In this
// Task, the goal of the agent is to balance the pole on the cart in
// an upright position for as long as possible.
//
// The reward is +1 for every timestep, including the one which ends
// the episode.
//
// Episodes end after a step limit, after the pole has fallen past
// some angle threshold θ, or after the cart has left the track.
type Balance struct {
	env.Starter
	enders env.Enders
}

// NewBalance creates and returns a new Balance task
func NewBalance(s env.Starter, episodeSteps int, failPosition,
	failAngle float64) *Balance {
	limits := []r1.Interval{
		{Min: -failPosition, Max: failPosition},
		{Min: -failAngle, Max: failAngle},
	}
	failures := env.NewIntervalLimit(limits, []int{0, 2},
		ts.TerminalStateReached)

	return &Balance{
		Starter: s,
		enders:  env.Enders{failures, env.NewStepLimit(episodeSteps)},
	}
}

// End checks if a TimeStep is the last in an episode
func (b *Balance) End(t *ts.TimeStep) bool {
	return b.enders.End(t)
}

// GetReward returns the reward for an action taken in some state
func (b *Balance) GetReward(_, _, _ mat.Vector) float64 {
	return 1.0
}
