package environment

import (
	"fmt"

	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/spatial/r1"
)

// IntervalLimit implements the Ender interface, ending an episode once
// any of a set of observation features leaves its interval. The end
// is recorded with the EndType given at construction.
type IntervalLimit struct {
	limits  []featureLimit
	endType ts.EndType
}

// featureLimit bounds a single observation feature
type featureLimit struct {
	feature int
	r1.Interval
}

// NewIntervalLimit returns a new IntervalLimit which bounds observation
// feature features[i] by limits[i]
func NewIntervalLimit(limits []r1.Interval, features []int,
	endType ts.EndType) *IntervalLimit {
	if len(limits) != len(features) {
		panic(fmt.Sprintf("newIntervalLimit: %v intervals for %v features",
			len(limits), len(features)))
	}

	l := make([]featureLimit, len(limits))
	for i := range limits {
		l[i] = featureLimit{feature: features[i], Interval: limits[i]}
	}
	return &IntervalLimit{limits: l, endType: endType}
}

// End implements the Ender interface
func (i *IntervalLimit) End(t *ts.TimeStep) bool {
	for _, l := range i.limits {
		if v := t.Observation.AtVec(l.feature); v < l.Min || v > l.Max {
			t.StepType = ts.Last
			t.SetEnd(i.endType)
			return true
		}
	}
	return false
}

// Enders combines multiple Enders, ending the episode when any of
// them does. Enders are consulted in order.
type Enders []Ender

// End implements the Ender interface
func (e Enders) End(t *ts.TimeStep) bool {
	for _, ender := range e {
		if ender.End(t) {
			return true
		}
	}
	return false
}
