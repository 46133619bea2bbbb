// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"

	"gonum.org/v1/gonum/spatial/r1"
)

// Clip clips a floating point to within a minimum and maximum value.
// If the floating point exceeds max, then the function returns the max
// If min exceeds the floating point, then the function returns the min
func Clip(value, min, max float64) float64 {
	clipped := math.Min(value, max)
	return math.Max(clipped, min)
}

// ClipInterval is a wrapper to use Clip with an r1.Interval instead of
// a separate max and min value
func ClipInterval(value float64, interval r1.Interval) float64 {
	return Clip(value, interval.Min, interval.Max)
}

// Summary holds the mean, minimum, and maximum of a sample
type Summary struct {
	Mean, Min, Max float64
}

// Summarize computes the Summary of values. An empty sample summarizes
// to NaN in all fields.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{math.NaN(), math.NaN(), math.NaN()}
	}

	s := Summary{Min: values[0], Max: values[0]}
	for _, v := range values {
		s.Mean += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean /= float64(len(values))
	return s
}

// LogSumExp computes log(∑ exp(values)) without overflowing
func LogSumExp(values []float64) float64 {
	max := math.Inf(-1)
	for _, v := range values {
		max = math.Max(max, v)
	}
	if math.IsInf(max, 0) {
		return max
	}

	sum := 0.0
	for _, v := range values {
		sum += math.Exp(v - max)
	}
	return max + math.Log(sum)
}
