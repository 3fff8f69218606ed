// Package floatutils implements utility functions for floats
package floatutils

import "math"

// Clip clips a value to be within min and max
func Clip(value, min, max float64) float64 {
	return math.Min(math.Max(value, min), max)
}

// Max returns the maximum value in a sequence of values and the index
// at which the maximum first occurs
func Max(values ...float64) (float64, int) {
	max := math.Inf(-1)
	arg := -1
	for i, v := range values {
		if v > max {
			max = v
			arg = i
		}
	}
	return max, arg
}

// Mean returns the mean of a sequence of values
func Mean(values ...float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Finite returns whether v is neither NaN nor infinite
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
