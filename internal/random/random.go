// Package random backs the random() expression function.
package random

import "math/rand/v2"

var float64Func = rand.Float64

// Float64 returns a pseudo-random number in [0.0,1.0).
func Float64() float64 {
	return float64Func()
}

// SetFloat64ForTest overrides the random source and returns a restore function.
func SetFloat64ForTest(fn func() float64) func() {
	previous := float64Func
	float64Func = fn
	return func() {
		float64Func = previous
	}
}
