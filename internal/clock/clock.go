// Package clock backs the now() and today() expression functions.
package clock

import "time"

var nowFunc = time.Now

// Now returns the current time from the configured clock function.
func Now() time.Time {
	return nowFunc()
}

// Today returns midnight of the current day in the clock's location.
func Today() time.Time {
	now := nowFunc()
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
}

// SetNowForTest overrides the clock source and returns a restore function.
func SetNowForTest(fn func() time.Time) func() {
	previous := nowFunc
	nowFunc = fn
	return func() {
		nowFunc = previous
	}
}
