// Package clock supplies the current time to services so that every decision
// below them can be made from an explicit Unix timestamp.
package clock

import "time"

// Clock returns the current time.
type Clock func() time.Time

// System is the wall clock.
var System Clock = time.Now

// Fixed returns a clock frozen at t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// FixedUnix returns a clock frozen at the given Unix second.
func FixedUnix(sec int64) Clock {
	return Fixed(time.Unix(sec, 0))
}

// Unix returns the current time in Unix seconds. A nil clock reads the wall clock.
func (c Clock) Unix() int64 {
	if c == nil {
		return time.Now().Unix()
	}
	return c().Unix()
}
