// Package system provides the wall clock used outside of tests.
package system

import "time"

// Clock implements radar.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC, truncated to the microsecond precision Postgres stores
// so values read back from either store compare equal to what was written.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
