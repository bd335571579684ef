// Package system supplies the wall clock used outside of tests.
package system

import "time"

// Clock implements crawler.Clock against the real time source. Times are
// normalized to UTC so stored timestamps compare cleanly.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now reports the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
