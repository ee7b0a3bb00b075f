// Package system provides the wall clock.
package system

import "time"

// Clock implements crawler.Clock. Timestamps are UTC so reports and job
// records serialize consistently.
type Clock struct{}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
