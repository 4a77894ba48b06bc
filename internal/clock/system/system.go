// Package system provides the wall clock used to timestamp lead progress.
package system

import (
	"time"

	"github.com/JakeFAU/lead-scraper/internal/lead"
)

var _ lead.Clock = Clock{}

// Clock implements lead.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Since reports the elapsed time between start and Now.
func (c Clock) Since(start time.Time) time.Duration {
	return c.Now().Sub(start)
}
