// Package clock provides the single time source the rest of the core is
// built against. Every timeout, maintenance tick, and retention window
// (reassembly, handshake, rate-limit day boundary, receipt wait) reads
// the wall clock through this interface so tests can substitute a fake
// one instead of sleeping.
package clock

import "github.com/benbjohnson/clock"

// Clock is the time-source contract consumed by every other package.
// It is a thin re-export of benbjohnson/clock.Clock so callers never need
// to import that package directly.
type Clock = clock.Clock

// Mock is the fake clock used in tests; it lets a test advance time
// deterministically instead of racing real timers.
type Mock = clock.Mock

// New returns the real wall clock.
func New() Clock {
	return clock.New()
}

// NewMock returns a fake clock parked at the Unix epoch.
func NewMock() *Mock {
	return clock.NewMock()
}
