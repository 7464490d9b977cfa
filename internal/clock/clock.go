// Package clock provides an injectable wall-time source so the crawler and
// expiration policy never call time.Now directly and can be driven by fixed
// or stepped clocks in tests.
package clock

import "time"

// Clock reports the current time as seconds since the Unix epoch.
type Clock interface {
	Now() int64
}

// System is a Clock backed by the real wall clock.
type System struct{}

// Now returns time.Now() truncated to whole seconds since the epoch.
func (System) Now() int64 {
	return time.Now().Unix()
}

// Fixed is a Clock that always reports the same instant. Useful for
// deterministic unit tests of pure predicates.
type Fixed int64

// Now returns the fixed instant.
func (f Fixed) Now() int64 {
	return int64(f)
}

// Stepped is a mutable Clock for tests that need to advance time between
// assertions without depending on real elapsed time.
type Stepped struct {
	now int64
}

// NewStepped returns a Stepped clock starting at now.
func NewStepped(now int64) *Stepped {
	return &Stepped{now: now}
}

// Now returns the current simulated instant.
func (s *Stepped) Now() int64 {
	return s.now
}

// Advance moves the simulated clock forward by delta seconds and returns the
// new instant.
func (s *Stepped) Advance(delta int64) int64 {
	s.now += delta
	return s.now
}

// Set pins the simulated clock to an exact instant.
func (s *Stepped) Set(now int64) {
	s.now = now
}
