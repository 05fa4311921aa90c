// Package testutil holds deterministic stand-ins for the journal's clock and
// id generator, so a boot can be recorded byte-for-byte the same every run.
package testutil

import "sync"

// DeterministicClock is a logical clock whose first Next returns 1. Each
// scenario run gets a fresh one, so identical runs stamp identical seq
// values. It satisfies journal.Sequencer.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock at 0.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()
	return seq
}

// Current returns the last value Next issued, or 0.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}
