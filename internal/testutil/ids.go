package testutil

import "sync"

// DefaultActivationID is used when a scenario does not name its activation.
const DefaultActivationID = "test-activation"

// FixedIDGenerator hands out predetermined activation ids in order and keeps
// returning the last one once they run out. It satisfies journal.IDGenerator
// and is safe for concurrent use.
type FixedIDGenerator struct {
	mu   sync.Mutex
	ids  []string
	next int
}

// NewFixedIDGenerator creates a generator for ids. Empty ids, and a call
// without any, stand for DefaultActivationID.
func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	if len(ids) == 0 {
		ids = []string{DefaultActivationID}
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		if id == "" {
			id = DefaultActivationID
		}
		out[i] = id
	}
	return &FixedIDGenerator{ids: out}
}

// Generate returns the next id.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.ids[g.next]
	if g.next < len(g.ids)-1 {
		g.next++
	}
	return id
}
