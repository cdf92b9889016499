package telemetry

import (
	"sync/atomic"

	"github.com/dd0wney/hackdb/pkg/compress"
)

// Counter tallies block decodes per codec id without locking
type Counter struct {
	slots [int(compress.MaxID) + 1]atomic.Uint64
}

// NewCounter creates a zeroed counter
func NewCounter() *Counter {
	return &Counter{}
}

// Increment counts one block decoded with id
func (c *Counter) Increment(id compress.ID) {
	c.slots[id].Add(1)
}

// Snapshot returns the non-zero counts and resets every slot, so two
// consecutive snapshots never report the same block twice
func (c *Counter) Snapshot() map[compress.ID]uint64 {
	out := make(map[compress.ID]uint64)
	for i := range c.slots {
		if n := c.slots[i].Swap(0); n != 0 {
			out[compress.ID(i)] = n
		}
	}
	return out
}

// Observe registers the counter as an observer of sink
func (c *Counter) Observe(r *Registry, sink Sink) *Observer {
	return r.Register(sink, c.Increment)
}
