// Package telemetry reports, per open database handle, which block codecs the
// engine decoded. The engine has a single process-wide decode hook; this
// package fans it out to observers keyed by the handle's info-log sink.
package telemetry

import (
	"sync"

	"github.com/dd0wney/hackdb/pkg/compress"
	"github.com/dd0wney/hackdb/pkg/lsm"
)

// Sink identifies a database handle: the InfoLog value of its options.
// Sinks are compared by identity and never called.
type Sink = lsm.Logger

// Observer is one registered callback. Close it to stop delivery.
type Observer struct {
	registry *Registry
	sink     Sink
	fn       func(compress.ID)
}

// Close unregisters the observer. It is safe to call more than once.
func (o *Observer) Close() {
	o.registry.Unregister(o)
}

// Registry routes block decode notifications to the observers of a sink
type Registry struct {
	mu        sync.RWMutex
	observers map[Sink][]*Observer // registration order
}

// Default is the registry wired to the engine hook at init
var Default = NewRegistry()

func init() {
	Install(Default)
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{observers: make(map[Sink][]*Observer)}
}

// Install routes the engine's block decode hook to r
func Install(r *Registry) {
	lsm.SetBlockDecodeHook(func(id compress.ID, opts *lsm.Options) {
		if opts == nil || opts.InfoLog == nil {
			return
		}
		r.Notify(opts.InfoLog, id)
	})
}

// Register adds fn as an observer of sink. fn runs synchronously on engine
// reader goroutines and must only do in-memory bookkeeping.
func (r *Registry) Register(sink Sink, fn func(compress.ID)) *Observer {
	obs := &Observer{registry: r, sink: sink, fn: fn}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers[sink] = append(r.observers[sink], obs)
	return obs
}

// Unregister removes obs. Once it returns, no notification reaches obs.
func (r *Registry) Unregister(obs *Observer) {
	if obs == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.observers[obs.sink]
	for i, o := range list {
		if o != obs {
			continue
		}
		if len(list) == 1 {
			delete(r.observers, obs.sink)
			return
		}
		// Copy so a slice captured by an earlier Notify is never modified
		next := make([]*Observer, 0, len(list)-1)
		next = append(next, list[:i]...)
		r.observers[obs.sink] = append(next, list[i+1:]...)
		return
	}
}

// Notify delivers id to every observer of sink in registration order.
// Unknown sinks are ignored.
func (r *Registry) Notify(sink Sink, id compress.ID) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, obs := range r.observers[sink] {
		obs.fn(id)
	}
}

// Len returns the number of live observers of sink
func (r *Registry) Len(sink Sink) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers[sink])
}
