package sync

import (
	"sync"
	"time"
)

// guardTTL is the safety net for orphaned guard entries: a key that was
// never released (a hung call, a lost settle) is evicted after this long
// so suppression cannot wedge permanently.
const guardTTL = 10 * time.Second

// GuardSet is a per-key single-flight and suppression registry.
//
// The engine keeps two: one for in-flight native tree operations and one
// for in-flight catalog operations. Before mutating one side because of a
// change on the other, an engine registers the target key here; the
// opposite-direction engine checks Has at the top of every event handler
// and drops self-caused events.
type GuardSet struct {
	mu       sync.Mutex
	inflight map[string]*guardCall
	ttl      time.Duration
}

type guardCall struct {
	done  chan struct{}
	err   error
	timer *time.Timer
}

// NewGuardSet creates an empty guard set with the default TTL.
func NewGuardSet() *GuardSet {
	return &GuardSet{
		inflight: make(map[string]*guardCall),
		ttl:      guardTTL,
	}
}

// Has reports whether key has an operation in flight.
func (g *GuardSet) Has(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inflight[key]
	return ok
}

// Len returns the number of in-flight keys.
func (g *GuardSet) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}

// Run executes fn under key with at-most-one-concurrent-execution-per-key
// semantics. If key is already in flight, Run does not invoke fn; it
// waits for the in-flight call to settle and returns its result. The key
// is released when fn settles, success or failure, or after the TTL as a
// safety net.
func (g *GuardSet) Run(key string, fn func() error) error {
	g.mu.Lock()
	if call, ok := g.inflight[key]; ok {
		g.mu.Unlock()
		<-call.done
		return call.err
	}

	call := &guardCall{done: make(chan struct{})}
	call.timer = time.AfterFunc(g.ttl, func() {
		g.release(key, call)
	})
	g.inflight[key] = call
	g.mu.Unlock()

	call.err = fn()
	call.timer.Stop()
	g.release(key, call)
	close(call.done)
	return call.err
}

// release removes key if it is still held by this call. A TTL eviction
// and a normal settle can race; whichever runs second is a no-op.
func (g *GuardSet) release(key string, call *guardCall) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.inflight[key]; ok && current == call {
		delete(g.inflight, key)
	}
}
