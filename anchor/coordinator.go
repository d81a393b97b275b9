package anchor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Ciarands/jsbridge/engine"
	"github.com/Ciarands/jsbridge/errors"
	"github.com/Ciarands/jsbridge/hostval"
)

// Coordinator keeps values alive across the runtime boundary. It covers
// both directions: engine values referenced by host wrappers are pinned
// against the engine's collector, and host values referenced by engine
// proxies or the memo table carry an extra retain until nothing on the
// engine side can reach them.
type Coordinator struct {
	mu     sync.Mutex
	eng    engine.Lifetime
	log    *zap.Logger
	closed bool

	// pins counts host wrappers per pinned engine ref.
	pins map[engine.Ref]int

	// assoc memoizes engine refs minted for a host compound. Entries hold
	// no retain of their own: the proxy registry's retain stands for the
	// engine side, and the sweep drops entries once it is the last one.
	assoc map[hostval.Compound][]engine.Ref
}

// New creates a coordinator bound to eng and registers its sweep with the
// engine's collection start notification.
func New(eng engine.Lifetime, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		eng:   eng,
		log:   log,
		pins:  make(map[engine.Ref]int),
		assoc: make(map[hostval.Compound][]engine.Ref),
	}
	eng.OnGCStart(c.sweep)
	return c
}

// AttachEngineRef pins ref for as long as owner is alive. The pin is
// dropped when owner's reference count reaches zero.
func (c *Coordinator) AttachEngineRef(ref engine.Ref, owner hostval.Compound) error {
	if ref == 0 {
		return errors.InvalidRef(errors.PhaseAnchor, "cannot pin the zero ref")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.Closed(errors.PhaseAnchor, "lifetime coordinator")
	}

	if c.pins[ref] == 0 {
		if err := c.eng.Pin(ref); err != nil {
			return err
		}
	}
	c.pins[ref]++
	owner.OnRelease(func() { c.detachEngineRef(ref) })
	return nil
}

func (c *Coordinator) detachEngineRef(ref engine.Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	n, ok := c.pins[ref]
	if !ok {
		return
	}
	if n > 1 {
		c.pins[ref] = n - 1
		return
	}
	delete(c.pins, ref)
	if err := c.eng.Unpin(ref); err != nil {
		c.log.Warn("unpin failed", zap.Uint32("ref", uint32(ref)), zap.Error(err))
	}
}

// Associate memoizes ref as the engine rendering of v and pins ref so the
// memo stays valid. Later encodes of the same v reuse the ref through
// Lookup, preserving identity across repeated crossings. The caller keeps
// v alive for the engine side, normally through the proxy registry's
// retain.
func (c *Coordinator) Associate(v hostval.Compound, ref engine.Ref) error {
	if ref == 0 {
		return errors.InvalidRef(errors.PhaseAnchor, "cannot associate the zero ref")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.Closed(errors.PhaseAnchor, "lifetime coordinator")
	}

	if err := c.eng.Pin(ref); err != nil {
		return err
	}
	c.assoc[v] = append(c.assoc[v], ref)
	return nil
}

// Lookup returns the engine ref most recently memoized for v.
func (c *Coordinator) Lookup(v hostval.Compound) (engine.Ref, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	refs, ok := c.assoc[v]
	if !ok || len(refs) == 0 {
		return 0, false
	}
	return refs[len(refs)-1], true
}

// sweep runs when the engine's collector starts. An entry whose host
// value has a single remaining reference is held only for the engine's
// benefit: no host caller can reach it anymore. The entry is dropped and
// its refs unpinned, letting the collector reclaim the proxies, whose
// finalizers release that last reference.
func (c *Coordinator) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	swept := 0
	for v, refs := range c.assoc {
		if v.Refs() != 1 {
			continue
		}
		for _, ref := range refs {
			if err := c.eng.Unpin(ref); err != nil {
				c.log.Warn("sweep unpin failed", zap.Uint32("ref", uint32(ref)), zap.Error(err))
			}
		}
		delete(c.assoc, v)
		swept++
	}

	if swept > 0 {
		c.log.Debug("swept dead associations", zap.Int("count", swept))
	}
}

// Collect asks the engine to run a collection cycle, which triggers the
// sweep through the collection start notification.
func (c *Coordinator) Collect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.Closed(errors.PhaseAnchor, "lifetime coordinator")
	}
	c.mu.Unlock()
	return c.eng.GC()
}

// Stats reports the current pin and association counts.
func (c *Coordinator) Stats() (pins, associations int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pins), len(c.assoc)
}

// Close drops every pin and association. Engine refs are not unpinned:
// Close is for teardown paths where the engine is going away with us.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.pins = nil
	c.assoc = nil
}
