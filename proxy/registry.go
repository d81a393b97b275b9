package proxy

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Ciarands/jsbridge/errors"
	"github.com/Ciarands/jsbridge/hostval"
)

// entry is one host value exposed to the engine under a handle.
type entry struct {
	value    hostval.Compound
	family   Family
	readOnly bool
}

// Registry maps handles to the host values behind engine-side proxies and
// host-callable functions. Handles are what cross the boundary: the engine
// stores a handle in each proxy it builds, and the trap layer resolves it
// back here. The registry holds one retain per live handle.
type Registry struct {
	mu      sync.Mutex
	log     *zap.Logger
	next    uint32
	entries map[uint32]entry
	// byValue gives each host value at most one live handle, so the same
	// value crossing twice yields the same engine proxy identity.
	byValue map[hostval.Compound]uint32
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:     log,
		next:    1,
		entries: make(map[uint32]entry),
		byValue: make(map[hostval.Compound]uint32),
	}
}

// Register exposes v to the engine and returns its handle. Registering a
// value that already has a live handle returns the existing handle, so
// proxy identity in the engine follows host identity.
func (r *Registry) Register(v hostval.Compound) (uint32, Family, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, FamilyNone, errors.Closed(errors.PhaseEncode, "proxy registry")
	}

	if h, ok := r.byValue[v]; ok {
		return h, r.entries[h].family, nil
	}

	h := r.next
	r.next++
	v.Retain()
	r.entries[h] = entry{
		value:    v,
		family:   FamilyFor(v),
		readOnly: v.Kind() == hostval.KindTuple,
	}
	r.byValue[v] = h
	return h, r.entries[h].family, nil
}

// Resolve returns the host value behind a handle.
func (r *Registry) Resolve(handle uint32) (hostval.Compound, Family, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[handle]
	if !ok {
		return nil, FamilyNone, false
	}
	return e.value, e.family, true
}

// ReadOnly reports whether writes through the handle must be rejected.
func (r *Registry) ReadOnly(handle uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[handle].readOnly
}

// Drop removes a handle and releases the registry's retain on its value.
// Called when the engine's collector finalizes the proxy.
func (r *Registry) Drop(handle uint32) {
	r.mu.Lock()
	e, ok := r.entries[handle]
	if ok {
		delete(r.entries, handle)
		delete(r.byValue, e.value)
	}
	r.mu.Unlock()

	if ok {
		e.value.Release()
	} else {
		r.log.Warn("drop of unknown proxy handle", zap.Uint32("handle", handle))
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close drops every handle and releases the held values.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	held := make([]hostval.Compound, 0, len(r.entries))
	for _, e := range r.entries {
		held = append(held, e.value)
	}
	r.entries = nil
	r.byValue = nil
	r.mu.Unlock()

	for _, v := range held {
		v.Release()
	}
}
