package flowengine

import (
	"sync"

	"github.com/careorion/blobserver/internal/source"
)

// sourceEntry pairs a live Source with an explicit referrer count,
// standing in for the original's shared_ptr strong-reference count
// (spec §9's redesign guidance: "model reclamation with an explicit
// count rather than smart-pointer probing").
type sourceEntry struct {
	src       source.Source
	referrers int
}

// sourceRegistry is the flow engine's live-source table, keyed by
// (kind, subsource) identity so that two flows asking for the same
// physical source share one instance (spec §4.4 connect: "reuses the
// existing registry entry if one exists with matching identity").
//
// Its mutex is exposed to the Engine's command dispatch (same
// package) so multi-step commands like connect can hold it alongside
// the flow registry's lock for the whole operation, per spec §4.4's
// "atomic with respect to the processing loop" requirement and its
// fixed sources-then-flows lock order. grabAll and snapshot, called
// independently by the capture thread and processing loop, take the
// lock themselves.
type sourceRegistry struct {
	mu    sync.Mutex
	byKey map[source.Identity]*sourceEntry
}

func newSourceRegistry() *sourceRegistry {
	return &sourceRegistry{byKey: make(map[source.Identity]*sourceEntry)}
}

// acquireLocked returns the existing source for identity, incrementing
// its referrer count, or nil if none is registered. Caller holds mu.
func (r *sourceRegistry) acquireLocked(id source.Identity) source.Source {
	e, ok := r.byKey[id]
	if !ok {
		return nil
	}
	e.referrers++
	return e.src
}

// insertLocked registers a newly connected source with referrer count
// 1. Caller holds mu.
func (r *sourceRegistry) insertLocked(id source.Identity, src source.Source) {
	r.byKey[id] = &sourceEntry{src: src, referrers: 1}
}

// releaseLocked decrements the referrer count for identity. Actual
// removal happens only on the capture thread's reclamation pass (spec
// §4.4: "reclamation of now-unreferenced sources happens on the next
// capture-thread tick"). Caller holds mu.
func (r *sourceRegistry) releaseLocked(id source.Identity) {
	if e, ok := r.byKey[id]; ok && e.referrers > 0 {
		e.referrers--
	}
}

func (r *sourceRegistry) getLocked(id source.Identity) (source.Source, bool) {
	e, ok := r.byKey[id]
	if !ok {
		return nil, false
	}
	return e.src, true
}

// grabAll calls Grab on every registered source, then removes any
// entry whose referrer count has reached zero — the reclamation rule
// (spec §4.4 capture thread).
func (r *sourceRegistry) grabAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.byKey {
		e.src.Grab()
		if e.referrers <= 0 {
			type closer interface{ Close() error }
			if c, ok := e.src.(closer); ok {
				_ = c.Close()
			}
			delete(r.byKey, id)
		}
	}
}

// snapshot returns the current corrected frame for every registered
// source, keyed by identity (spec §4.4 processing loop step 1:
// "snapshot-retrieve corrected frames from all registered sources
// under the sources lock").
func (r *sourceRegistry) snapshot() map[source.Identity]source.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[source.Identity]source.Frame, len(r.byKey))
	for id, e := range r.byKey {
		out[id] = e.src.RetrieveCorrected()
	}
	return out
}

func (r *sourceRegistry) list() []source.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]source.Identity, 0, len(r.byKey))
	for id := range r.byKey {
		ids = append(ids, id)
	}
	return ids
}

func (r *sourceRegistry) get(id source.Identity) (source.Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}
