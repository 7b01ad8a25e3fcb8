package flowengine

import (
	"sync"

	"github.com/careorion/blobserver/internal/detector"
	"github.com/careorion/blobserver/internal/shm"
	"github.com/careorion/blobserver/internal/source"
)

// flow is the engine's internal record for one connected client's
// detector + sources binding (spec §4.4, the original's Flow struct:
// "sources, detector, client, id, run, shm").
type flow struct {
	id        int64
	detector  detector.Detector
	sourceIDs []source.Identity
	client    ClientAddr
	run       bool
	output    *shm.Segment
	frameNbr  int64
}

// flowRegistry holds all live flows, guarded by its own lock. Per
// spec §4.4's fixed lock order, callers that also need the source
// registry must acquire it first.
type flowRegistry struct {
	mu   sync.Mutex
	byID map[int64]*flow
}

func newFlowRegistry() *flowRegistry {
	return &flowRegistry{byID: make(map[int64]*flow)}
}

func (r *flowRegistry) insertLocked(f *flow) {
	r.byID[f.id] = f
}

func (r *flowRegistry) getLocked(id int64) (*flow, bool) {
	f, ok := r.byID[id]
	return f, ok
}

// removeByClientLocked removes every flow whose client equals addr,
// and (if flowID is non-nil) further restricts to a matching flow ID.
// Returns the removed flows so the caller can release their sources
// and close their output segments. Caller holds mu.
func (r *flowRegistry) removeByClientLocked(addr ClientAddr, flowID *int64) []*flow {
	var removed []*flow
	for id, f := range r.byID {
		if f.client != addr {
			continue
		}
		if flowID != nil && id != *flowID {
			continue
		}
		removed = append(removed, f)
		delete(r.byID, id)
	}
	return removed
}

func (r *flowRegistry) get(id int64) (*flow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}

// forEachRunning calls fn for every flow currently set to run. fn must
// not call back into the registry.
func (r *flowRegistry) forEachRunning(fn func(*flow)) {
	r.mu.Lock()
	snapshot := make([]*flow, 0, len(r.byID))
	for _, f := range r.byID {
		if f.run {
			snapshot = append(snapshot, f)
		}
	}
	r.mu.Unlock()
	for _, f := range snapshot {
		fn(f)
	}
}

func (r *flowRegistry) list() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}
