// Package tracker implements the generic blob-identity maintenance
// algorithm used internally by detectors (spec §4.3): predict, form
// candidate pairs, greedily assign by nearest pair, age the
// unassigned, spawn for the unmatched. Grounded on
// _examples/LdDl-mot-go/mot (generic Blob tracker, Kalman-backed
// motion predictor, min-heap nearest-pair assignment) and on
// _examples/original_source/include/detector.h's trackBlobs<T>(),
// the exact C++ ancestor of this algorithm.
package tracker

import (
	"github.com/pkg/errors"

	"github.com/careorion/blobserver/internal/types"
)

// DefaultLifetime is the default number of frames a tracker survives
// without a matching measurement before it is removed (spec §4.3: "a
// lifetime parameter L (default 30)").
const DefaultLifetime = 30

// Tracker maintains stable identities for a set of TrackedBlobs across
// successive calls to MatchFrame. It is not safe for concurrent use;
// each Detector instance owns one Tracker exclusively (spec §3: "a
// detector holds per-instance tracking state").
type Tracker struct {
	lifetime int
	nextID   int64
	blobs    []*TrackedBlob
}

// New creates a Tracker with the given lifetime parameter L.
func New(lifetime int) *Tracker {
	if lifetime < 0 {
		lifetime = DefaultLifetime
	}
	return &Tracker{lifetime: lifetime}
}

// NewDefault creates a Tracker using DefaultLifetime.
func NewDefault() *Tracker {
	return New(DefaultLifetime)
}

// Blobs returns the tracker's current list of tracked blobs. The
// returned slice is owned by the tracker; callers must not retain it
// across the next MatchFrame call.
func (t *Tracker) Blobs() []*TrackedBlob {
	return t.blobs
}

func squaredDistance(a, b types.Point) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return dx*dx + dy*dy
}

// MatchFrame runs one tracking iteration against a frame's
// measurements, implementing spec §4.3 steps 1-6 in order, and
// returns the updated tracked-blob list.
func (t *Tracker) MatchFrame(measurements []types.Measurement) ([]*TrackedBlob, error) {
	// Step 1: predict.
	for _, b := range t.blobs {
		b.predict()
	}

	// Step 2: form candidate pairs.
	var heap pairHeap
	seq := 0
	for ti, b := range t.blobs {
		for mi, m := range measurements {
			d := squaredDistance(b.predicted, m.Position)
			heap.push(candidatePair{trackerIdx: ti, measurementIdx: mi, dist: d, seq: seq})
			seq++
		}
	}

	// Step 3: greedy assignment by nearest pair, one-to-one.
	assignedTracker := make(map[int]bool, len(t.blobs))
	assignedMeasurement := make(map[int]bool, len(measurements))
	type assignment struct {
		trackerIdx     int
		measurementIdx int
	}
	var assignments []assignment
	for heap.Len() > 0 {
		pair := heap.pop()
		if assignedTracker[pair.trackerIdx] || assignedMeasurement[pair.measurementIdx] {
			continue
		}
		assignedTracker[pair.trackerIdx] = true
		assignedMeasurement[pair.measurementIdx] = true
		assignments = append(assignments, assignment{pair.trackerIdx, pair.measurementIdx})
	}

	// Step 4: update assigned.
	for _, a := range assignments {
		b := t.blobs[a.trackerIdx]
		b.assign(measurements[a.measurementIdx], t.lifetime)
	}

	// Step 5: age unassigned trackers, dropping any whose lifetime
	// would go below zero.
	kept := t.blobs[:0]
	for i, b := range t.blobs {
		if assignedTracker[i] {
			kept = append(kept, b)
			continue
		}
		b.age()
		if b.lifetime < 0 {
			continue
		}
		kept = append(kept, b)
	}
	t.blobs = kept

	// Step 6: spawn for unassigned measurements.
	for mi, m := range measurements {
		if assignedMeasurement[mi] {
			continue
		}
		t.blobs = append(t.blobs, t.newBlob(m))
	}

	if err := t.checkInvariants(); err != nil {
		return nil, errors.Wrap(err, "tracker invariant violated")
	}

	return t.blobs, nil
}

func (t *Tracker) newBlob(m types.Measurement) *TrackedBlob {
	t.nextID++
	return newTrackedBlob(t.nextID, m, t.lifetime)
}

// checkInvariants enforces spec §8: no duplicate identities, and
// lifetime never negative for a surviving blob.
func (t *Tracker) checkInvariants() error {
	seen := make(map[int64]bool, len(t.blobs))
	for _, b := range t.blobs {
		if seen[b.id] {
			return errors.Errorf("duplicate tracked blob id %d", b.id)
		}
		seen[b.id] = true
		if b.lifetime < 0 {
			return errors.Errorf("blob %d has negative lifetime", b.id)
		}
	}
	return nil
}
