package tracker

import (
	"testing"

	"github.com/careorion/blobserver/internal/types"
)

func meas(x, y int) types.Measurement {
	return types.Measurement{Position: types.Point{X: x, Y: y}}
}

// TestPersistenceAcrossFrames mirrors spec.md §8 scenario 4: two
// measurements in frame 1 produce trackers 1 and 2; frame 2's nearby
// measurements should align with the same IDs.
func TestPersistenceAcrossFrames(t *testing.T) {
	tr := NewDefault()

	blobs, err := tr.MatchFrame([]types.Measurement{meas(100, 100), meas(200, 200)})
	if err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("expected 2 blobs after frame 1, got %d", len(blobs))
	}
	idAt100 := blobs[0].ID()
	idAt200 := blobs[1].ID()

	blobs, err = tr.MatchFrame([]types.Measurement{meas(105, 102), meas(198, 201)})
	if err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("expected 2 blobs after frame 2, got %d", len(blobs))
	}

	byID := map[int64]*TrackedBlob{}
	for _, b := range blobs {
		byID[b.ID()] = b
	}
	got100 := byID[idAt100]
	got200 := byID[idAt200]
	if got100 == nil || got200 == nil {
		t.Fatalf("expected both original IDs to persist, got blobs: %+v", blobs)
	}
	if got100.Measurement().Position.X < 90 || got100.Measurement().Position.X > 120 {
		t.Errorf("id %d drifted to unexpected position %+v", idAt100, got100.Measurement().Position)
	}
	if got200.Measurement().Position.X < 180 || got200.Measurement().Position.X > 210 {
		t.Errorf("id %d drifted to unexpected position %+v", idAt200, got200.Measurement().Position)
	}
}

// TestOcclusionLifetime mirrors spec.md §8 scenario 5: with L=3, a
// tracker unseen for frames 1-3 is still present after frame 3 and
// disappears exactly after frame 4.
func TestOcclusionLifetime(t *testing.T) {
	tr := New(3)

	blobs, err := tr.MatchFrame([]types.Measurement{meas(50, 50)})
	if err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	id := blobs[0].ID()

	for frame := 1; frame <= 3; frame++ {
		blobs, err = tr.MatchFrame(nil)
		if err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
		found := false
		for _, b := range blobs {
			if b.ID() == id {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected blob %d to survive frame %d, lifetime=3", id, frame)
		}
	}

	blobs, err = tr.MatchFrame(nil)
	if err != nil {
		t.Fatalf("frame 4: %v", err)
	}
	for _, b := range blobs {
		if b.ID() == id {
			t.Fatalf("expected blob %d to be gone after frame 4", id)
		}
	}
}

// TestNoDuplicateIdentities is a property test for spec.md §8's
// "output tracked-blob list contains no duplicate identities" invariant.
func TestNoDuplicateIdentities(t *testing.T) {
	tr := NewDefault()
	frames := [][]types.Measurement{
		{meas(0, 0), meas(10, 10), meas(20, 20)},
		{meas(1, 1), meas(500, 500)},
		{meas(2, 2), meas(11, 11), meas(501, 501), meas(900, 900)},
	}
	for i, f := range frames {
		blobs, err := tr.MatchFrame(f)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		seen := map[int64]bool{}
		for _, b := range blobs {
			if seen[b.ID()] {
				t.Fatalf("frame %d: duplicate id %d", i, b.ID())
			}
			seen[b.ID()] = true
		}
	}
}

// TestOneToOneAssignment ensures a tracker is matched to at most one
// measurement and vice versa within a single frame.
func TestOneToOneAssignment(t *testing.T) {
	tr := NewDefault()
	if _, err := tr.MatchFrame([]types.Measurement{meas(0, 0)}); err != nil {
		t.Fatal(err)
	}

	// Two close measurements should spawn at most one extra tracker
	// matched to the existing one, and one new tracker for the other.
	blobs, err := tr.MatchFrame([]types.Measurement{meas(1, 1), meas(2, 2)})
	if err != nil {
		t.Fatal(err)
	}
	if len(blobs) != 2 {
		t.Fatalf("expected 2 blobs, got %d", len(blobs))
	}
}

func TestFreshIDsMonotonic(t *testing.T) {
	tr := NewDefault()
	blobs, _ := tr.MatchFrame([]types.Measurement{meas(0, 0)})
	first := blobs[0].ID()
	blobs, _ = tr.MatchFrame([]types.Measurement{meas(0, 0), meas(900, 900)})
	var newID int64
	for _, b := range blobs {
		if b.ID() != first {
			newID = b.ID()
		}
	}
	if newID <= first {
		t.Fatalf("expected new id > %d, got %d", first, newID)
	}
}
