package flowengine

import "github.com/careorion/blobserver/internal/tracker"

// ClientAddr is an opaque, comparable identifier for a control-plane
// subscriber (the client's bare IP, e.g. "127.0.0.1"). The engine never interprets
// it beyond equality comparisons (spec §4.4 disconnect: "removes all
// flows whose subscriber address equals client_address"); the
// controlplane package owns its meaning.
type ClientAddr string

// BlobRecord is the wire-agnostic shape of one tracked blob, as handed
// to a Publisher for serialization. Field layout mirrors
// part of types.Measurement (position, velocity, size) plus the
// identity and updated flag a detector's tracker maintains.
type BlobRecord struct {
	ID       int64
	X, Y     int
	VX, VY   int
	Size     float64
	Updated  bool
}

func blobRecordsFrom(blobs []*tracker.TrackedBlob) []BlobRecord {
	out := make([]BlobRecord, 0, len(blobs))
	for _, b := range blobs {
		m := b.Measurement()
		out = append(out, BlobRecord{
			ID:      b.ID(),
			X:       m.Position.X,
			Y:       m.Position.Y,
			VX:      m.Velocity.X,
			VY:      m.Velocity.Y,
			Size:    m.Size,
			Updated: b.Updated(),
		})
	}
	return out
}

// Publisher is the engine's outbound notification sink, implemented by
// the controlplane package. It is kept free of any transport detail
// (UDP vs TCP, JSON vs any other wire format) so the engine can be
// exercised in tests without a real socket.
type Publisher interface {
	// Reply sends a single human-readable or structured acknowledgement
	// to addr on the given logical path (e.g. "/connect", "si",
	// "Connected", flowID).
	Reply(addr ClientAddr, path string, args ...interface{}) error

	// PublishFrame sends one startFrame/blobs/endFrame envelope for a
	// running flow's detection result (spec §4.4 processing loop step 2).
	// blobPath is the owning detector's declared message path (spec.md:
	// "one detector-specific message per blob at the detector's
	// declared path"), used instead of a fixed literal.
	PublishFrame(addr ClientAddr, flowID int64, frameNbr int64, blobPath string, blobs []BlobRecord) error
}
