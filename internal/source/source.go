// Package source defines the Source contract (spec §4.1) — an
// abstract live frame producer — and ships two illustrative
// implementations: a synthetic "mock" source used by default and by
// tests, and a thin "gst" adapter over GStreamer. Concrete camera/
// shared-memory capture backends are out of scope per spec §1; these
// exist to exercise the contract and the teacher's GStreamer
// dependency, not to be a production capture stack.
package source

import (
	"image"
	"time"

	"github.com/careorion/blobserver/internal/types"
	"github.com/google/uuid"
)

// Frame is a captured video frame with its declared geometry.
type Frame struct {
	Width  int
	Height int
	// Pix holds packed BGR24 samples, row-major, 3 bytes per pixel.
	Pix []byte
	At  time.Time
	// TraceID identifies this frame across the capture -> detect ->
	// publish pipeline for log correlation; empty for a zero-value
	// Frame (e.g. RetrieveCorrected before the first Grab).
	TraceID uuid.UUID
}

// Empty reports whether the frame carries no pixel data yet (spec
// §4.1: retrieve_corrected "if no frame has yet arrived returns an
// empty frame of the declared size").
func (f Frame) Empty() bool { return len(f.Pix) == 0 }

// ToImage exposes the frame as a standard library image for detectors
// that want to use image/draw-family helpers.
func (f Frame) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i+2 < len(f.Pix) && i/3 < f.Width*f.Height; i += 3 {
		p := i / 3
		x, y := p%f.Width, p/f.Width
		off := img.PixOffset(x, y)
		img.Pix[off+0] = f.Pix[i+2] // R (BGR -> RGB)
		img.Pix[off+1] = f.Pix[i+1] // G
		img.Pix[off+2] = f.Pix[i+0] // B
		img.Pix[off+3] = 0xff
	}
	return img
}

// Identity is the (kind, subsource) pair uniquely identifying a
// Source within the engine's registry (spec §3).
type Identity struct {
	Kind      string
	Subsource int
}

// Source is the capability set spec §9 calls for in place of a
// polymorphic Source/Detector hierarchy: {grab, retrieve_corrected,
// connect, get_parameter, set_parameter, subsources}.
type Source interface {
	Identity() Identity

	// Connect idempotently acquires the underlying device. Returns
	// false if the device is unavailable; this is the only Source
	// failure surfaced to the control plane (spec §4.1).
	Connect() bool

	// Grab pulls the next frame into an internal buffer. May block on
	// I/O; must be cheap enough to call at ~1kHz polling. On
	// transient failure it silently retains the previous buffer.
	Grab()

	// RetrieveCorrected returns the most recent frame with geometric
	// correction applied. Non-blocking; returns an empty Frame of the
	// declared size if nothing has arrived yet.
	RetrieveCorrected() Frame

	GetParameter(name string) (types.Value, error)
	SetParameter(name string, v types.Value) error

	// Subsources enumerates device indices available for this kind.
	Subsources() []int
}
