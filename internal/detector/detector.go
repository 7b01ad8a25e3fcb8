// Package detector defines the Detector contract (spec §4.2): a
// stateful frame consumer that turns one or more corrected frames into
// a list of blob measurements and, internally, a list of tracked
// blobs. Grounded on
// _examples/original_source/include/detector.h's Detector base class
// and the two concrete detectors it ships (detector_lightSpots,
// detector_objOnAPlane), reimplemented here as the illustrative
// "threshold-blobs" and "stub-multi" kinds.
package detector

import (
	"fmt"
	"sync"

	"github.com/careorion/blobserver/internal/source"
	"github.com/careorion/blobserver/internal/tracker"
	"github.com/careorion/blobserver/internal/types"
)

// Detector is the capability set spec §9 calls for in place of a
// polymorphic Detector hierarchy: {detect, set_parameter,
// get_parameter, source_count, mask}.
type Detector interface {
	// Kind is the registered class name, used in Detect's error
	// messages.
	Kind() string

	// Path is this detector kind's declared message-bus path, used as
	// the per-blob message path in place of a single hardcoded literal
	// (spec.md: "one detector-specific message per blob at the
	// detector's declared path"; original_source/include/detector.h's
	// getOscPath(), set per-subclass e.g. detector_stitch.cpp's
	// mOscPath = "/blobserver/stitch").
	Path() string

	// SourceCount is the number of sources this detector instance needs
	// connected before a flow using it can run (spec §4.2: "detectors
	// declare how many sources they require").
	SourceCount() int

	// Detect consumes exactly SourceCount() frames and returns the
	// blobs tracked this iteration, in predict-assign-age-spawn order.
	Detect(frames []source.Frame) ([]*tracker.TrackedBlob, error)

	GetParameter(name string) (types.Value, error)
	SetParameter(name string, v types.Value) error

	// SetMask installs a per-pixel mask applied to incoming frames
	// before detection; nil clears it. A kind may accept the mask and
	// ignore it: ThresholdBlobsDetector applies it, StubMultiDetector
	// does not.
	SetMask(mask *Mask)
}

// Mask is a single-channel (one byte per pixel) gate applied to a
// frame before detection: pixels where Data[i] == 0 are zeroed.
type Mask struct {
	Width  int
	Height int
	Data   []byte
}

// Resize nearest-neighbour-scales the mask to (width, height), matching
// spec.md's "resize the mask (nearest-neighbour) to match input
// dimensions" requirement for the base mask facility. Returns m
// unchanged if it's already the target size, so the common case (mask
// loaded at the frame's own resolution) costs nothing.
func (m *Mask) Resize(width, height int) *Mask {
	if m == nil {
		return nil
	}
	if width == m.Width && height == m.Height {
		return m
	}
	data := make([]byte, width*height)
	for y := 0; y < height; y++ {
		sy := y * m.Height / height
		for x := 0; x < width; x++ {
			sx := x * m.Width / width
			data[y*width+x] = m.Data[sy*m.Width+sx]
		}
	}
	return &Mask{Width: width, Height: height, Data: data}
}

// ApplyParallel resizes the mask (nearest-neighbour) to the frame's
// declared dimensions if needed, then zeroes masked-out pixels of a
// BGR24 frame buffer, splitting the row range across goroutines.
// Grounded on original_source/include/detector.h's
// Parallel_Mask<PixType>, a cv::ParallelLoopBody dispatched across row
// ranges; workerCount plays the role OpenCV's parallel_for_ plays
// there.
func (m *Mask) ApplyParallel(pix []byte, width, height, workerCount int) {
	if m == nil || len(m.Data) == 0 {
		return
	}
	scaled := m.Resize(width, height)
	if workerCount < 1 {
		workerCount = 1
	}
	rowsPerWorker := (height + workerCount - 1) / workerCount

	var wg sync.WaitGroup
	for start := 0; start < height; start += rowsPerWorker {
		end := start + rowsPerWorker
		if end > height {
			end = height
		}
		wg.Add(1)
		go func(rowStart, rowEnd int) {
			defer wg.Done()
			for y := rowStart; y < rowEnd; y++ {
				maskRow := y * width
				pixRow := y * width * 3
				for x := 0; x < width; x++ {
					if scaled.Data[maskRow+x] == 0 {
						off := pixRow + x*3
						pix[off], pix[off+1], pix[off+2] = 0, 0, 0
					}
				}
			}
		}(start, end)
	}
	wg.Wait()
}

// ErrWrongSourceCount is returned by Detect when the caller passes a
// frame count that doesn't match SourceCount, mirroring the original's
// "The specified detector needs more sources" connect-time check,
// applied defensively again at detect time.
func ErrWrongSourceCount(kind string, want, got int) error {
	return fmt.Errorf("detector %q needs %d source(s), got %d", kind, want, got)
}
