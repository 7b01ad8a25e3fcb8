package detector

import (
	"sync"

	"github.com/careorion/blobserver/internal/source"
	"github.com/careorion/blobserver/internal/tracker"
	"github.com/careorion/blobserver/internal/types"
)

// thresholdSchema declares the parameters recognized by
// ThresholdBlobsDetector.
var thresholdSchema = types.ParamSchema{
	"threshold": types.KindInt,
	"minSize":   types.KindInt,
	"lifetime":  types.KindInt,
}

// ThresholdBlobsDetector is a single-source detector that thresholds a
// frame's luma and reports each connected bright region as a blob
// measurement, handed to an internal Tracker for identity maintenance.
// Grounded on the original's detector_lightSpots (referenced, never
// retrieved, by original_source/src/blobserver.cpp's detector
// includes) in spirit: a single-pass brightness threshold producing a
// handful of blob candidates per frame, per
// original_source/include/detector.h's Detector/Blob contract.
type ThresholdBlobsDetector struct {
	mu sync.Mutex

	threshold int
	minSize   int
	lifetime  int
	mask      *Mask
	tr        *tracker.Tracker
}

// NewThresholdBlobsDetector matches registry.Constructor[Detector];
// arg is unused (this kind takes no constructor parameter).
func NewThresholdBlobsDetector(arg int) (Detector, error) {
	return &ThresholdBlobsDetector{
		threshold: 200,
		minSize:   4,
		lifetime:  tracker.DefaultLifetime,
		tr:        tracker.NewDefault(),
	}, nil
}

func (d *ThresholdBlobsDetector) Kind() string    { return "threshold-blobs" }
func (d *ThresholdBlobsDetector) SourceCount() int { return 1 }
func (d *ThresholdBlobsDetector) Path() string     { return "/blobserver/lightSpots" }

func (d *ThresholdBlobsDetector) SetMask(m *Mask) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mask = m
}

func (d *ThresholdBlobsDetector) Detect(frames []source.Frame) ([]*tracker.TrackedBlob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(frames) != d.SourceCount() {
		return nil, ErrWrongSourceCount(d.Kind(), d.SourceCount(), len(frames))
	}
	frame := frames[0]
	if frame.Empty() {
		return d.tr.MatchFrame(nil)
	}

	pix := frame.Pix
	if d.mask != nil {
		masked := make([]byte, len(pix))
		copy(masked, pix)
		d.mask.ApplyParallel(masked, frame.Width, frame.Height, 4)
		pix = masked
	}

	measurements := connectedBrightRegions(pix, frame.Width, frame.Height, d.threshold, d.minSize)
	return d.tr.MatchFrame(measurements)
}

func (d *ThresholdBlobsDetector) GetParameter(name string) (types.Value, error) {
	if _, ok := thresholdSchema[name]; !ok {
		return types.Value{}, unknownParamErr(name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch name {
	case "threshold":
		return types.IntValue(int64(d.threshold)), nil
	case "minSize":
		return types.IntValue(int64(d.minSize)), nil
	case "lifetime":
		return types.IntValue(int64(d.lifetime)), nil
	}
	return types.Value{}, nil
}

func (d *ThresholdBlobsDetector) SetParameter(name string, v types.Value) error {
	if err := thresholdSchema.Validate(name, v); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch name {
	case "threshold":
		n, _ := v.AsInt()
		d.threshold = n
	case "minSize":
		n, _ := v.AsInt()
		d.minSize = n
	case "lifetime":
		n, _ := v.AsInt()
		d.lifetime = n
		d.tr = tracker.New(n)
	}
	return nil
}

// connectedBrightRegions performs a per-pixel, 4-connected flood fill
// over pixels whose luma is at or above threshold, coalescing each
// connected cluster into
// one measurement at its centroid. This stands in for the original's
// OpenCV-based thresholding + contour extraction: same algorithmic
// shape (threshold, connect, centroid, filter-by-size), implemented
// without a vision library since none is present in the example pack.
func connectedBrightRegions(pix []byte, width, height, threshold, minSize int) []types.Measurement {
	bright := make([]bool, width*height)
	for i := 0; i < width*height; i++ {
		off := i * 3
		if off+2 >= len(pix) {
			break
		}
		luma := (int(pix[off]) + int(pix[off+1]) + int(pix[off+2])) / 3
		bright[i] = luma >= threshold
	}

	visited := make([]bool, width*height)
	var measurements []types.Measurement

	var stack []int
	for start := 0; start < width*height; start++ {
		if !bright[start] || visited[start] {
			continue
		}
		stack = stack[:0]
		stack = append(stack, start)
		visited[start] = true

		var sumX, sumY, count int
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := p%width, p/width
			sumX += x
			sumY += y
			count++

			neighbors := [4]int{p - 1, p + 1, p - width, p + width}
			for _, n := range neighbors {
				if n < 0 || n >= width*height || visited[n] || !bright[n] {
					continue
				}
				nx := n % width
				if (n == p-1 || n == p+1) && (nx == 0 || x == 0) && nx != x-1 && nx != x+1 {
					continue
				}
				visited[n] = true
				stack = append(stack, n)
			}
		}

		if count < minSize {
			continue
		}
		measurements = append(measurements, types.Measurement{
			Position: types.Point{X: sumX / count, Y: sumY / count},
			Size:     float64(count),
		})
	}
	return measurements
}

type unknownParamErr string

func (e unknownParamErr) Error() string { return "unknown parameter \"" + string(e) + "\"" }
