package detector

import (
	"sync"

	"github.com/careorion/blobserver/internal/source"
	"github.com/careorion/blobserver/internal/tracker"
	"github.com/careorion/blobserver/internal/types"
)

var stubMultiSchema = types.ParamSchema{
	"lifetime": types.KindInt,
}

// StubMultiDetector is a two-source illustrative detector standing in
// for the original's detector_objOnAPlane: a detector that needs more
// than one source connected (e.g. two viewpoints of the same plane)
// before a flow can run. It does not attempt real multi-view geometry;
// it reports the midpoint of both frames' brightest pixel as a single
// measurement, enough to exercise the "sourceCount > 1" path of the
// connect handshake (spec §6, "the specified detector needs more
// sources" rejection) and of the flow engine's multi-source dispatch.
type StubMultiDetector struct {
	mu sync.Mutex

	lifetime int
	tr       *tracker.Tracker
}

func NewStubMultiDetector(arg int) (Detector, error) {
	return &StubMultiDetector{lifetime: tracker.DefaultLifetime, tr: tracker.NewDefault()}, nil
}

func (d *StubMultiDetector) Kind() string    { return "stub-multi" }
func (d *StubMultiDetector) SourceCount() int { return 2 }
func (d *StubMultiDetector) Path() string     { return "/blobserver/objOnAPlane" }

func (d *StubMultiDetector) SetMask(*Mask) {
	// masking two independent views identically isn't meaningful for
	// this illustrative detector; accepted, ignored.
}

func (d *StubMultiDetector) Detect(frames []source.Frame) ([]*tracker.TrackedBlob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(frames) != d.SourceCount() {
		return nil, ErrWrongSourceCount(d.Kind(), d.SourceCount(), len(frames))
	}

	var measurements []types.Measurement
	if p, ok := brightestPixel(frames[0]); ok {
		if q, ok2 := brightestPixel(frames[1]); ok2 {
			measurements = append(measurements, types.Measurement{
				Position: types.Point{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2},
			})
		}
	}
	return d.tr.MatchFrame(measurements)
}

func brightestPixel(f source.Frame) (types.Point, bool) {
	if f.Empty() {
		return types.Point{}, false
	}
	best := -1
	var bx, by int
	for i := 0; i+2 < len(f.Pix) && i/3 < f.Width*f.Height; i += 3 {
		luma := int(f.Pix[i]) + int(f.Pix[i+1]) + int(f.Pix[i+2])
		if luma > best {
			best = luma
			p := i / 3
			bx, by = p%f.Width, p/f.Width
		}
	}
	if best < 0 {
		return types.Point{}, false
	}
	return types.Point{X: bx, Y: by}, true
}

func (d *StubMultiDetector) GetParameter(name string) (types.Value, error) {
	if _, ok := stubMultiSchema[name]; !ok {
		return types.Value{}, unknownParamErr(name)
	}
	return types.IntValue(int64(d.lifetime)), nil
}

func (d *StubMultiDetector) SetParameter(name string, v types.Value) error {
	if err := stubMultiSchema.Validate(name, v); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if name == "lifetime" {
		n, _ := v.AsInt()
		d.lifetime = n
		d.tr = tracker.New(n)
	}
	return nil
}
