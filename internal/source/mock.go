package source

import (
	"math"
	"sync"
	"time"

	"github.com/careorion/blobserver/internal/types"
	"github.com/google/uuid"
)

// mockSchema declares the parameter names recognized by MockSource,
// per spec §4.1's minimum set plus a correction coefficient, which is
// stored and read back but not applied to frames.
var mockSchema = types.ParamSchema{
	"id":         types.KindInt,
	"width":      types.KindInt,
	"height":     types.KindInt,
	"framerate":  types.KindInt,
	"correction": types.KindFloat,
}

// MockSource is a synthetic deterministic frame generator: it moves a
// single bright blob in a circular path so that detectors and trackers
// have something non-trivial to chase in tests. Grounded on the
// teacher's References/orion-prototipe/internal/stream/mock.go
// (ticker-free here since Grab is polled rather than self-ticking,
// per spec §4.1's "grab() ... must be cheap to call at ~1kHz polling").
type MockSource struct {
	mu sync.Mutex

	identity Identity
	width    int
	height   int
	fps      int
	verbose  bool

	connected  bool
	frameCount int
	latest     Frame
	correction float64
}

// NewMockSource constructs a MockSource for the given subsource index.
// Matches registry.Constructor[Source]'s signature.
func NewMockSource(subsource int) (Source, error) {
	return &MockSource{
		identity: Identity{Kind: "mock", Subsource: subsource},
		width:    320,
		height:   240,
		fps:      30,
	}, nil
}

func (s *MockSource) Identity() Identity { return s.identity }

// Connect always succeeds for the mock source; it has no real device
// to fail against (spec §4.1: "connect() -> bool, idempotent").
func (s *MockSource) Connect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return true
}

// Grab synthesizes the next frame: it allocates a fresh zeroed
// width*height BGR24 buffer and draws a 21x21 bright square at the
// blob's current position on it.
func (s *MockSource) Grab() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return
	}
	s.frameCount++
	pix := make([]byte, s.width*s.height*3)

	t := float64(s.frameCount) / float64(s.fps)
	cx := s.width/2 + int(float64(s.width)/4*math.Cos(t))
	cy := s.height/2 + int(float64(s.height)/4*math.Sin(t))
	drawSquare(pix, s.width, s.height, cx, cy, 10)

	s.latest = Frame{Width: s.width, Height: s.height, Pix: pix, At: time.Now(), TraceID: uuid.New()}
}

func drawSquare(pix []byte, w, h, cx, cy, radius int) {
	for y := cy - radius; y <= cy+radius; y++ {
		if y < 0 || y >= h {
			continue
		}
		for x := cx - radius; x <= cx+radius; x++ {
			if x < 0 || x >= w {
				continue
			}
			off := (y*w + x) * 3
			pix[off] = 255
			pix[off+1] = 255
			pix[off+2] = 255
		}
	}
}

// RetrieveCorrected returns the latest frame. Non-blocking; returns an
// empty frame of the declared size if Grab has not yet produced one.
// The "correction" parameter is not applied: the frame is returned
// unchanged whatever its value.
func (s *MockSource) RetrieveCorrected() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest.Pix == nil {
		return Frame{Width: s.width, Height: s.height}
	}
	if s.correction == 0 {
		return s.latest
	}
	return s.latest
}

func (s *MockSource) GetParameter(name string) (types.Value, error) {
	if err := validateKnown(mockSchema, name); err != nil {
		return types.Value{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case "id":
		return types.IntValue(int64(s.identity.Subsource)), nil
	case "width":
		return types.IntValue(int64(s.width)), nil
	case "height":
		return types.IntValue(int64(s.height)), nil
	case "framerate":
		return types.IntValue(int64(s.fps)), nil
	case "correction":
		return types.FloatValue(s.correction), nil
	}
	return types.Value{}, nil
}

func (s *MockSource) SetParameter(name string, v types.Value) error {
	if err := mockSchema.Validate(name, v); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case "width":
		n, _ := v.AsInt()
		s.width = n
	case "height":
		n, _ := v.AsInt()
		s.height = n
	case "framerate":
		n, _ := v.AsInt()
		s.fps = n
	case "correction":
		f, _ := v.AsFloat()
		s.correction = f
	case "id":
		// identity is assigned at construction; accepted but ignored.
	}
	return nil
}

func (s *MockSource) Subsources() []int {
	return []int{0, 1, 2, 3}
}

func validateKnown(schema types.ParamSchema, name string) error {
	if _, ok := schema[name]; !ok {
		return &unknownParamError{name}
	}
	return nil
}

type unknownParamError struct{ name string }

func (e *unknownParamError) Error() string { return "unknown parameter \"" + e.name + "\"" }
