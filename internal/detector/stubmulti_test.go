package detector

import (
	"testing"

	"github.com/careorion/blobserver/internal/source"
	"github.com/careorion/blobserver/internal/types"
)

func TestStubMultiRequiresTwoSources(t *testing.T) {
	d, err := NewStubMultiDetector(0)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if d.SourceCount() != 2 {
		t.Fatalf("expected source count 2, got %d", d.SourceCount())
	}
	if _, err := d.Detect([]source.Frame{solidFrame(4, 4, true)}); err == nil {
		t.Fatal("expected error for wrong source count")
	}
}

func TestStubMultiDetectMidpoint(t *testing.T) {
	d, _ := NewStubMultiDetector(0)
	w, h := 10, 10
	a := make([]byte, w*h*3)
	b := make([]byte, w*h*3)
	// brightest pixel of a at (2,2), of b at (8,8)
	aOff := (2*w + 2) * 3
	a[aOff], a[aOff+1], a[aOff+2] = 255, 255, 255
	bOff := (8*w + 8) * 3
	b[bOff], b[bOff+1], b[bOff+2] = 255, 255, 255

	blobs, err := d.Detect([]source.Frame{
		{Width: w, Height: h, Pix: a},
		{Width: w, Height: h, Pix: b},
	})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(blobs) != 1 {
		t.Fatalf("expected 1 blob, got %d", len(blobs))
	}
	if got := blobs[0].Measurement().Position; got != (types.Point{X: 5, Y: 5}) {
		t.Fatalf("expected midpoint (5,5), got %+v", got)
	}
}

func TestBrightestPixelEmptyFrame(t *testing.T) {
	if _, ok := brightestPixel(source.Frame{}); ok {
		t.Fatal("expected no brightest pixel for empty frame")
	}
}

func TestStubMultiLifetimeRoundTrip(t *testing.T) {
	d, _ := NewStubMultiDetector(0)
	if err := d.SetParameter("lifetime", types.IntValue(17)); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := d.GetParameter("lifetime")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n, _ := v.AsInt(); n != 17 {
		t.Fatalf("expected lifetime 17 to round trip, got %d", n)
	}
}

func TestStubMultiDeclaresPath(t *testing.T) {
	d, _ := NewStubMultiDetector(0)
	if d.Path() == "" {
		t.Fatal("expected a non-empty declared path")
	}
}
