package detector

import (
	"testing"

	"github.com/careorion/blobserver/internal/source"
	"github.com/careorion/blobserver/internal/types"
)

func solidFrame(w, h int, bright bool) source.Frame {
	pix := make([]byte, w*h*3)
	if bright {
		for i := range pix {
			pix[i] = 255
		}
	}
	return source.Frame{Width: w, Height: h, Pix: pix}
}

func TestThresholdDetectorFindsOneBlob(t *testing.T) {
	d, err := NewThresholdBlobsDetector(0)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	w, h := 20, 20
	pix := make([]byte, w*h*3)
	for y := 8; y < 12; y++ {
		for x := 8; x < 12; x++ {
			off := (y*w + x) * 3
			pix[off], pix[off+1], pix[off+2] = 255, 255, 255
		}
	}
	blobs, err := d.Detect([]source.Frame{{Width: w, Height: h, Pix: pix}})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(blobs) != 1 {
		t.Fatalf("expected 1 blob, got %d", len(blobs))
	}
}

func TestThresholdDetectorEmptyFrameYieldsNoBlobs(t *testing.T) {
	d, _ := NewThresholdBlobsDetector(0)
	blobs, err := d.Detect([]source.Frame{{Width: 10, Height: 10}})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(blobs) != 0 {
		t.Fatalf("expected 0 blobs for empty frame, got %d", len(blobs))
	}
}

func TestThresholdDetectorWrongSourceCount(t *testing.T) {
	d, _ := NewThresholdBlobsDetector(0)
	_, err := d.Detect(nil)
	if err == nil {
		t.Fatal("expected error for wrong source count")
	}
}

func TestThresholdDetectorSetGetParameter(t *testing.T) {
	d, _ := NewThresholdBlobsDetector(0)
	if err := d.SetParameter("threshold", types.IntValue(220)); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := d.GetParameter("threshold")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n, _ := v.AsInt(); n != 220 {
		t.Fatalf("expected 220, got %d", n)
	}

	if err := d.SetParameter("unknownThing", types.IntValue(1)); err == nil {
		t.Fatal("expected error for unknown parameter")
	}
}

func TestThresholdDetectorLifetimeRoundTrip(t *testing.T) {
	d, _ := NewThresholdBlobsDetector(0)
	if err := d.SetParameter("lifetime", types.IntValue(42)); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := d.GetParameter("lifetime")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n, _ := v.AsInt(); n != 42 {
		t.Fatalf("expected lifetime 42 to round trip, got %d", n)
	}
}

func TestThresholdDetectorDeclaresPath(t *testing.T) {
	d, _ := NewThresholdBlobsDetector(0)
	if d.Path() == "" {
		t.Fatal("expected a non-empty declared path")
	}
}

func TestMaskResizeSmallerToLarger(t *testing.T) {
	// 2x2 mask, left column masked out, right column clear.
	mask := &Mask{Width: 2, Height: 2, Data: []byte{0, 255, 0, 255}}
	resized := mask.Resize(4, 4)
	if resized.Width != 4 || resized.Height != 4 {
		t.Fatalf("expected resized dims 4x4, got %dx%d", resized.Width, resized.Height)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := byte(255)
			if x < 2 {
				want = 0
			}
			if got := resized.Data[y*4+x]; got != want {
				t.Fatalf("pixel (%d,%d): want %d, got %d", x, y, want, got)
			}
		}
	}
}

func TestMaskResizeLargerToSmaller(t *testing.T) {
	mask := &Mask{Width: 4, Height: 4, Data: make([]byte, 16)}
	for i := range mask.Data {
		mask.Data[i] = 255
	}
	resized := mask.Resize(2, 2)
	if resized.Width != 2 || resized.Height != 2 || len(resized.Data) != 4 {
		t.Fatalf("expected resized dims 2x2 with 4 bytes, got %dx%d len=%d", resized.Width, resized.Height, len(resized.Data))
	}
}

func TestMaskApplyParallelResizesSmallerMask(t *testing.T) {
	w, h := 4, 4
	pix := solidFrame(w, h, true).Pix
	// 2x2 mask: left column masked out, right column clear — should
	// nearest-neighbour upscale to cover the whole 4x4 frame, not leave
	// the right half of the frame unmasked.
	mask := &Mask{Width: 2, Height: 2, Data: []byte{0, 255, 0, 255}}
	mask.ApplyParallel(pix, w, h, 2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := (y*w + x) * 3
			wantZero := x < 2
			gotZero := pix[off] == 0
			if gotZero != wantZero {
				t.Fatalf("pixel (%d,%d): expected zeroed=%v, got pix=%d", x, y, wantZero, pix[off])
			}
		}
	}
}

func TestMaskZeroesPixels(t *testing.T) {
	w, h := 4, 4
	pix := solidFrame(w, h, true).Pix
	mask := &Mask{Width: w, Height: h, Data: make([]byte, w*h)}
	// mask out the top half
	for y := 0; y < 2; y++ {
		for x := 0; x < w; x++ {
			mask.Data[y*w+x] = 0
		}
	}
	for y := 2; y < h; y++ {
		for x := 0; x < w; x++ {
			mask.Data[y*w+x] = 255
		}
	}
	mask.ApplyParallel(pix, w, h, 2)
	for y := 0; y < 2; y++ {
		off := (y*w + 0) * 3
		if pix[off] != 0 {
			t.Fatalf("expected masked row %d zeroed, got %v", y, pix[off])
		}
	}
	for y := 2; y < h; y++ {
		off := (y*w + 0) * 3
		if pix[off] != 255 {
			t.Fatalf("expected unmasked row %d untouched, got %v", y, pix[off])
		}
	}
}
