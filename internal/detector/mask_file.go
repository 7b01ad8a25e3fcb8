package detector

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// LoadMaskFile decodes an image file into a Mask, converting it to
// single-channel grayscale. Mirrors the original's global "--mask"
// CLI flag (original_source/src/blobserver.cpp:
// "cv::imread(gMaskFilename, CV_LOAD_IMAGE_GRAYSCALE)"); Go's
// image/* stdlib codecs stand in for OpenCV's imread since no image-
// decoding library appears anywhere in the example pack and this is
// a one-shot startup load, not a hot-path concern.
func LoadMaskFile(path string) (*Mask, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("detector: open mask file: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("detector: decode mask file: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	data := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			luma := (r + g + b) / 3
			data[y*width+x] = byte(luma >> 8)
		}
	}
	return &Mask{Width: width, Height: height, Data: data}, nil
}
