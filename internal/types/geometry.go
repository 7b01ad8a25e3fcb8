package types

// Point is an integer pixel-space 2D coordinate, used for blob
// position and velocity alike (spec §3: "position (2D integer pixel
// coords), velocity (2D)").
type Point struct {
	X int
	Y int
}

// Color is a 3-channel 8-bit dominant colour sample.
type Color struct {
	R, G, B uint8
}

// Measurement is one detected region in the current frame, before any
// tracking identity has been assigned (spec §3: "Blob Measurement").
type Measurement struct {
	Position    Point
	Velocity    Point
	Color       Color
	Orientation float64 // radians, or the detector's chosen unit
	Size        float64
}
