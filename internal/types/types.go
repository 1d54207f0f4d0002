package types

import "image"

// LandmarkCount is the number of points the landmark model returns per face.
const LandmarkCount = 68

// Box is a face bounding box in frame pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect converts the box to integer image coordinates.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height))
}

// Point is a 2D landmark position in frame pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is one face found in one frame. It is superseded by the next poll and never persisted.
type Detection struct {
	Box       Box     `json:"box"`
	Landmarks []Point `json:"landmarks"`
	Score     float64 `json:"score"`
}

// FrameTask represents a single frame sent to a worker for processing
type FrameTask struct {
	Index int
	Data  []byte
}

// ErrorResult captures the error object returned by the worker on failure
type ErrorResult struct {
	Error string `json:"error"`
}

// FrameSize reports the dimensions of a frame, treating nil as 0x0.
func FrameSize(img image.Image) (int, int) {
	if img == nil {
		return 0, 0
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}
