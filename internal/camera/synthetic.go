package camera

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

// SyntheticOpener produces a moving test pattern instead of real camera frames.
// Useful on machines without a webcam and for exercising the pipeline end to end.
type SyntheticOpener struct {
	// WarmupFrames is the number of initial reads that return no frame.
	WarmupFrames int
}

func (o SyntheticOpener) Open(ctx context.Context, c Constraints) (Source, error) {
	w, h := c.Width, c.Height
	if w <= 0 || h <= 0 {
		w, h = Preferred.Width, Preferred.Height
	}
	return &syntheticSource{width: w, height: h, warmup: int64(o.WarmupFrames)}, nil
}

type syntheticSource struct {
	width, height int
	warmup        int64
	reads         atomic.Int64
	closed        atomic.Bool
}

func (s *syntheticSource) Frame() image.Image {
	if s.closed.Load() {
		return nil
	}
	n := s.reads.Add(1)
	if n <= s.warmup {
		return nil
	}
	return generatePattern(s.width, s.height, int(n))
}

func (s *syntheticSource) Close() error {
	s.closed.Store(true)
	return nil
}

// generatePattern draws a gradient with a block that drifts across the frame.
func generatePattern(width, height, frameNum int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	blockX := (frameNum * 4) % width
	for y := 0; y < height; y++ {
		gradient := float64(y) / float64(height)
		for x := 0; x < width; x++ {
			r := uint8(135 * (1 - gradient))
			g := uint8(206 * (1 - gradient))
			b := uint8(250 * (1 - gradient))
			if x >= blockX && x < blockX+40 && y >= height/3 && y < height/3+40 {
				r, g, b = 240, 200, 170
			}
			img.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}
	return img
}

// StaticSource serves whatever frame was last set. It counts Close calls so callers can verify
// the camera was released.
type StaticSource struct {
	mu     sync.Mutex
	frame  image.Image
	closes int
}

// NewStaticSource returns a source serving frame (which may be nil to simulate warm-up).
func NewStaticSource(frame image.Image) *StaticSource {
	return &StaticSource{frame: frame}
}

// SetFrame replaces the served frame.
func (s *StaticSource) SetFrame(frame image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
}

func (s *StaticSource) Frame() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *StaticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Closes reports how many times Close was called.
func (s *StaticSource) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
