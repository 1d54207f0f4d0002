// Package surface holds the drawable frame the detection loop renders into and exposes it
// as a capturable stream of snapshots.
package surface

import (
	"image"
	"sync"
)

// Surface is a resizable RGBA canvas shared between the detection loop (writer) and the
// capture stream (reader).
type Surface struct {
	mu      sync.RWMutex
	img     *image.RGBA
	version uint64
}

// New returns an empty 0x0 surface.
func New() *Surface {
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, 0, 0))}
}

// Resize matches the surface to w x h. Like a canvas, changing the size discards the contents.
func (s *Surface) Resize(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizeLocked(w, h)
}

// Draw resizes the surface to w x h and runs fn on it as one step, so readers never observe
// the blank canvas left by a resize.
func (s *Surface) Draw(w, h int, fn func(img *image.RGBA)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizeLocked(w, h)
	fn(s.img)
	s.version++
}

func (s *Surface) resizeLocked(w, h int) {
	b := s.img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return
	}
	s.img = image.NewRGBA(image.Rect(0, 0, w, h))
	s.version++
}

// Update runs fn with exclusive access to the pixels.
func (s *Surface) Update(fn func(img *image.RGBA)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.img)
	s.version++
}

// Clear zeroes every pixel, keeping the current size.
func (s *Surface) Clear() {
	s.Update(func(img *image.RGBA) {
		clear(img.Pix)
	})
}

// Snapshot returns a copy of the current pixels.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := image.NewRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

// Size reports the current dimensions.
func (s *Surface) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Version increments on every mutation. Useful for detecting fresh content.
func (s *Surface) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
