package surface

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/andresmejia3/facetrack/internal/types"
)

func TestSurfaceResizeAndSnapshot(t *testing.T) {
	s := New()
	if w, h := s.Size(); w != 0 || h != 0 {
		t.Fatalf("Expected empty surface, got %dx%d", w, h)
	}

	s.Resize(4, 3)
	s.Update(func(img *image.RGBA) {
		img.SetRGBA(1, 1, color.RGBA{R: 9, A: 255})
	})

	snap := s.Snapshot()
	if snap.Bounds().Dx() != 4 || snap.Bounds().Dy() != 3 {
		t.Fatalf("Unexpected snapshot size %v", snap.Bounds())
	}
	if snap.RGBAAt(1, 1).R != 9 {
		t.Error("Snapshot lost pixel data")
	}

	// Snapshot must be a copy
	snap.SetRGBA(1, 1, color.RGBA{})
	if s.Snapshot().RGBAAt(1, 1).R != 9 {
		t.Error("Mutating the snapshot changed the surface")
	}
}

func TestSurfaceResizeSameSizeKeepsContents(t *testing.T) {
	s := New()
	s.Resize(2, 2)
	s.Update(func(img *image.RGBA) { img.SetRGBA(0, 0, color.RGBA{G: 7, A: 255}) })
	s.Resize(2, 2)
	if s.Snapshot().RGBAAt(0, 0).G != 7 {
		t.Error("Resize to the same size discarded contents")
	}
	s.Resize(3, 2)
	if s.Snapshot().RGBAAt(0, 0).G != 0 {
		t.Error("Resize to a new size should discard contents")
	}
}

func TestSurfaceDrawResizesAndPaints(t *testing.T) {
	s := New()
	s.Draw(5, 4, func(img *image.RGBA) {
		if img.Bounds().Dx() != 5 || img.Bounds().Dy() != 4 {
			t.Errorf("Draw callback got %v, want 5x4", img.Bounds())
		}
		img.SetRGBA(4, 3, color.RGBA{R: 1, A: 255})
	})
	if w, h := s.Size(); w != 5 || h != 4 {
		t.Fatalf("Expected 5x4 after Draw, got %dx%d", w, h)
	}
	if s.Snapshot().RGBAAt(4, 3).R != 1 {
		t.Error("Draw lost pixel data")
	}
}

func TestSurfaceClear(t *testing.T) {
	s := New()
	s.Resize(2, 2)
	s.Update(func(img *image.RGBA) { img.SetRGBA(1, 0, color.RGBA{B: 1, A: 255}) })
	v := s.Version()
	s.Clear()
	if s.Snapshot().RGBAAt(1, 0) != (color.RGBA{}) {
		t.Error("Clear left pixels behind")
	}
	if s.Version() <= v {
		t.Error("Clear did not bump the version")
	}
}

func TestStreamSingleConsumer(t *testing.T) {
	st := NewStream(New(), 0)
	if st.FPS() != DefaultFPS {
		t.Errorf("Expected default fps %d, got %d", DefaultFPS, st.FPS())
	}

	_, release, err := st.Attach()
	if err != nil {
		t.Fatalf("First attach failed: %v", err)
	}
	if _, _, err := st.Attach(); !errors.Is(err, types.ErrStreamBusy) {
		t.Fatalf("Expected ErrStreamBusy, got %v", err)
	}

	release()
	release() // idempotent
	if st.Attached() {
		t.Fatal("Expected stream to be detached")
	}
	_, release2, err := st.Attach()
	if err != nil {
		t.Fatalf("Re-attach failed: %v", err)
	}
	release2()
}

func TestStreamPublishKeepsNewest(t *testing.T) {
	st := NewStream(New(), 30)
	frames, release, err := st.Attach()
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	first := image.NewRGBA(image.Rect(0, 0, 1, 1))
	second := image.NewRGBA(image.Rect(0, 0, 2, 2))
	st.Publish(first)
	st.Publish(second)

	got := <-frames
	if got != second {
		t.Errorf("Expected newest frame, got %v", got.Bounds())
	}
	if _, dropped := st.Stats(); dropped != 1 {
		t.Errorf("Expected 1 dropped frame, got %d", dropped)
	}
}

func TestStreamCapturesSurface(t *testing.T) {
	s := New()
	st := NewStream(s, 100)
	frames, release, err := st.Attach()
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if err := st.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer st.Stop()

	// An unsized surface is never captured
	select {
	case <-frames:
		t.Fatal("Captured a frame from a 0x0 surface")
	case <-time.After(50 * time.Millisecond):
	}

	s.Resize(8, 8)
	select {
	case f := <-frames:
		if f.Bounds().Dx() != 8 {
			t.Errorf("Expected 8px wide frame, got %v", f.Bounds())
		}
	case <-time.After(time.Second):
		t.Fatal("No frame captured after resize")
	}
}
