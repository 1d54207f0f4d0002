// Package camera acquires a live frame source and maps platform failures onto a small,
// user-recoverable error taxonomy.
package camera

import (
	"context"
	"image"
	"log/slog"
	"sync/atomic"
	"time"
)

// FacingUser requests the user-facing camera.
const FacingUser = "user"

// Constraints describes the requested capture format. Zero values mean "any".
type Constraints struct {
	Width      int
	Height     int
	FacingMode string
}

var (
	// Preferred is the first acquisition attempt: video only, 640x480, user facing.
	Preferred = Constraints{Width: 640, Height: 480, FacingMode: FacingUser}
	// Relaxed is the one-shot fallback after an overconstrained failure.
	Relaxed = Constraints{}
)

// Source yields the most recent camera frame.
type Source interface {
	// Frame returns the latest frame, or nil while the camera is still warming up.
	Frame() image.Image
	// Close releases the hardware. Safe to call more than once.
	Close() error
}

// Opener acquires a Source for a set of constraints.
type Opener interface {
	Open(ctx context.Context, c Constraints) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, c Constraints) (Source, error)

func (f OpenerFunc) Open(ctx context.Context, c Constraints) (Source, error) { return f(ctx, c) }

// Acquire opens the camera with Preferred constraints. If they cannot be satisfied it retries
// exactly once with Relaxed constraints. Failures are returned as *CameraError.
func Acquire(ctx context.Context, opener Opener, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	src, err := opener.Open(ctx, Preferred)
	if err == nil {
		return src, nil
	}

	kind := Classify(err)
	if kind != Overconstrained {
		logger.WarnContext(ctx, "camera acquisition failed", "kind", kind.String(), slog.Any("error", err))
		return nil, &CameraError{Kind: kind, Err: err}
	}

	logger.InfoContext(ctx, "camera constraints not supported, retrying with relaxed constraints", slog.Any("error", err))
	src, ferr := opener.Open(ctx, Relaxed)
	if ferr != nil {
		logger.WarnContext(ctx, "camera fallback acquisition failed", slog.Any("error", ferr))
		return nil, &CameraError{Kind: Classify(ferr), Fallback: true, Err: ferr}
	}
	return src, nil
}

// FrameBuffer provides lock-free access to the latest frame.
// Capture writes at max speed, the detection loop reads when ready.
type FrameBuffer struct {
	latest      atomic.Pointer[image.Image]
	frameCount  atomic.Uint64
	lastFrameAt atomic.Int64 // Unix nano timestamp
}

// Write stores a new frame (called by the capture goroutine). It never blocks.
func (fb *FrameBuffer) Write(frame image.Image) {
	fb.latest.Store(&frame)
	fb.frameCount.Add(1)
	fb.lastFrameAt.Store(time.Now().UnixNano())
}

// Read returns the latest frame, or nil if none has arrived yet.
func (fb *FrameBuffer) Read() image.Image {
	p := fb.latest.Load()
	if p == nil {
		return nil
	}
	return *p
}

// FrameCount returns total frames captured.
func (fb *FrameBuffer) FrameCount() uint64 {
	return fb.frameCount.Load()
}

// LastFrameTime returns when the last frame was captured.
func (fb *FrameBuffer) LastFrameTime() time.Time {
	nanos := fb.lastFrameAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}
