// Package tracker runs the detection loop: it polls the camera at a fixed cadence, asks the
// detector for faces, and renders the annotated frame onto a surface that is exposed as a stream.
package tracker

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/facetrack/internal/camera"
	"github.com/andresmejia3/facetrack/internal/overlay"
	"github.com/andresmejia3/facetrack/internal/schedule"
	"github.com/andresmejia3/facetrack/internal/surface"
	"github.com/andresmejia3/facetrack/internal/types"
)

// DefaultInterval is the detection cadence, decoupled from the capture rate.
const DefaultInterval = 100 * time.Millisecond

// State is the readiness of the detection loop.
type State int

const (
	NotReady State = iota
	Ready
	Detecting
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Detecting:
		return "detecting"
	default:
		return "not ready"
	}
}

// Detector is the inference side of the loop.
type Detector interface {
	Loaded() bool
	Detect(ctx context.Context, frame image.Image) ([]types.Detection, error)
}

// Session is a point-in-time copy of the controller state for display.
type Session struct {
	ModelLoaded bool
	Detecting   bool
	Detections  []types.Detection
	LastError   error
}

// Stats counts tick outcomes since the controller was created.
type Stats struct {
	Ticks      uint64
	Warmup     uint64 // frames skipped because the camera had no picture yet
	Overlapped uint64 // ticks skipped because the previous one was still running
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithInterval sets the detection cadence. Non-positive values keep DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithFPS(fps int) Option { return func(c *Controller) { c.fps = fps } }

// Controller owns the camera source, the detection poll and the annotated surface.
type Controller struct {
	detector Detector
	logger   *slog.Logger
	interval time.Duration
	fps      int

	surface *surface.Surface
	stream  *surface.Stream
	task    *schedule.Task

	mu          sync.Mutex
	source      camera.Source
	modelLoaded bool
	detecting   bool
	detections  []types.Detection
	lastErr     error

	inFlight   atomic.Bool
	ticks      atomic.Uint64
	warmup     atomic.Uint64
	overlapped atomic.Uint64
}

// New returns a NotReady controller around det. Camera and model readiness are reported later.
func New(det Detector, opts ...Option) *Controller {
	c := &Controller{
		detector: det,
		logger:   slog.Default(),
		interval: DefaultInterval,
		surface:  surface.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stream = surface.NewStream(c.surface, c.fps)
	c.task = schedule.Every(c.interval, c.Tick)
	return c
}

// Open starts exposing the surface as a capture stream.
func (c *Controller) Open(ctx context.Context) error {
	if err := c.stream.Start(ctx); err != nil && !errors.Is(err, schedule.ErrRunning) {
		return err
	}
	return nil
}

// CameraReady hands the controller its frame source. It may be called before or after ModelReady.
func (c *Controller) CameraReady(src camera.Source) {
	c.mu.Lock()
	prev := c.source
	c.source = src
	var ce *camera.CameraError
	if errors.As(c.lastErr, &ce) {
		c.lastErr = nil
	}
	c.mu.Unlock()

	if prev != nil && prev != src {
		prev.Close()
	}
	c.logger.Info("camera ready", "state", c.State().String())
}

// CameraFailed records a camera acquisition failure as the session error.
func (c *Controller) CameraFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}

// ModelReady marks the model as loaded. The flag only ever goes from false to true.
func (c *Controller) ModelReady() error {
	if !c.detector.Loaded() {
		return types.ErrModelNotLoaded
	}
	c.mu.Lock()
	c.modelLoaded = true
	var mle *types.ModelLoadError
	if errors.As(c.lastErr, &mle) {
		c.lastErr = nil
	}
	c.mu.Unlock()

	c.logger.Info("model ready", "state", c.State().String())
	return nil
}

// ModelFailed records a model load failure. Detection stays unavailable until the model is reloaded.
func (c *Controller) ModelFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.detecting:
		return Detecting
	case c.source != nil && c.modelLoaded:
		return Ready
	default:
		return NotReady
	}
}

// StartDetection begins polling. From NotReady it fails with ErrModelNotLoaded.
func (c *Controller) StartDetection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch st := c.stateLocked(); st {
	case NotReady:
		return types.ErrModelNotLoaded
	case Detecting:
		return &types.InvalidTransitionError{Op: "start detection", From: st.String()}
	}

	if err := c.task.Start(ctx); err != nil {
		return err
	}
	c.detecting = true
	c.logger.InfoContext(ctx, "detection started", "interval", c.interval)
	return nil
}

// StopDetection cancels the poll, then clears the surface and the latest detections.
// It is safe to call from any state.
func (c *Controller) StopDetection() {
	// Cancel first so no tick mutates state after this point
	c.task.Stop()

	c.mu.Lock()
	was := c.detecting
	c.detecting = false
	c.detections = nil
	c.mu.Unlock()

	c.surface.Clear()
	if was {
		c.logger.Info("detection stopped")
	}
}

// Tick runs one detection pass. At most one pass is in flight at a time; an overlapping call
// returns immediately.
func (c *Controller) Tick(ctx context.Context) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.overlapped.Add(1)
		return
	}
	defer c.inFlight.Store(false)
	c.ticks.Add(1)

	c.mu.Lock()
	src, detecting := c.source, c.detecting
	c.mu.Unlock()
	if !detecting || src == nil {
		return
	}

	frame := src.Frame()
	w, h := types.FrameSize(frame)
	if w == 0 || h == 0 {
		c.warmup.Add(1)
		return
	}

	dets, err := c.detector.Detect(ctx, frame)
	if err != nil {
		c.logger.WarnContext(ctx, "detection unavailable", slog.Any("error", err))
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		return
	}
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	if !c.detecting {
		c.mu.Unlock()
		return
	}
	c.detections = dets
	c.mu.Unlock()

	// Frame and overlay land together so the stream never captures one without the other.
	c.surface.Draw(w, h, func(img *image.RGBA) { overlay.Render(img, frame, dets) })
}

func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	dets := make([]types.Detection, len(c.detections))
	copy(dets, c.detections)
	return Session{
		ModelLoaded: c.modelLoaded,
		Detecting:   c.detecting,
		Detections:  dets,
		LastError:   c.lastErr,
	}
}

// Stream returns the capture stream over the annotated surface.
func (c *Controller) Stream() *surface.Stream { return c.stream }

func (c *Controller) Surface() *surface.Surface { return c.surface }

func (c *Controller) Stats() Stats {
	return Stats{Ticks: c.ticks.Load(), Warmup: c.warmup.Load(), Overlapped: c.overlapped.Load()}
}

// Close stops detection and the stream and releases the camera, whatever the current state.
func (c *Controller) Close() error {
	c.StopDetection()
	c.stream.Stop()

	c.mu.Lock()
	src := c.source
	c.source = nil
	c.mu.Unlock()

	if src == nil {
		return nil
	}
	return src.Close()
}
