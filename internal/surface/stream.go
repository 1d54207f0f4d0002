package surface

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/facetrack/internal/schedule"
	"github.com/andresmejia3/facetrack/internal/types"
)

// DefaultFPS is the capture rate of the stream, independent of the detection cadence.
const DefaultFPS = 30

// Stream samples a Surface at a fixed rate and hands the snapshots to at most one attached
// consumer. Between detection ticks the same content is captured repeatedly.
type Stream struct {
	surface *Surface
	fps     int
	task    *schedule.Task

	mu   sync.Mutex
	sink chan *image.RGBA

	captured atomic.Uint64
	dropped  atomic.Uint64
}

// NewStream builds a stream over s. fps <= 0 selects DefaultFPS.
func NewStream(s *Surface, fps int) *Stream {
	if fps <= 0 {
		fps = DefaultFPS
	}
	st := &Stream{surface: s, fps: fps}
	st.task = schedule.Every(time.Second/time.Duration(fps), st.capture)
	return st
}

// Start begins capturing.
func (st *Stream) Start(ctx context.Context) error {
	return st.task.Start(ctx)
}

// Stop halts capturing. Attached consumers stay attached but receive no new frames.
func (st *Stream) Stop() {
	st.task.Stop()
}

// FPS returns the capture rate.
func (st *Stream) FPS() int { return st.fps }

// Attach registers the single consumer of the stream. The returned release function detaches
// it and closes the channel; it is safe to call more than once.
func (st *Stream) Attach() (<-chan *image.RGBA, func(), error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sink != nil {
		return nil, nil, types.ErrStreamBusy
	}
	sink := make(chan *image.RGBA, 1)
	st.sink = sink

	var once sync.Once
	release := func() {
		once.Do(func() {
			st.mu.Lock()
			defer st.mu.Unlock()
			if st.sink == sink {
				st.sink = nil
			}
			close(sink)
		})
	}
	return sink, release, nil
}

// Attached reports whether a consumer currently holds the stream.
func (st *Stream) Attached() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sink != nil
}

// Stats returns the number of captured and dropped frames.
func (st *Stream) Stats() (captured, dropped uint64) {
	return st.captured.Load(), st.dropped.Load()
}

func (st *Stream) capture(ctx context.Context) {
	// Nothing to capture until the loop has sized the surface
	if w, h := st.surface.Size(); w == 0 || h == 0 {
		return
	}
	st.Publish(st.surface.Snapshot())
}

// Publish hands frame to the attached consumer, replacing an unconsumed older frame.
func (st *Stream) Publish(frame *image.RGBA) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.captured.Add(1)
	if st.sink == nil {
		return
	}

	select {
	case st.sink <- frame:
		return
	default:
	}

	// Consumer is behind: drop the stale frame so the newest one wins
	select {
	case <-st.sink:
		st.dropped.Add(1)
	default:
	}
	select {
	case st.sink <- frame:
	default:
		st.dropped.Add(1)
	}
}
