package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andresmejia3/facetrack/internal/surface"
	"github.com/andresmejia3/facetrack/internal/types"
)

// fakeEncoder emits one chunk per Flush that saw new frames, plus a fixed trailer on Close.
type fakeEncoder struct {
	mu      sync.Mutex
	frames  int
	pending int
	flushes int
	trailer string
	closed  bool
}

func (e *fakeEncoder) WriteFrame(frame *image.RGBA) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames++
	e.pending++
	return nil
}

func (e *fakeEncoder) Flush() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == 0 {
		return nil, nil
	}
	e.flushes++
	e.pending = 0
	return []byte(fmt.Sprintf("[chunk%d]", e.flushes)), nil
}

func (e *fakeEncoder) Close() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return []byte(e.trailer), nil
}

func (e *fakeEncoder) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

type savedCall struct {
	payload  []byte
	name     string
	duration float64
}

type fakeArchive struct {
	saved []savedCall
	err   error
}

func (a *fakeArchive) Save(ctx context.Context, payload []byte, name string, duration float64) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.saved = append(a.saved, savedCall{payload, name, duration})
	return fmt.Sprintf("video_%d", len(a.saved)), nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	rec     *Recorder
	enc     *fakeEncoder
	archive *fakeArchive
	clock   *fakeClock
	stream  *surface.Stream
}

func newHarness(t *testing.T, trailer string) *harness {
	t.Helper()
	h := &harness{
		enc:     &fakeEncoder{trailer: trailer},
		archive: &fakeArchive{},
		clock:   &fakeClock{t: time.Date(2024, 5, 1, 13, 45, 10, 0, time.UTC)},
		stream:  surface.NewStream(surface.New(), 30),
	}
	factory := func(ctx context.Context) (Encoder, error) { return h.enc, nil }
	// Long periods keep the timers out of the way; tests flush explicitly.
	h.rec = New(factory, h.archive,
		WithClock(h.clock.Now),
		WithTickPeriod(time.Hour),
		WithChunkPeriod(time.Hour),
	)
	t.Cleanup(h.rec.Clear)
	return h
}

// feed publishes a frame and waits until the encoder has consumed it.
func (h *harness) feed(t *testing.T) {
	t.Helper()
	want := h.enc.Frames() + 1
	h.stream.Publish(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	deadline := time.Now().Add(2 * time.Second)
	for h.enc.Frames() < want {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the encoder to receive a frame")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPauseWhileIdleIsRejected(t *testing.T) {
	h := newHarness(t, "")

	var ite *types.InvalidTransitionError
	if err := h.rec.Pause(); !errors.As(err, &ite) {
		t.Fatalf("Expected InvalidTransitionError, got %v", err)
	}
	if s := h.rec.Session(); s.State != Idle || s.ElapsedSeconds != 0 || s.LastError != nil {
		t.Errorf("Pause must not change state, got %+v", s)
	}
}

func TestInvalidTransitions(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	var ite *types.InvalidTransitionError
	if err := h.rec.Resume(); !errors.As(err, &ite) {
		t.Errorf("Resume from Idle: expected InvalidTransitionError, got %v", err)
	}
	if err := h.rec.Start(ctx, h.stream); err != nil {
		t.Fatal(err)
	}
	if err := h.rec.Resume(); !errors.As(err, &ite) {
		t.Errorf("Resume while recording: expected InvalidTransitionError, got %v", err)
	}
	h.rec.Stop()
	if err := h.rec.Pause(); !errors.As(err, &ite) {
		t.Errorf("Pause after stop: expected InvalidTransitionError, got %v", err)
	}
}

func TestStartWithoutStream(t *testing.T) {
	h := newHarness(t, "")
	if err := h.rec.Start(context.Background(), nil); !errors.Is(err, types.ErrNoStream) {
		t.Fatalf("Expected ErrNoStream, got %v", err)
	}
	if s := h.rec.Session(); s.State != Idle || !errors.Is(s.LastError, types.ErrNoStream) {
		t.Errorf("Unexpected session %+v", s)
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	if err := h.rec.Start(ctx, h.stream); err != nil {
		t.Fatal(err)
	}

	var ite *types.InvalidTransitionError
	if err := h.rec.Start(ctx, h.stream); !errors.As(err, &ite) {
		t.Errorf("Expected InvalidTransitionError from the same recorder, got %v", err)
	}

	other := New(func(ctx context.Context) (Encoder, error) { return &fakeEncoder{}, nil }, h.archive)
	if err := other.Start(ctx, h.stream); !errors.Is(err, types.ErrStreamBusy) {
		t.Errorf("Expected ErrStreamBusy from a second recorder, got %v", err)
	}
	if other.State() != Idle {
		t.Errorf("Rejected recorder must stay idle, got %v", other.State())
	}
}

func TestDurationExcludesPause(t *testing.T) {
	h := newHarness(t, "")
	if err := h.rec.Start(context.Background(), h.stream); err != nil {
		t.Fatal(err)
	}

	h.clock.Advance(2 * time.Second)
	if err := h.rec.Pause(); err != nil {
		t.Fatal(err)
	}
	atPause := h.rec.Session().ElapsedSeconds

	h.clock.Advance(5 * time.Second)
	if got := h.rec.Session().ElapsedSeconds; got != atPause {
		t.Errorf("Elapsed moved while paused: %v -> %v", atPause, got)
	}
	if err := h.rec.Resume(); err != nil {
		t.Fatal(err)
	}
	if got := h.rec.Session().ElapsedSeconds; got != atPause {
		t.Errorf("Resume must continue from %v, got %v", atPause, got)
	}

	h.clock.Advance(1 * time.Second)
	h.rec.Stop()
	if got := h.rec.Session().ElapsedSeconds; math.Abs(got-3.0) > 1e-9 {
		t.Errorf("Expected 3s recorded, got %v", got)
	}
}

func TestSaveWithoutChunks(t *testing.T) {
	h := newHarness(t, "")

	if _, err := h.rec.Save(context.Background(), "x"); !errors.Is(err, types.ErrEmptyRecording) {
		t.Fatalf("Expected ErrEmptyRecording from Idle, got %v", err)
	}

	h.rec.Start(context.Background(), h.stream)
	h.rec.Stop()
	if _, err := h.rec.Save(context.Background(), "x"); !errors.Is(err, types.ErrEmptyRecording) {
		t.Fatalf("Expected ErrEmptyRecording after an empty recording, got %v", err)
	}
	if len(h.archive.saved) != 0 {
		t.Errorf("Archive must gain no entry, got %d", len(h.archive.saved))
	}
}

func TestChunksKeepOrderAndSave(t *testing.T) {
	h := newHarness(t, "[tail]")
	ctx := context.Background()
	if err := h.rec.Start(ctx, h.stream); err != nil {
		t.Fatal(err)
	}

	h.feed(t)
	h.rec.flush(ctx)
	h.rec.flush(ctx) // nothing new: no empty chunk
	h.feed(t)
	h.rec.flush(ctx)
	h.clock.Advance(4 * time.Second)

	if err := h.rec.Stop(); err != nil {
		t.Fatal(err)
	}
	if !h.enc.closed {
		t.Fatal("Expected encoder to be finalized")
	}
	if s := h.rec.Session(); s.State != Stopped || s.Chunks != 3 {
		t.Fatalf("Expected 3 chunks after stop, got %+v", s)
	}
	if h.stream.Attached() {
		t.Error("Stop must detach from the stream")
	}

	id, err := h.rec.Save(ctx, "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id != "video_1" {
		t.Errorf("Expected archive id to be returned, got %q", id)
	}

	got := h.archive.saved[0]
	if string(got.payload) != "[chunk1][chunk2][tail]" {
		t.Errorf("Chunks out of order: %q", got.payload)
	}
	if got.name != "face-tracking-2024-05-01T13-45-14" {
		t.Errorf("Unexpected default name %q", got.name)
	}
	if got.duration != 4 {
		t.Errorf("Expected duration 4, got %v", got.duration)
	}
	if s := h.rec.Session(); s.State != Idle || s.Chunks != 0 {
		t.Errorf("Save must reset the recorder, got %+v", s)
	}
}

func TestFramesDroppedWhilePaused(t *testing.T) {
	h := newHarness(t, "")
	h.rec.Start(context.Background(), h.stream)
	h.feed(t)
	h.rec.Pause()

	h.stream.Publish(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	time.Sleep(20 * time.Millisecond)
	if got := h.enc.Frames(); got != 1 {
		t.Errorf("Expected paused frames to be dropped, encoder saw %d", got)
	}
}

func TestSaveFailureKeepsRecording(t *testing.T) {
	h := newHarness(t, "[tail]")
	h.archive.err = &types.StorageError{Op: "write", Err: errors.New("disk full")}
	h.rec.Start(context.Background(), h.stream)
	h.rec.Stop()

	if _, err := h.rec.Save(context.Background(), "x"); err == nil {
		t.Fatal("Expected storage error")
	}
	if s := h.rec.Session(); s.State != Stopped || s.Chunks != 1 || s.LastError == nil {
		t.Errorf("Failed save must leave the recording intact, got %+v", s)
	}
}

func TestClearAndRestart(t *testing.T) {
	h := newHarness(t, "[tail]")
	ctx := context.Background()
	h.rec.Start(ctx, h.stream)
	h.clock.Advance(time.Second)

	h.rec.Clear()
	if s := h.rec.Session(); s.State != Idle || s.ElapsedSeconds != 0 || s.Chunks != 0 {
		t.Fatalf("Clear must reset everything, got %+v", s)
	}
	if h.stream.Attached() {
		t.Fatal("Clear must release the stream")
	}
	if err := h.rec.Start(ctx, h.stream); err != nil {
		t.Fatalf("Start after Clear failed: %v", err)
	}
}

func TestStopIsIdleTolerant(t *testing.T) {
	h := newHarness(t, "")
	if err := h.rec.Stop(); err != nil {
		t.Fatalf("Stop while idle must be a no-op, got %v", err)
	}
	if h.rec.State() != Idle {
		t.Errorf("Expected Idle, got %v", h.rec.State())
	}
}

func TestProgressReportsWhileRecording(t *testing.T) {
	var mu sync.Mutex
	var seen []Session
	rec := New(func(ctx context.Context) (Encoder, error) { return &fakeEncoder{}, nil }, &fakeArchive{},
		WithTickPeriod(5*time.Millisecond),
		WithProgress(func(s Session) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, s)
		}),
	)
	defer rec.Clear()
	rec.Start(context.Background(), surface.NewStream(surface.New(), 30))

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for progress")
		}
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if seen[0].State != Recording {
		t.Errorf("Expected progress while recording, got %v", seen[0].State)
	}
}

func TestDefaultName(t *testing.T) {
	got := DefaultName(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	if got != "face-tracking-2025-01-02T03-04-05" {
		t.Errorf("Unexpected name %q", got)
	}
	if !strings.HasPrefix(DefaultName(time.Now()), "face-tracking-") {
		t.Error("Expected face-tracking- prefix")
	}
}

func TestNonPositivePeriodsKeepDefaults(t *testing.T) {
	r := New(func(ctx context.Context) (Encoder, error) { return &fakeEncoder{}, nil }, &fakeArchive{},
		WithTickPeriod(0),
		WithChunkPeriod(-time.Second),
	)
	if r.tickPeriod != DefaultTickPeriod || r.chunkPeriod != DefaultChunkPeriod {
		t.Errorf("Expected default periods, got tick %v chunk %v", r.tickPeriod, r.chunkPeriod)
	}
}
