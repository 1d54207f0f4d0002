// Package recorder records the annotated capture stream. It owns the record/pause/resume/stop
// state machine, the periodic chunk flushing, and the elapsed-time bookkeeping.
package recorder

import (
	"bytes"
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/andresmejia3/facetrack/internal/schedule"
	"github.com/andresmejia3/facetrack/internal/surface"
	"github.com/andresmejia3/facetrack/internal/types"
	"github.com/mdobak/go-xerrors"
)

const (
	// DefaultTickPeriod is how often the elapsed duration is published while recording.
	DefaultTickPeriod = 100 * time.Millisecond
	// DefaultChunkPeriod is how often encoded output is moved into the chunk buffer.
	DefaultChunkPeriod = time.Second
)

// State is the recording lifecycle stage.
type State int

const (
	Idle State = iota
	Recording
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Archive persists finished recordings.
type Archive interface {
	Save(ctx context.Context, payload []byte, name string, durationSeconds float64) (string, error)
}

// Session is a point-in-time copy of the recorder state.
type Session struct {
	State          State
	StartedAt      time.Time
	ElapsedSeconds float64
	Chunks         int
	Bytes          int
	LastError      error
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(l *slog.Logger) Option { return func(r *Recorder) { r.logger = l } }

// WithClock replaces time.Now for elapsed-time accounting.
func WithClock(now func() time.Time) Option { return func(r *Recorder) { r.now = now } }

// WithTickPeriod sets how often progress is published. Non-positive values keep the default.
func WithTickPeriod(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.tickPeriod = d
		}
	}
}

// WithChunkPeriod sets how often encoded output is collected. Non-positive values keep the default.
func WithChunkPeriod(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.chunkPeriod = d
		}
	}
}

// WithProgress registers a callback invoked on every duration tick while recording.
func WithProgress(fn func(Session)) Option { return func(r *Recorder) { r.progress = fn } }

// DefaultName derives a recording name from t, e.g. face-tracking-2024-05-01T13-45-10.
func DefaultName(t time.Time) string {
	return "face-tracking-" + t.UTC().Format("2006-01-02T15-04-05")
}

// Recorder drives one encoder per recording from a capture stream and hands the result to an Archive.
type Recorder struct {
	newEncoder  EncoderFactory
	archive     Archive
	logger      *slog.Logger
	now         func() time.Time
	tickPeriod  time.Duration
	chunkPeriod time.Duration
	progress    func(Session)

	// ops serializes transitions; mu guards the fields below it.
	ops sync.Mutex

	mu           sync.Mutex
	state        State
	startedAt    time.Time
	segmentStart time.Time
	elapsed      time.Duration
	chunks       [][]byte
	lastErr      error

	enc          Encoder
	release      func()
	cancel       context.CancelFunc
	consumerDone chan struct{}
	durationTask *schedule.Task
	chunkTask    *schedule.Task
}

// New returns an Idle recorder that builds encoders with newEncoder and saves into archive.
func New(newEncoder EncoderFactory, archive Archive, opts ...Option) *Recorder {
	r := &Recorder{
		newEncoder:  newEncoder,
		archive:     archive,
		logger:      slog.Default(),
		now:         time.Now,
		tickPeriod:  DefaultTickPeriod,
		chunkPeriod: DefaultChunkPeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.durationTask = schedule.Every(r.tickPeriod, r.tick)
	r.chunkTask = schedule.Every(r.chunkPeriod, r.flush)
	return r
}

// Start begins recording stream. It is valid only from Idle. A stream that already feeds
// another recorder is rejected with ErrStreamBusy.
func (r *Recorder) Start(ctx context.Context, stream *surface.Stream) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	if st := r.State(); st != Idle {
		return &types.InvalidTransitionError{Op: "start recording", From: st.String()}
	}
	if stream == nil {
		return r.fail(types.ErrNoStream)
	}

	frames, release, err := stream.Attach()
	if err != nil {
		return r.fail(err)
	}
	enc, err := r.newEncoder(ctx)
	if err != nil {
		release()
		return r.fail(err)
	}

	now := r.now()
	consumerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.mu.Lock()
	r.state = Recording
	r.startedAt = now
	r.segmentStart = now
	r.elapsed = 0
	r.chunks = nil
	r.lastErr = nil
	r.enc = enc
	r.release = release
	r.cancel = cancel
	r.consumerDone = done
	r.mu.Unlock()

	go r.consume(consumerCtx, frames, enc, done)
	if err := r.durationTask.Start(ctx); err != nil {
		r.logger.WarnContext(ctx, "duration ticker already running", slog.Any("error", err))
	}
	if err := r.chunkTask.Start(ctx); err != nil {
		r.logger.WarnContext(ctx, "chunk ticker already running", slog.Any("error", err))
	}

	r.logger.InfoContext(ctx, "recording started", "mime", MimeType)
	return nil
}

// Pause freezes the elapsed duration. Valid only while Recording.
func (r *Recorder) Pause() error {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording {
		return &types.InvalidTransitionError{Op: "pause", From: r.state.String()}
	}
	r.elapsed += r.now().Sub(r.segmentStart)
	r.state = Paused
	return nil
}

// Resume continues from the frozen duration. Valid only while Paused.
func (r *Recorder) Resume() error {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Paused {
		return &types.InvalidTransitionError{Op: "resume", From: r.state.String()}
	}
	r.segmentStart = r.now()
	r.state = Recording
	return nil
}

// Stop finalizes the encoding. Outside Recording and Paused it does nothing.
func (r *Recorder) Stop() error {
	r.ops.Lock()
	defer r.ops.Unlock()

	if st := r.State(); st != Recording && st != Paused {
		return nil
	}
	return r.halt()
}

// halt cancels the timers and the frame consumer, then finalizes the encoder. Caller holds ops.
func (r *Recorder) halt() error {
	r.durationTask.Stop()
	r.chunkTask.Stop()

	r.mu.Lock()
	if r.state == Recording {
		r.elapsed += r.now().Sub(r.segmentStart)
	}
	r.state = Stopped
	enc, release, cancel, done := r.enc, r.release, r.cancel, r.consumerDone
	r.enc, r.release, r.cancel, r.consumerDone = nil, nil, nil, nil
	r.mu.Unlock()

	release()
	cancel()
	<-done

	tail, err := enc.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendChunk(tail)
	if err != nil {
		r.lastErr = err
		r.logger.Error("failed to finalize recording", slog.Any("error", xerrors.New(err)))
		return err
	}
	r.logger.Info("recording stopped", "elapsed", r.elapsed.Seconds(), "chunks", len(r.chunks))
	return nil
}

// Save hands the concatenated chunks to the archive and resets the recorder.
// It fails with ErrEmptyRecording when no chunk was produced.
func (r *Recorder) Save(ctx context.Context, name string) (string, error) {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.mu.Lock()
	if len(r.chunks) == 0 {
		r.mu.Unlock()
		return "", types.ErrEmptyRecording
	}
	if r.state != Stopped {
		st := r.state
		r.mu.Unlock()
		return "", &types.InvalidTransitionError{Op: "save", From: st.String()}
	}
	payload := bytes.Join(r.chunks, nil)
	duration := r.elapsed.Seconds()
	r.mu.Unlock()

	if name == "" {
		name = DefaultName(r.now())
	}

	id, err := r.archive.Save(ctx, payload, name, duration)
	if err != nil {
		return "", r.fail(err)
	}

	r.logger.InfoContext(ctx, "recording saved", "id", id, "name", name, "size", len(payload))
	r.reset()
	return id, nil
}

// Clear discards the recording and returns to Idle. It is valid from every state.
func (r *Recorder) Clear() {
	r.ops.Lock()
	defer r.ops.Unlock()

	if st := r.State(); st == Recording || st == Paused {
		if err := r.halt(); err != nil {
			r.logger.Warn("discarding recording after encoder failure", slog.Any("error", err))
		}
	}
	r.reset()
}

func (r *Recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Idle
	r.startedAt = time.Time{}
	r.segmentStart = time.Time{}
	r.elapsed = 0
	r.chunks = nil
	r.lastErr = nil
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) Session() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionLocked()
}

func (r *Recorder) sessionLocked() Session {
	size := 0
	for _, c := range r.chunks {
		size += len(c)
	}
	return Session{
		State:          r.state,
		StartedAt:      r.startedAt,
		ElapsedSeconds: r.elapsedLocked().Seconds(),
		Chunks:         len(r.chunks),
		Bytes:          size,
		LastError:      r.lastErr,
	}
}

func (r *Recorder) elapsedLocked() time.Duration {
	if r.state == Recording {
		return r.elapsed + r.now().Sub(r.segmentStart)
	}
	return r.elapsed
}

func (r *Recorder) fail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
	return err
}

func (r *Recorder) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	r.chunks = append(r.chunks, chunk)
}

// consume feeds stream frames to the encoder, dropping them while paused.
func (r *Recorder) consume(ctx context.Context, frames <-chan *image.RGBA, enc Encoder, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if r.State() != Recording {
				continue
			}
			if err := enc.WriteFrame(frame); err != nil {
				r.logger.ErrorContext(ctx, "encoder rejected frame", slog.Any("error", xerrors.New(err)))
				r.fail(err)
				return
			}
		}
	}
}

func (r *Recorder) tick(ctx context.Context) {
	if r.progress == nil {
		return
	}
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return
	}
	s := r.sessionLocked()
	r.mu.Unlock()
	r.progress(s)
}

func (r *Recorder) flush(ctx context.Context) {
	r.mu.Lock()
	enc := r.enc
	r.mu.Unlock()
	if enc == nil {
		return
	}

	chunk, err := enc.Flush()
	if err != nil {
		r.logger.WarnContext(ctx, "failed to flush encoder", slog.Any("error", err))
		return
	}
	r.mu.Lock()
	r.appendChunk(chunk)
	r.mu.Unlock()
}
