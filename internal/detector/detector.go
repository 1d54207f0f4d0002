// Package detector wraps the face detection model behind a load-once adapter.
// Inference failures on single frames never escape Detect; the detection loop keeps running.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/andresmejia3/facetrack/internal/types"
	"github.com/mdobak/go-xerrors"
)

// Backend is the model runtime: it loads assets once and runs inference per frame.
type Backend interface {
	Load(ctx context.Context) error
	Detect(ctx context.Context, frame image.Image) ([]types.Detection, error)
	Close() error
}

// Adapter guards a Backend with load-once semantics and absorbs per-frame failures.
type Adapter struct {
	backend Backend
	logger  *slog.Logger

	mu        sync.Mutex
	loaded    atomic.Bool
	transient atomic.Uint64
}

func New(backend Backend, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{backend: backend, logger: logger}
}

// Load initializes the model. Once it succeeds further calls return nil immediately.
// A failure is not cached: the caller decides whether to call Load again.
func (a *Adapter) Load(ctx context.Context) error {
	if a.loaded.Load() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded.Load() {
		return nil
	}

	if err := a.backend.Load(ctx); err != nil {
		a.logger.ErrorContext(ctx, "model load failed", slog.Any("error", xerrors.New(err)))
		var mle *types.ModelLoadError
		if errors.As(err, &mle) {
			return err
		}
		return &types.ModelLoadError{Asset: "backend", Err: err}
	}

	a.loaded.Store(true)
	a.logger.InfoContext(ctx, "face detection models loaded")
	return nil
}

func (a *Adapter) Loaded() bool { return a.loaded.Load() }

// Detect runs inference on one frame. Before Load succeeds it returns ErrModelNotLoaded.
// Frames with a zero dimension yield no detections, and inference failures yield an empty
// result rather than an error.
func (a *Adapter) Detect(ctx context.Context, frame image.Image) ([]types.Detection, error) {
	if !a.loaded.Load() {
		return nil, types.ErrModelNotLoaded
	}
	if w, h := types.FrameSize(frame); w == 0 || h == 0 {
		return []types.Detection{}, nil
	}

	dets, err := a.backend.Detect(ctx, frame)
	if err != nil {
		a.transient.Add(1)
		a.logger.DebugContext(ctx, "detection failed, dropping frame",
			slog.Any("error", fmt.Errorf("%w: %w", types.ErrDetectionTransient, err)))
		return []types.Detection{}, nil
	}
	if dets == nil {
		dets = []types.Detection{}
	}
	return dets, nil
}

// TransientFailures reports how many frames failed inference since creation.
func (a *Adapter) TransientFailures() uint64 { return a.transient.Load() }

func (a *Adapter) Close() error { return a.backend.Close() }
