package types

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotLoaded is returned when detection is requested before the models finished loading.
	ErrModelNotLoaded = errors.New("models not loaded yet")
	// ErrDetectionTransient marks a single failed inference. It is absorbed by the detection loop.
	ErrDetectionTransient = errors.New("transient detection failure")
	// ErrNoStream is returned when recording is started without a capture stream.
	ErrNoStream = errors.New("no canvas stream available")
	// ErrEmptyRecording is returned when saving a recording that produced no chunks.
	ErrEmptyRecording = errors.New("no recording to save")
	// ErrStreamBusy is returned when a second recorder attaches to a stream that already has one.
	ErrStreamBusy = errors.New("capture stream already has an active recorder")
)

// ModelLoadError reports an unreachable or invalid model asset.
type ModelLoadError struct {
	Asset string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load face detection model %q: %v", e.Asset, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InvalidTransitionError rejects a state machine operation that is not valid from the current state.
type InvalidTransitionError struct {
	Op   string
	From string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.From)
}

// StorageError wraps a read or write failure of the video archive.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
