package camera

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrOverconstrained is reported by openers when the device cannot satisfy the requested constraints.
var ErrOverconstrained = errors.New("requested camera constraints cannot be satisfied")

// ErrorKind classifies camera acquisition failures. Every kind is recoverable by user action.
type ErrorKind int

const (
	Unknown ErrorKind = iota
	PermissionDenied
	NotFound
	Busy
	Overconstrained
	Unsupported
)

func (k ErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission-denied"
	case NotFound:
		return "device-not-found"
	case Busy:
		return "device-busy"
	case Overconstrained:
		return "constraints-unsatisfiable"
	case Unsupported:
		return "unsupported-environment"
	default:
		return "unknown"
	}
}

// CameraError is the user-visible camera failure, mapped from the platform error.
type CameraError struct {
	Kind ErrorKind
	// Fallback is set when the relaxed-constraints retry was attempted and also failed.
	Fallback bool
	Err      error
}

func (e *CameraError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Kind, e.Err)
}

func (e *CameraError) Unwrap() error { return e.Err }

// Message returns the human-readable text shown to the user.
func (e *CameraError) Message() string {
	if e.Fallback {
		return "Camera access failed with fallback settings. Please check your camera."
	}
	switch e.Kind {
	case NotFound:
		return "No camera found. Please ensure a camera is connected and try again."
	case PermissionDenied:
		return "Camera access denied. Please allow camera permissions and try again."
	case Unsupported:
		return "Camera not supported in this environment. Please use a supported platform with ffmpeg installed."
	case Busy:
		return "Camera is busy or not accessible. Please close other apps using the camera and try again."
	case Overconstrained:
		return "Camera settings not supported. Trying with different settings..."
	default:
		return "Failed to access camera"
	}
}

// Hints returns troubleshooting steps for the error kind, most specific first.
func (e *CameraError) Hints() []string {
	steps := []string{
		"Make sure you have a camera connected to your device",
		"Check that no other applications are using your camera",
		"Try running the command again",
	}

	switch e.Kind {
	case PermissionDenied:
		return append([]string{
			"Add your user to the 'video' group (or grant camera access in system settings)",
			"Log out and back in after changing group membership",
		}, steps...)
	case NotFound:
		return append([]string{
			"Check if your camera is properly connected",
			"Try unplugging and reconnecting your camera",
			"Make sure camera drivers are installed",
			"Test your camera in another application",
		}, steps...)
	case Unsupported:
		return append([]string{
			"Install ffmpeg and make sure it is on your PATH",
			"Use Linux (v4l2) or macOS (avfoundation)",
		}, steps...)
	}
	return steps
}

// Classify maps an opener error onto the camera error taxonomy.
func Classify(err error) ErrorKind {
	var ce *CameraError
	switch {
	case err == nil:
		return Unknown
	case errors.As(err, &ce):
		return ce.Kind
	case errors.Is(err, ErrOverconstrained):
		return Overconstrained
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return PermissionDenied
	case errors.Is(err, syscall.EBUSY):
		return Busy
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENOENT):
		return NotFound
	case errors.Is(err, errors.ErrUnsupported):
		return Unsupported
	}
	return Unknown
}
