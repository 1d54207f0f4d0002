package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/andresmejia3/facetrack/internal/camera"
)

// openers maps the --camera driver prefix to a constructor. The argument after the colon is the
// device, e.g. "ffmpeg:/dev/video2".
var openers = map[string]func(device string, logger *slog.Logger) camera.Opener{
	"ffmpeg": func(device string, logger *slog.Logger) camera.Opener {
		return camera.FFmpegOpener{Device: device, Logger: logger}
	},
	"synthetic": func(string, *slog.Logger) camera.Opener {
		return camera.SyntheticOpener{WarmupFrames: 3}
	},
}

func newOpener(driverSpec string) (camera.Opener, error) {
	driver, device, _ := strings.Cut(driverSpec, ":")
	if driver == "" {
		driver = "ffmpeg"
	}
	build, ok := openers[driver]
	if !ok {
		return nil, fmt.Errorf("unknown camera driver %q", driver)
	}
	return build(device, logger), nil
}

// reportCameraError prints the user-facing message and troubleshooting steps.
func reportCameraError(err error) {
	ce, ok := err.(*camera.CameraError)
	if !ok {
		ce = &camera.CameraError{Kind: camera.Classify(err), Err: err}
	}
	fmt.Fprintf(os.Stderr, "\n📷 %s\n", ce.Message())
	fmt.Fprintln(os.Stderr, "Troubleshooting:")
	for _, h := range ce.Hints() {
		fmt.Fprintf(os.Stderr, "  • %s\n", h)
	}
	logger.Debug("camera error details", slog.Any("error", err))
}
