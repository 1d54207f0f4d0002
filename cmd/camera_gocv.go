//go:build gocv

package cmd

import (
	"log/slog"
	"strconv"

	"github.com/andresmejia3/facetrack/internal/camera"
)

func init() {
	openers["gocv"] = func(device string, logger *slog.Logger) camera.Opener {
		id, _ := strconv.Atoi(device)
		return camera.GocvOpener{DeviceID: id, Logger: logger}
	}
}
