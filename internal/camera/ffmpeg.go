package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/andresmejia3/facetrack/internal/utils"
)

const megabyte = 1024 * 1024

// FFmpegOpener captures from a local webcam by piping MJPEG frames out of an ffmpeg process.
type FFmpegOpener struct {
	// Device is the platform device name, e.g. /dev/video0 or "0" on macOS. Empty selects the default.
	Device string
	// StartupTimeout bounds how long Open waits for the first frame or an early failure.
	StartupTimeout time.Duration
	Logger         *slog.Logger
}

// inputFormat returns the ffmpeg demuxer and default device for the current OS.
func inputFormat() (format, device string, err error) {
	switch runtime.GOOS {
	case "linux":
		return "v4l2", "/dev/video0", nil
	case "darwin":
		return "avfoundation", "0", nil
	default:
		return "", "", fmt.Errorf("camera capture on %s: %w", runtime.GOOS, errors.ErrUnsupported)
	}
}

// newCaptureCmd builds the ffmpeg capture pipe. Facing mode has no meaning for desktop webcams and is ignored.
func newCaptureCmd(ctx context.Context, format, device string, c Constraints) *utils.SafeCommand {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", format}
	if c.Width > 0 && c.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height))
	}
	args = append(args, "-i", device, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-")
	return utils.NewSafeCommand(ctx, "ffmpeg", args...)
}

// Open starts ffmpeg and waits until the first frame arrives, the process fails, or the startup timeout
// passes (in which case the source is returned still warming up).
func (o FFmpegOpener) Open(ctx context.Context, c Constraints) (Source, error) {
	if err := utils.CheckFFmpeg(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnsupported, err)
	}
	format, device, err := inputFormat()
	if err != nil {
		return nil, err
	}
	if o.Device != "" {
		device = o.Device
	}
	if format == "v4l2" {
		if _, err := os.Stat(device); err != nil {
			return nil, err
		}
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := o.StartupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := newCaptureCmd(ctx, format, device, c)
	out, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	src := &ffmpegSource{
		cmd:    cmd,
		cancel: cancel,
		first:  make(chan struct{}),
		exited: make(chan struct{}),
		logger: logger,
	}
	go src.readFrames(out)

	select {
	case <-src.first:
		logger.InfoContext(ctx, "camera started", "device", device, "width", c.Width, "height", c.Height)
		return src, nil
	case <-src.exited:
		src.Close()
		return nil, classifyFFmpeg(cmd.Stderr.String(), src.waitErr)
	case <-time.After(timeout):
		logger.WarnContext(ctx, "camera slow to deliver first frame, continuing", "device", device)
		return src, nil
	case <-ctx.Done():
		src.Close()
		return nil, ctx.Err()
	}
}

type ffmpegSource struct {
	cmd    *utils.SafeCommand
	cancel context.CancelFunc
	buffer FrameBuffer
	logger *slog.Logger

	firstOnce sync.Once
	first     chan struct{}
	exited    chan struct{}
	waitErr   error
	closeOnce sync.Once
}

func (s *ffmpegSource) readFrames(out io.ReadCloser) {
	defer close(s.exited)
	defer out.Close()

	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, megabyte), 16*megabyte)
	scanner.Split(utils.SplitJpeg)

	for scanner.Scan() {
		img, err := jpeg.Decode(bytes.NewReader(scanner.Bytes()))
		if err != nil {
			// Corrupt MJPEG frames happen on USB hiccups, skip them
			continue
		}
		s.buffer.Write(img)
		s.firstOnce.Do(func() { close(s.first) })
	}
	s.waitErr = s.cmd.Wait()
}

func (s *ffmpegSource) Frame() image.Image { return s.buffer.Read() }

func (s *ffmpegSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.exited
	})
	return nil
}

// classifyFFmpeg turns ffmpeg's stderr into a platform error Classify understands.
func classifyFFmpeg(stderr string, waitErr error) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" && waitErr != nil {
		msg = waitErr.Error()
	}
	switch {
	case strings.Contains(msg, "Permission denied"):
		return fmt.Errorf("%w: %s", os.ErrPermission, msg)
	case strings.Contains(msg, "Device or resource busy"):
		return fmt.Errorf("%w: %s", syscall.EBUSY, msg)
	case strings.Contains(msg, "No such file or directory"), strings.Contains(msg, "No such device"):
		return fmt.Errorf("%w: %s", os.ErrNotExist, msg)
	case strings.Contains(msg, "Invalid argument"), strings.Contains(msg, "Cannot find a proper format"):
		return fmt.Errorf("%w: %s", ErrOverconstrained, msg)
	case strings.Contains(msg, "Unknown input format"):
		return fmt.Errorf("%w: %s", errors.ErrUnsupported, msg)
	}
	return fmt.Errorf("ffmpeg capture exited: %s", msg)
}
