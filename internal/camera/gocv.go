//go:build gocv

package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// GocvOpener captures through OpenCV. Build with -tags gocv on machines that have OpenCV installed.
type GocvOpener struct {
	DeviceID int
	Logger   *slog.Logger
}

func (o GocvOpener) Open(ctx context.Context, c Constraints) (Source, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	webcam, err := gocv.OpenVideoCapture(o.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", os.ErrNotExist, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("%w: device %d did not open", os.ErrNotExist, o.DeviceID)
	}

	if c.Width > 0 && c.Height > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
		gotW := int(webcam.Get(gocv.VideoCaptureFrameWidth))
		gotH := int(webcam.Get(gocv.VideoCaptureFrameHeight))
		if gotW != c.Width || gotH != c.Height {
			webcam.Close()
			return nil, fmt.Errorf("%w: asked %dx%d, device offers %dx%d", ErrOverconstrained, c.Width, c.Height, gotW, gotH)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	src := &gocvSource{webcam: webcam, cancel: cancel, done: make(chan struct{})}
	go src.readFrames(ctx, logger)
	return src, nil
}

type gocvSource struct {
	webcam    *gocv.VideoCapture
	buffer    FrameBuffer
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (s *gocvSource) readFrames(ctx context.Context, logger *slog.Logger) {
	defer close(s.done)
	mat := gocv.NewMat()
	defer mat.Close()

	for ctx.Err() == nil {
		if ok := s.webcam.Read(&mat); !ok || mat.Empty() {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		img, err := mat.ToImage()
		if err != nil {
			logger.Debug("gocv frame conversion failed", slog.Any("error", err))
			continue
		}
		s.buffer.Write(img)
	}
}

func (s *gocvSource) Frame() image.Image { return s.buffer.Read() }

func (s *gocvSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		err = s.webcam.Close()
	})
	return err
}
