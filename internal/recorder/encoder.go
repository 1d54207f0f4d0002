package recorder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"strconv"
	"sync"

	"github.com/andresmejia3/facetrack/internal/utils"
	xdraw "golang.org/x/image/draw"
)

// MimeType is the container and codec produced by FFmpegEncoder.
const MimeType = "video/webm;codecs=vp9"

// Encoder turns captured frames into an encoded byte stream. Flush hands over the bytes produced
// since the previous call; Close finalizes the stream and returns the remaining bytes.
// Concatenating every Flush result followed by the Close result yields the complete file.
// WriteFrame and Flush may be called concurrently.
type Encoder interface {
	WriteFrame(frame *image.RGBA) error
	Flush() ([]byte, error)
	Close() ([]byte, error)
}

// EncoderFactory creates a fresh encoder for each recording.
type EncoderFactory func(ctx context.Context) (Encoder, error)

// NewFFmpegEncoder returns a factory for webm/vp9 encoders fed with raw RGBA frames at fps.
func NewFFmpegEncoder(fps int) EncoderFactory {
	return func(ctx context.Context) (Encoder, error) {
		if err := utils.CheckFFmpeg(); err != nil {
			return nil, err
		}
		return &FFmpegEncoder{ctx: ctx, fps: fps}, nil
	}
}

// FFmpegEncoder starts ffmpeg lazily on the first frame, whose size fixes the output size.
// Later frames of another size are scaled to fit.
type FFmpegEncoder struct {
	ctx context.Context
	fps int

	cmd    *utils.SafeCommand
	stdin  io.WriteCloser
	canvas *image.RGBA
	done   chan struct{}

	mu  sync.Mutex
	out bytes.Buffer
}

func (e *FFmpegEncoder) start(w, h int) error {
	cmd := utils.NewSafeCommand(e.ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"-r", strconv.Itoa(e.fps),
		"-i", "-",
		"-c:v", "libvpx-vp9", "-deadline", "realtime", "-cpu-used", "8", "-b:v", "1M",
		"-f", "webm", "-",
	)
	cmd.Detach()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create encoder pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create encoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.canvas = image.NewRGBA(image.Rect(0, 0, w, h))
	e.done = make(chan struct{})
	go func() {
		defer close(e.done)
		buf := make([]byte, 32*1024)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				e.mu.Lock()
				e.out.Write(buf[:n])
				e.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return nil
}

func (e *FFmpegEncoder) WriteFrame(frame *image.RGBA) error {
	b := frame.Bounds()
	if e.cmd == nil {
		if err := e.start(b.Dx(), b.Dy()); err != nil {
			return err
		}
	}

	if b.Eq(e.canvas.Bounds()) {
		draw.Draw(e.canvas, e.canvas.Bounds(), frame, b.Min, draw.Src)
	} else {
		xdraw.BiLinear.Scale(e.canvas, e.canvas.Bounds(), frame, b, xdraw.Src, nil)
	}
	if _, err := e.stdin.Write(e.canvas.Pix); err != nil {
		return fmt.Errorf("encoder write failed: %w", err)
	}
	return nil
}

func (e *FFmpegEncoder) Flush() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.out.Len() == 0 {
		return nil, nil
	}
	chunk := bytes.Clone(e.out.Bytes())
	e.out.Reset()
	return chunk, nil
}

func (e *FFmpegEncoder) Close() ([]byte, error) {
	if e.cmd == nil {
		return nil, nil
	}
	e.stdin.Close()
	<-e.done
	waitErr := e.cmd.Wait()

	tail, _ := e.Flush()
	if waitErr != nil {
		return tail, fmt.Errorf("encoder failed: %w: %s", waitErr, e.cmd.Stderr.String())
	}
	return tail, nil
}
