package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"syscall"
	"testing"
)

// scriptedOpener fails according to a per-attempt script and records the constraints it was asked for.
type scriptedOpener struct {
	errs  []error
	calls []Constraints
}

func (o *scriptedOpener) Open(ctx context.Context, c Constraints) (Source, error) {
	o.calls = append(o.calls, c)
	i := len(o.calls) - 1
	if i < len(o.errs) && o.errs[i] != nil {
		return nil, o.errs[i]
	}
	return NewStaticSource(image.NewRGBA(image.Rect(0, 0, 4, 4))), nil
}

func TestAcquire(t *testing.T) {
	tests := []struct {
		name         string
		errs         []error
		wantCalls    int
		wantKind     ErrorKind
		wantFallback bool
		wantErr      bool
	}{
		{
			name:      "Preferred constraints succeed",
			errs:      nil,
			wantCalls: 1,
		},
		{
			name:      "Overconstrained falls back once",
			errs:      []error{ErrOverconstrained},
			wantCalls: 2,
		},
		{
			name:         "Fallback also fails",
			errs:         []error{ErrOverconstrained, fmt.Errorf("%w: gone", os.ErrNotExist)},
			wantCalls:    2,
			wantKind:     NotFound,
			wantFallback: true,
			wantErr:      true,
		},
		{
			name:      "Permission denied is not retried",
			errs:      []error{os.ErrPermission},
			wantCalls: 1,
			wantKind:  PermissionDenied,
			wantErr:   true,
		},
		{
			name:      "Busy device",
			errs:      []error{syscall.EBUSY},
			wantCalls: 1,
			wantKind:  Busy,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &scriptedOpener{errs: tt.errs}
			src, err := Acquire(context.Background(), o, nil)

			if len(o.calls) != tt.wantCalls {
				t.Fatalf("Expected %d open attempts, got %d", tt.wantCalls, len(o.calls))
			}
			if o.calls[0] != Preferred {
				t.Errorf("First attempt used %+v, want %+v", o.calls[0], Preferred)
			}
			if tt.wantCalls == 2 && o.calls[1] != Relaxed {
				t.Errorf("Fallback used %+v, want %+v", o.calls[1], Relaxed)
			}

			if !tt.wantErr {
				if err != nil || src == nil {
					t.Fatalf("Expected a source, got err %v", err)
				}
				return
			}

			var ce *CameraError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected *CameraError, got %T %v", err, err)
			}
			if ce.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", ce.Kind, tt.wantKind)
			}
			if ce.Fallback != tt.wantFallback {
				t.Errorf("Fallback = %v, want %v", ce.Fallback, tt.wantFallback)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, Unknown},
		{errors.New("boom"), Unknown},
		{fmt.Errorf("wrapped: %w", os.ErrPermission), PermissionDenied},
		{syscall.EACCES, PermissionDenied},
		{syscall.ENODEV, NotFound},
		{fmt.Errorf("x: %w", errors.ErrUnsupported), Unsupported},
		{&CameraError{Kind: Busy}, Busy},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestClassifyFFmpeg(t *testing.T) {
	tests := []struct {
		stderr string
		want   ErrorKind
	}{
		{"[video4linux2,v4l2 @ 0x1] Cannot open video device /dev/video0: Permission denied", PermissionDenied},
		{"/dev/video0: Device or resource busy", Busy},
		{"/dev/video3: No such file or directory", NotFound},
		{"ioctl(VIDIOC_S_FMT): Invalid argument", Overconstrained},
		{"Unknown input format: 'v4l2'", Unsupported},
		{"something unexpected", Unknown},
	}
	for _, tt := range tests {
		if got := Classify(classifyFFmpeg(tt.stderr, nil)); got != tt.want {
			t.Errorf("classifyFFmpeg(%q) -> %v, want %v", tt.stderr, got, tt.want)
		}
	}
}

func TestCameraErrorMessages(t *testing.T) {
	fb := &CameraError{Kind: Overconstrained, Fallback: true}
	if !strings.Contains(fb.Message(), "fallback settings") {
		t.Errorf("Unexpected fallback message %q", fb.Message())
	}

	denied := &CameraError{Kind: PermissionDenied, Err: os.ErrPermission}
	if !strings.Contains(denied.Message(), "denied") {
		t.Errorf("Unexpected message %q", denied.Message())
	}
	if hints := denied.Hints(); len(hints) <= 3 {
		t.Errorf("Expected kind-specific hints, got %v", hints)
	}
	if !errors.Is(denied, os.ErrPermission) {
		t.Error("CameraError should unwrap to the platform error")
	}
}

func TestSyntheticWarmup(t *testing.T) {
	src, err := SyntheticOpener{WarmupFrames: 2}.Open(context.Background(), Constraints{Width: 32, Height: 24})
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if src.Frame() != nil || src.Frame() != nil {
		t.Fatal("Expected no frames during warm-up")
	}
	f := src.Frame()
	if f == nil || f.Bounds().Dx() != 32 || f.Bounds().Dy() != 24 {
		t.Fatalf("Unexpected frame after warm-up: %v", f)
	}
}

func TestFrameBuffer(t *testing.T) {
	var fb FrameBuffer
	if fb.Read() != nil || !fb.LastFrameTime().IsZero() {
		t.Fatal("Expected empty buffer")
	}
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	fb.Write(img)
	if fb.Read() != img || fb.FrameCount() != 1 || fb.LastFrameTime().IsZero() {
		t.Error("FrameBuffer did not record the write")
	}
}
