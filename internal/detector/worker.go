package detector

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/andresmejia3/facetrack/internal/types"
	"github.com/andresmejia3/facetrack/internal/utils"
)

// DefaultScript is the detection worker started by WorkerBackend.
const DefaultScript = "python/face_worker.py"

// maxResponseSize bounds a single worker reply.
const maxResponseSize = 16 * 1024 * 1024

// WorkerBackend runs inference in a python subprocess.
//
// Protocol, requests on stdin: [uint32 length][uint32 frame index][jpeg bytes], where length
// covers index and jpeg. Responses arrive on FD 3 so stray prints on stdout cannot corrupt
// the stream: [uint32 length][json {"frame": n, "faces": [...], "error": "..."}].
type WorkerBackend struct {
	Python    string
	Script    string
	ModelBase string
	// CacheDir receives downloaded assets when ModelBase is a URL.
	CacheDir string
	Quality  int
	Client   *http.Client
	Logger   *slog.Logger

	mu       sync.Mutex
	proc     *pythonWorker
	modelDir string
	seq      int
}

type workerResponse struct {
	types.ErrorResult
	Frame int               `json:"frame"`
	Faces []types.Detection `json:"faces"`
}

func (b *WorkerBackend) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// Load resolves the model assets and starts the worker process.
func (b *WorkerBackend) Load(ctx context.Context) error {
	cache := b.CacheDir
	if cache == "" {
		cache = DefaultCacheDir()
	}
	dir, err := ResolveAssets(ctx, b.ModelBase, cache, b.Client)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.modelDir = dir
	if b.proc != nil {
		return nil
	}
	return b.start(ctx)
}

func (b *WorkerBackend) start(ctx context.Context) error {
	python, script := b.Python, b.Script
	if python == "" {
		python = "python3"
	}
	if script == "" {
		script = DefaultScript
	}

	// The worker outlives the context of the call that started it.
	proc, err := startPythonWorker(context.WithoutCancel(ctx), python, script, b.modelDir)
	if err != nil {
		return &types.ModelLoadError{Asset: script, Err: err}
	}
	b.proc = proc
	b.logger().InfoContext(ctx, "detection worker started", "script", script, "models", b.modelDir)
	return nil
}

// Detect sends one frame to the worker. If the worker died it is restarted on the next call.
func (b *WorkerBackend) Detect(ctx context.Context, frame image.Image) ([]types.Detection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.proc == nil {
		if b.modelDir == "" {
			return nil, types.ErrModelNotLoaded
		}
		if err := b.start(ctx); err != nil {
			return nil, err
		}
	}

	quality := b.Quality
	if quality <= 0 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	b.seq++
	task := types.FrameTask{Index: b.seq, Data: buf.Bytes()}

	type reply struct {
		raw []byte
		err error
	}
	proc := b.proc
	replies := make(chan reply, 1)
	go func() {
		raw, err := proc.communicate(task)
		replies <- reply{raw, err}
	}()

	var raw []byte
	select {
	case r := <-replies:
		if r.err != nil {
			b.discard(ctx, r.err)
			return nil, fmt.Errorf("worker pipe failed: %w", r.err)
		}
		raw = r.raw
	case <-ctx.Done():
		// A stalled worker is killed, which also unblocks the pending read.
		b.discard(ctx, ctx.Err())
		<-replies
		return nil, ctx.Err()
	}

	var resp workerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode worker response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("python worker error: %s", resp.Error)
	}
	if resp.Frame != task.Index {
		return nil, fmt.Errorf("worker answered frame %d, expected %d", resp.Frame, task.Index)
	}
	return resp.Faces, nil
}

// discard kills the current worker so the next Detect starts a fresh one. Caller holds mu.
func (b *WorkerBackend) discard(ctx context.Context, cause error) {
	if err := b.proc.kill(); err != nil {
		b.logger().DebugContext(ctx, "worker exited", slog.Any("error", err), "cause", cause, "stderr", b.proc.stderr())
	}
	b.proc = nil
}

func (b *WorkerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.proc == nil {
		return nil
	}
	err := b.proc.close()
	b.proc = nil
	return err
}

type pythonWorker struct {
	cmd      *utils.SafeCommand
	stdin    io.WriteCloser
	dataPipe io.ReadCloser
}

func startPythonWorker(ctx context.Context, python, script, modelDir string) (*pythonWorker, error) {
	py := utils.NewSafeCommand(ctx, python, "-u", script, "--models", modelDir)
	py.Detach()

	// Side-channel pipe for responses. The child sees the write end as FD 3.
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker failed to start: %w", err)
	}

	// Only the child holds the write end now, so its exit surfaces as EOF.
	w.Close()

	return &pythonWorker{cmd: py, stdin: stdin, dataPipe: r}, nil
}

func (w *pythonWorker) communicate(task types.FrameTask) ([]byte, error) {
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], uint32(4+len(task.Data)))
	binary.BigEndian.PutUint32(header[4:8], uint32(task.Index))
	if _, err := w.stdin.Write(header); err != nil {
		return nil, err
	}
	if _, err := w.stdin.Write(task.Data); err != nil {
		return nil, err
	}

	respHeader := make([]byte, 4)
	if _, err := io.ReadFull(w.dataPipe, respHeader); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(respHeader)
	if size > maxResponseSize {
		return nil, fmt.Errorf("worker response of %d bytes exceeds the %d byte limit", size, maxResponseSize)
	}
	body := make([]byte, size)
	_, err := io.ReadFull(w.dataPipe, body)
	return body, err
}

func (w *pythonWorker) stderr() string {
	if w.cmd == nil {
		return ""
	}
	return w.cmd.Stderr.String()
}

// kill closes the pipes and terminates the process without waiting for it to drain.
func (w *pythonWorker) kill() error {
	w.stdin.Close()
	w.dataPipe.Close()
	if w.cmd == nil {
		return nil
	}
	if w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
	return w.cmd.Wait()
}

func (w *pythonWorker) close() error {
	w.stdin.Close()
	w.dataPipe.Close()
	if w.cmd == nil {
		return nil
	}
	return w.cmd.Wait()
}
