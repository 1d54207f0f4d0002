package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/facetrack/internal/camera"
	"github.com/andresmejia3/facetrack/internal/detector"
	"github.com/andresmejia3/facetrack/internal/recorder"
	"github.com/andresmejia3/facetrack/internal/tracker"
	"github.com/andresmejia3/facetrack/internal/types"
	"github.com/andresmejia3/facetrack/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type recordOptions struct {
	Camera   string
	Duration time.Duration
	Name     string
	Discard  bool
	Script   string
	Python   string
}

var recordOpts recordOptions

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Detect faces on the camera feed and record the annotated video",
	Long: `Opens the camera, loads the face detection models and records the annotated feed.

While recording, type a command and press Enter:
  p  pause
  r  resume
  s  stop and save (Ctrl+C also stops)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		recordOpts.Camera = firstNonEmpty(recordOpts.Camera, os.Getenv("FACETRACK_CAMERA"), "ffmpeg")
		return runRecord(cmd.Context(), recordOpts, os.Stdin)
	},
}

func init() {
	recordCmd.Flags().StringVarP(&recordOpts.Camera, "camera", "c", "", "Camera driver[:device], e.g. ffmpeg:/dev/video0 or synthetic (env FACETRACK_CAMERA)")
	recordCmd.Flags().DurationVarP(&recordOpts.Duration, "duration", "d", 0, "Stop automatically after this long (0 = until stopped)")
	recordCmd.Flags().StringVarP(&recordOpts.Name, "name", "n", "", "Name of the saved video (default: face-tracking-<timestamp>)")
	recordCmd.Flags().BoolVar(&recordOpts.Discard, "discard", false, "Do not save the recording")
	recordCmd.Flags().StringVar(&recordOpts.Script, "worker", detector.DefaultScript, "Detection worker script")
	recordCmd.Flags().StringVar(&recordOpts.Python, "python", "python3", "Python interpreter for the detection worker")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(ctx context.Context, opts recordOptions, in io.Reader) error {
	if err := utils.CheckFFmpeg(); err != nil {
		utils.ShowError("FFmpeg is required for recording", err, nil)
		return err
	}
	opener, err := newOpener(opts.Camera)
	if err != nil {
		return err
	}

	backend := &detector.WorkerBackend{
		Python:    opts.Python,
		Script:    opts.Script,
		ModelBase: modelsPath,
		Logger:    logger,
	}
	model := detector.New(backend, logger)
	defer model.Close()

	ctrl := tracker.New(model, tracker.WithLogger(logger))
	defer ctrl.Close()
	if err := ctrl.Open(ctx); err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting camera and loading models...")
	if err := prepare(ctx, ctrl, model, opener); err != nil {
		return err
	}
	if err := ctrl.StartDetection(ctx); err != nil {
		utils.ShowError("Failed to start detection", err, nil)
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("🔴 REC 0:00"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
	)
	rec := recorder.New(recorder.NewFFmpegEncoder(ctrl.Stream().FPS()), Archive,
		recorder.WithLogger(logger),
		recorder.WithProgress(func(s recorder.Session) {
			faces := len(ctrl.Session().Detections)
			bar.Describe(fmt.Sprintf("🔴 REC %s | faces: %d", utils.FormatDuration(s.ElapsedSeconds), faces))
			bar.Add(1)
		}),
	)
	defer rec.Clear()

	// The encoder must outlive Ctrl+C so Stop can finalize the file.
	if err := rec.Start(context.WithoutCancel(ctx), ctrl.Stream()); err != nil {
		utils.ShowError("Failed to start recording", err, nil)
		return err
	}

	controlLoop(ctx, rec, opts.Duration, readCommands(in))
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	if err := rec.Stop(); err != nil {
		utils.ShowError("Failed to finalize recording", err, nil)
	}
	ctrl.StopDetection()

	if opts.Discard {
		fmt.Fprintln(os.Stderr, "🗑️  Recording discarded.")
		return nil
	}

	// Save even when the run was interrupted with Ctrl+C.
	session := rec.Session()
	id, err := rec.Save(context.WithoutCancel(ctx), opts.Name)
	if errors.Is(err, types.ErrEmptyRecording) {
		fmt.Fprintln(os.Stderr, "⚠️  Nothing was recorded, no video saved.")
		return nil
	}
	if err != nil {
		utils.ShowError("Failed to save video", err, nil)
		return err
	}

	fmt.Printf("✅ Saved video %s (%s, %s)\n", id,
		utils.FormatDuration(session.ElapsedSeconds), utils.FormatFileSize(int64(session.Bytes)))
	return nil
}

// prepare acquires the camera and loads the model concurrently; readiness does not depend on order.
func prepare(ctx context.Context, ctrl *tracker.Controller, model *detector.Adapter, opener camera.Opener) error {
	var wg sync.WaitGroup
	var camErr, modelErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		src, err := camera.Acquire(ctx, opener, logger)
		if err != nil {
			camErr = err
			ctrl.CameraFailed(err)
			return
		}
		ctrl.CameraReady(src)
		fmt.Fprintln(os.Stderr, "📷 Camera ready")
	}()
	go func() {
		defer wg.Done()
		if err := model.Load(ctx); err != nil {
			modelErr = err
			ctrl.ModelFailed(err)
			return
		}
		if err := ctrl.ModelReady(); err != nil {
			modelErr = err
			return
		}
		fmt.Fprintln(os.Stderr, "🧠 Face detection models loaded")
	}()
	wg.Wait()

	if camErr != nil {
		reportCameraError(camErr)
		return camErr
	}
	if modelErr != nil {
		utils.ShowError("Failed to load face detection models", modelErr, nil)
		return modelErr
	}
	return nil
}

// recordControls is the subset of the recorder driven by the interactive controls.
type recordControls interface {
	Pause() error
	Resume() error
}

// controlLoop applies interactive commands until stop is requested, the duration elapses,
// the input ends, or ctx is cancelled.
func controlLoop(ctx context.Context, rec recordControls, limit time.Duration, commands <-chan string) {
	var timeout <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			return
		case c, ok := <-commands:
			if !ok {
				// No interactive input: keep recording until the timer or a signal.
				commands = nil
				if timeout == nil {
					<-ctx.Done()
					return
				}
				continue
			}
			switch c {
			case "p", "pause":
				if err := rec.Pause(); err != nil {
					fmt.Fprintf(os.Stderr, "\n⚠️  %v\n", err)
				} else {
					fmt.Fprintln(os.Stderr, "\n⏸️  Paused")
				}
			case "r", "resume":
				if err := rec.Resume(); err != nil {
					fmt.Fprintf(os.Stderr, "\n⚠️  %v\n", err)
				} else {
					fmt.Fprintln(os.Stderr, "\n▶️  Resumed")
				}
			case "s", "stop", "q", "quit":
				return
			case "":
			default:
				fmt.Fprintf(os.Stderr, "\n⚠️  Unknown command %q (p = pause, r = resume, s = stop)\n", c)
			}
		}
	}
}

func readCommands(in io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			out <- strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
	}()
	return out
}
