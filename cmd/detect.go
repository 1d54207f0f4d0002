package cmd

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/facetrack/internal/detector"
	"github.com/andresmejia3/facetrack/internal/overlay"
	"github.com/andresmejia3/facetrack/internal/utils"
	"github.com/spf13/cobra"
)

var (
	detectOutput string
	detectScript string
	detectPython string
)

var detectCmd = &cobra.Command{
	Use:         "detect <image_path>",
	Short:       "Detect faces in a still image and write an annotated copy",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{skipArchive: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		backend := &detector.WorkerBackend{
			Python:    detectPython,
			Script:    detectScript,
			ModelBase: modelsPath,
			Logger:    logger,
		}
		return runDetect(cmd.Context(), args[0], detectOutput, detector.New(backend, logger))
	},
}

func init() {
	detectCmd.Flags().StringVarP(&detectOutput, "output", "o", "", "Annotated PNG path (default: <image>-annotated.png)")
	detectCmd.Flags().StringVar(&detectScript, "worker", detector.DefaultScript, "Detection worker script")
	detectCmd.Flags().StringVar(&detectPython, "python", "python3", "Python interpreter for the detection worker")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(ctx context.Context, imagePath, output string, model *detector.Adapter) error {
	f, err := os.Open(imagePath)
	if err != nil {
		utils.ShowError("Input file does not exist", err, nil)
		return err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		utils.ShowError("Failed to decode image", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Loading face detection models...")
	if err := model.Load(ctx); err != nil {
		utils.ShowError("Failed to load face detection models", err, nil)
		return err
	}
	defer model.Close()

	fmt.Fprintln(os.Stderr, "🔍 Analyzing image...")
	faces, err := model.Detect(ctx, img)
	if err != nil {
		utils.ShowError("Detection failed", err, nil)
		return err
	}

	if len(faces) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "#\tX\tY\tWIDTH\tHEIGHT\tSCORE\tLANDMARKS")
		fmt.Fprintln(w, "-\t-\t-\t-----\t------\t-----\t---------")
		for i, d := range faces {
			fmt.Fprintf(w, "%d\t%.0f\t%.0f\t%.0f\t%.0f\t%.2f\t%d\n", i+1, d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height, d.Score, len(d.Landmarks))
		}
		w.Flush()
	}

	if output == "" {
		output = strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + "-annotated.png"
	}
	annotated := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	overlay.Render(annotated, img, faces)

	out, err := os.Create(output)
	if err != nil {
		utils.ShowError("Failed to create output file", err, nil)
		return err
	}
	defer out.Close()
	if err := png.Encode(out, annotated); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	fmt.Fprintf(os.Stderr, "🖼️  Annotated image written to %s\n", output)
	return nil
}
