package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facetrack/internal/archive"
	"github.com/andresmejia3/facetrack/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var downloadDir string

var downloadCmd = &cobra.Command{
	Use:   "download <video_id>",
	Short: "Write a saved video to disk as <name>.webm",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		path, err := runDownload(cmd.Context(), Archive, args[0], downloadDir)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Downloaded to %s\n", path)
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadDir, "output", "o", ".", "Directory to write the video to")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(ctx context.Context, a *archive.Archive, id, dir string) (string, error) {
	v, err := a.Get(ctx, id)
	if err != nil {
		utils.ShowError("Video not found", err, nil)
		return "", err
	}
	data, err := v.Decode()
	if err != nil {
		utils.ShowError("Failed to decode video", err, nil)
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, archive.DownloadName(v))
	f, err := os.Create(path)
	if err != nil {
		utils.ShowError("Failed to create output file", err, nil)
		return "", err
	}
	defer f.Close()

	bar := progressbar.NewOptions64(int64(len(data)),
		progressbar.OptionSetDescription("💾 Downloading"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
	)
	if _, err := io.Copy(io.MultiWriter(f, bar), bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	return path, f.Close()
}
