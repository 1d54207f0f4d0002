package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/andresmejia3/facetrack/internal/detector"
	"github.com/andresmejia3/facetrack/internal/modelserver"
	"github.com/andresmejia3/facetrack/internal/utils"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveModelsCmd = &cobra.Command{
	Use:         "serve-models",
	Short:       "Serve the model directory over HTTP with permissive CORS headers",
	Annotations: map[string]string{skipArchive: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runServeModels(cmd.Context(), serveAddr, modelsPath)
	},
}

func init() {
	serveModelsCmd.Flags().StringVarP(&serveAddr, "addr", "a", ":8085", "Listen address")
	rootCmd.AddCommand(serveModelsCmd)
}

func runServeModels(ctx context.Context, addr, dir string) error {
	if detector.IsRemote(dir) {
		return fmt.Errorf("serve-models needs a local model directory, got %s", dir)
	}
	if _, err := detector.ResolveAssets(ctx, dir, "", nil); err != nil {
		utils.ShowError("Model directory is incomplete", err, nil)
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           modelserver.NewHandler(dir, logger, logLevel == "debug"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	fmt.Fprintf(os.Stderr, "🌐 Serving %s at http://%s%s/\n", dir, displayAddr(addr), modelserver.Prefix)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("model server shutdown", slog.Any("error", err))
	}
	fmt.Fprintln(os.Stderr, "👋 Model server stopped.")
	return nil
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
