package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/andresmejia3/facetrack/internal/archive"
	"github.com/andresmejia3/facetrack/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// skipArchive marks commands that never touch the video archive.
const skipArchive = "skip-archive"

var (
	// Archive is the video archive shared by subcommands
	Archive *archive.Archive
	// storeDSN selects the archive backend
	storeDSN   string
	modelsPath string
	logLevel   string
	logger     = slog.Default()
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facetrack",
	Short:   "Real-time face detection and annotated video recording",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; real environment variables always win.
		_ = godotenv.Load()

		logLevel = firstNonEmpty(logLevel, os.Getenv("FACETRACK_LOG_LEVEL"), "warn")
		logger = logging.New(os.Stderr, logging.ParseLevel(logLevel))
		slog.SetDefault(logger)

		modelsPath = firstNonEmpty(modelsPath, os.Getenv("FACETRACK_MODELS"), "models")

		if cmd.Annotations[skipArchive] == "true" {
			return nil
		}

		storeDSN = firstNonEmpty(storeDSN, os.Getenv("FACETRACK_STORE"), postgresFromEnv(), defaultStore())
		kv, err := archive.Open(cmd.Context(), storeDSN)
		if err != nil {
			return fmt.Errorf("failed to open video archive: %w", err)
		}
		Archive = archive.New(kv, archive.WithLogger(logger))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if Archive != nil {
			if err := Archive.Close(); err != nil {
				logger.Warn("failed to close archive", slog.Any("error", err))
			}
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeDSN, "store", "", "Archive location: postgres://..., sqlite://path, :memory: or a directory (default: ~/.facetrack)")
	rootCmd.PersistentFlags().StringVar(&modelsPath, "models", "", "Model directory or http(s) base URL (default: ./models)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: warn)")
}

// postgresFromEnv builds a connection string from the POSTGRES_* variables, or returns "".
func postgresFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, pass),
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + name,
	}
	return dsn.String()
}

func defaultStore() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".facetrack"
	}
	return filepath.Join(home, ".facetrack")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
