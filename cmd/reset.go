package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/facetrack/internal/detector"
	"github.com/andresmejia3/facetrack/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetYes   bool
	resetCache bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every saved video",
	Long:  "Clears the video archive. With --cache it also removes downloaded model assets.",
	Run: func(cmd *cobra.Command, args []string) {
		reader := bufio.NewReader(os.Stdin)

		if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to delete ALL saved videos?") {
			fmt.Println("🗑️  Clearing video archive...")
			if err := Archive.Reset(cmd.Context()); err != nil {
				utils.Die("Failed to reset archive", err, nil)
			}
		}

		if resetCache {
			if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to delete downloaded model files?") {
				fmt.Println("🗑️  Clearing model cache...")
				removeDir(detector.DefaultCacheDir())
			}
		}

		fmt.Println("✨ Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	resetCmd.Flags().BoolVar(&resetCache, "cache", false, "Also remove downloaded model assets")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
