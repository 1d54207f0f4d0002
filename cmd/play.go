package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facetrack/internal/archive"
	"github.com/andresmejia3/facetrack/internal/utils"
	"github.com/spf13/cobra"
)

var playPlayer string

var playCmd = &cobra.Command{
	Use:   "play <video_id>",
	Short: "Play a saved video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		v, err := Archive.Get(ctx, args[0])
		if err != nil {
			utils.ShowError("Video not found", err, nil)
			return err
		}
		h, err := archive.PlayableHandle(v)
		if err != nil {
			utils.ShowError("Failed to prepare video for playback", err, nil)
			return err
		}
		defer h.Release()

		fmt.Fprintf(os.Stderr, "▶️  Playing %s (%s)\n", v.Name, utils.FormatDuration(v.Duration))
		player := utils.NewSafeCommand(ctx, playPlayer, playerArgs(playPlayer, h.Path)...)
		player.Stdout = os.Stdout
		if err := player.Run(); err != nil {
			utils.ShowError("Player exited with an error", err, player)
			return err
		}
		return nil
	},
}

func init() {
	playCmd.Flags().StringVar(&playPlayer, "player", "ffplay", "Video player executable")
	rootCmd.AddCommand(playCmd)
}

func playerArgs(player, path string) []string {
	if filepath.Base(player) == "ffplay" {
		return []string{"-autoexit", "-loglevel", "error", path}
	}
	return []string{path}
}
