package cmd

import (
	"fmt"

	"github.com/andresmejia3/facetrack/internal/utils"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <video_id>",
	Short: "Delete a saved video",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := Archive.Delete(cmd.Context(), args[0]); err != nil {
			utils.Die("Failed to delete video", err, nil)
		}
		fmt.Printf("🗑️  Deleted %s\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
