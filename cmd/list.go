package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facetrack/internal/archive"
	"github.com/andresmejia3/facetrack/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved videos, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		runList(cmd.Context(), Archive, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context, a *archive.Archive, out io.Writer) {
	videos := a.List(ctx)
	if len(videos) == 0 {
		fmt.Fprintln(out, "No saved videos yet. Record one with 'facetrack record'.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDURATION\tSIZE\tCREATED")
	fmt.Fprintln(w, "--\t----\t--------\t----\t-------")

	for _, v := range videos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.Name,
			utils.FormatDuration(v.Duration), utils.FormatFileSize(v.Size),
			v.CreatedAt().Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
