package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "Remove recordings from the catalog",
	Long: `Remove recordings from the catalog. Unknown ids are ignored.
With --purge the audio files are deleted as well.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		purge, _ := cmd.Flags().GetBool("purge")

		svc, err := openService(false)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.DeleteRecording(context.Background(), purge, args...); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		fmt.Printf("Deleted %d recording(s)\n", len(args))
		return nil
	},
}

func init() {
	deleteCmd.Flags().Bool("purge", false, "also delete the audio files")
}
