package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/claudio/internal/session"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [id]",
	Short: "Play a recording",
	Long: `Play a recording from the catalog through the earpiece output, or the
speaker with --speaker. Without an id the newest recording is played.

Playback runs until the file ends or Ctrl+C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		speaker, _ := cmd.Flags().GetBool("speaker")

		var id string
		if len(args) == 1 {
			id = args[0]
		}

		svc, err := openService(false)
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go svc.Watch(ctx)

		if speaker {
			svc.SetPlaybackSource(session.RoutingSpeaker)
		}

		rec, err := svc.Play(ctx, id)
		if err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		fmt.Printf("Playing %s (%s)\n", rec.Identifier, svc.Status().Routing)

		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for svc.Status().Playing {
			select {
			case <-ctx.Done():
				return svc.StopPlayback(context.Background())
			case <-ticker.C:
			}
		}

		fmt.Println("Playback completed")
		return svc.StopPlayback(context.Background())
	},
}

func init() {
	playCmd.Flags().Bool("speaker", false, "play through the speaker instead of the earpiece")
}
