package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record from the microphone",
	Long: `Record microphone audio to a new file named after the current UTC time.
The recording is added to the catalog as soon as capture starts.

Recording runs until Ctrl+C, until --duration has elapsed, or until capture
fails. The first recording asks for microphone access; --yes grants it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetDuration("duration")
		assumeYes, _ := cmd.Flags().GetBool("yes")

		svc, err := openService(assumeYes)
		if err != nil {
			return err
		}
		defer svc.Close()

		// Handle interruption
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go svc.Watch(ctx)

		rec, err := svc.StartRecording(ctx)
		if err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		fmt.Printf("Recording %s - Press Ctrl+C to stop\n", rec.FullPath())

		var deadline <-chan time.Time
		if duration > 0 {
			deadline = time.After(duration)
		}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

	wait:
		for {
			select {
			case <-ctx.Done():
				break wait
			case <-deadline:
				break wait
			case <-ticker.C:
				if !svc.Status().Recording {
					slog.Warn("Recording ended unexpectedly", "error", svc.GetLastError())
					break wait
				}
			}
		}

		slog.Info("Stopping recording...")
		if err := svc.StopRecording(context.Background()); err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}
		if msg := svc.GetLastError(); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		fmt.Printf("Saved %s\n", rec.Identifier)
		return nil
	},
}

func init() {
	recordCmd.Flags().Duration("duration", 0, "stop after this long (e.g. 30s); 0 records until Ctrl+C")
	recordCmd.Flags().BoolP("yes", "y", false, "grant microphone access without asking")
}
