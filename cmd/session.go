package cmd

import (
	"context"
	"fmt"

	"github.com/audiolibrelab/claudio/internal/session"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or switch the audio session mode",
}

var sessionSetCmd = &cobra.Command{
	Use:       "set <earpiece|speaker|recording>",
	Short:     "Apply a session mode to the audio hardware",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"earpiece", "speaker", "recording"},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := session.ParseMode(args[0])
		if err != nil {
			return err
		}

		svc, err := openService(false)
		if err != nil {
			return err
		}
		defer svc.Close()

		svc.SetSessionMode(context.Background(), mode)
		st := svc.Status()
		fmt.Printf("mode: %s\n", st.Mode)
		if st.SessionError != "" {
			return fmt.Errorf("session: %s", st.SessionError)
		}
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionSetCmd)
}
