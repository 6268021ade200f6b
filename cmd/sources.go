package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/audiolibrelab/claudio/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long: `List the capture sources PipeWire exposes through its pulse layer.
Use a NAME as audio.source in the config; "default" follows the system default.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		backend := audio.NewPipeWireBackend(cfg.Audio.Source, nil)
		sources, err := backend.ListSources(ctx)
		if err != nil {
			return fmt.Errorf("failed to get PipeWire sources: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tNAME\tSPEC\tSTATE")
		for _, src := range sources {
			if src.IsMonitor() && !all {
				continue
			}
			marker := ""
			if src.Name == cfg.Audio.Source {
				marker = " *"
			}
			fmt.Fprintf(w, "%s\t%s%s\t%s\t%s\n", src.Index, src.Name, marker, src.Spec, src.State)
		}
		return w.Flush()
	},
}

func init() {
	sourcesCmd.Flags().Bool("all", false, "include monitor sources of output sinks")
}
