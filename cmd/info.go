package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/audiolibrelab/claudio/internal/catalog"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [id]",
	Short: "Show resolved configuration, tools, or one recording",
	Long: `Without an id, display the resolved configuration and which external
tools were found. With an id, display that catalog entry and its file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return showRecording(args[0])
		}

		fmt.Printf("=== RESOLVED CONFIGURATION ===\n")
		fmt.Printf("config_file: %s\n", cfgFile)

		fmt.Printf("\n[Audio]\n")
		fmt.Printf("backend: %s\n", cfg.Audio.Backend)
		fmt.Printf("source: %s\n", cfg.Audio.Source)
		fmt.Printf("format: %s %d Hz, %d channel(s), %s quality\n",
			cfg.Audio.Codec, cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.Quality)

		fmt.Printf("\n[Session]\n")
		fmt.Printf("apply_order: %s\n", cfg.Session.ApplyOrder)
		fmt.Printf("earpiece_sink: %s\n", valueOrDefault(cfg.Session.EarpieceSink))
		fmt.Printf("speaker_sink: %s\n", valueOrDefault(cfg.Session.SpeakerSink))
		fmt.Printf("lock_file: %s\n", cfg.Session.LockFile)

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s\n", cfg.Output.Directory)

		fmt.Printf("\n[Catalog]\n")
		fmt.Printf("backend: %s\n", cfg.Catalog.Backend)
		fmt.Printf("path: %s\n", cfg.Catalog.Path)

		fmt.Printf("\n=== TOOLS ===\n")
		for _, tool := range []string{"ffmpeg", "ffplay", "mpv", "cvlc", "pactl"} {
			path, err := exec.LookPath(tool)
			if err != nil {
				path = "not found"
			}
			fmt.Printf("%s: %s\n", tool, path)
		}
		return nil
	},
}

func showRecording(id string) error {
	store, err := catalog.Open(catalog.Options{Backend: cfg.Catalog.Backend, Path: cfg.Catalog.Path})
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(context.Background(), id)
	if err != nil {
		return fmt.Errorf("recording %s: %w", id, err)
	}

	fmt.Printf("=== RECORDING ===\n")
	fmt.Printf("identifier: %s\n", rec.Identifier)
	fmt.Printf("directory: %s\n", rec.Directory)
	fmt.Printf("path: %s\n", rec.Path)
	fmt.Printf("created_at: %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if st, err := os.Stat(rec.FullPath()); err == nil {
		fmt.Printf("file: %s (%d bytes)\n", rec.FullPath(), st.Size())
	} else {
		fmt.Printf("file: %s (missing)\n", rec.FullPath())
	}
	return nil
}

func valueOrDefault(v string) string {
	if v == "" {
		return "(system default)"
	}
	return v
}
