package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Source is a capture device as PipeWire's pulse layer reports it.
type Source struct {
	Index  string
	Name   string
	Driver string
	Spec   string
	State  string
}

// IsMonitor reports whether the source is the monitor of an output sink.
func (s Source) IsMonitor() bool {
	return strings.HasSuffix(s.Name, ".monitor")
}

// ListSources returns the capture sources known to the sound server.
func (p *PipeWireBackend) ListSources(ctx context.Context) ([]Source, error) {
	lookPath := p.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	pactl, err := lookPath("pactl")
	if err != nil {
		return nil, fmt.Errorf("pactl not found: %w", err)
	}
	cmd := exec.CommandContext(ctx, pactl, "list", "short", "sources")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire sources: %w", err)
	}
	return parseSources(string(output)), nil
}

// ValidateSource checks that the configured source exists. "default" always
// passes since the sound server resolves it.
func (p *PipeWireBackend) ValidateSource(ctx context.Context) error {
	if p.Source == "" || p.Source == "default" {
		return nil
	}
	sources, err := p.ListSources(ctx)
	if err != nil {
		return err
	}
	return findSource(p.Source, sources)
}

// parseSources parses `pactl list short sources`, one tab separated source
// per line.
func parseSources(output string) []Source {
	var sources []Source
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			slog.Debug("Skipping unparseable source line", "line", line)
			continue
		}
		src := Source{Index: fields[0], Name: fields[1]}
		if len(fields) > 2 {
			src.Driver = fields[2]
		}
		if len(fields) > 3 {
			src.Spec = fields[3]
		}
		if len(fields) > 4 {
			src.State = fields[4]
		}
		sources = append(sources, src)
	}
	return sources
}

func findSource(name string, sources []Source) error {
	for _, s := range sources {
		if s.Name == name {
			return nil
		}
	}
	return fmt.Errorf("source not found: %s", name)
}
