package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Decision is the user's answer to the microphone access question.
type Decision string

const (
	DecisionUndetermined Decision = "undetermined"
	DecisionGranted      Decision = "granted"
	DecisionDenied       Decision = "denied"
)

// PermissionGate decides whether the microphone may be used. Request may block
// on the user and must honor ctx.
type PermissionGate interface {
	Request(ctx context.Context) (Decision, error)
}

// StaticGate always answers with the same decision.
type StaticGate Decision

func (g StaticGate) Request(ctx context.Context) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return DecisionUndetermined, err
	}
	return Decision(g), nil
}

type permissionFile struct {
	Microphone Decision `yaml:"microphone"`
}

// PromptGate asks once on a terminal and remembers the answer in File.
type PromptGate struct {
	In   io.Reader
	Out  io.Writer
	File string

	mu       sync.Mutex
	decision Decision
}

// NewPromptGate asks on stdin/stdout and persists to file.
func NewPromptGate(file string) *PromptGate {
	return &PromptGate{In: os.Stdin, Out: os.Stdout, File: file}
}

func (g *PromptGate) Request(ctx context.Context) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.decision == DecisionGranted || g.decision == DecisionDenied {
		return g.decision, nil
	}
	if d := g.load(); d != DecisionUndetermined {
		g.decision = d
		return d, nil
	}

	d, err := g.ask(ctx)
	if err != nil {
		return DecisionUndetermined, err
	}
	g.decision = d
	if err := g.save(d); err != nil {
		slog.Warn("Failed to persist microphone permission", "file", g.File, "error", err)
	}
	return d, nil
}

func (g *PromptGate) ask(ctx context.Context) (Decision, error) {
	fmt.Fprint(g.Out, "claudio would like to access the microphone. Allow? [y/N] ")

	answer := make(chan string, 1)
	go func() {
		line, err := bufio.NewReader(g.In).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			line = ""
		}
		answer <- line
	}()

	select {
	case <-ctx.Done():
		return DecisionUndetermined, ctx.Err()
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return DecisionGranted, nil
		default:
			return DecisionDenied, nil
		}
	}
}

func (g *PromptGate) load() Decision {
	if g.File == "" {
		return DecisionUndetermined
	}
	data, err := os.ReadFile(g.File)
	if err != nil {
		return DecisionUndetermined
	}
	var pf permissionFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		slog.Warn("Ignoring unreadable permission file", "file", g.File, "error", err)
		return DecisionUndetermined
	}
	switch pf.Microphone {
	case DecisionGranted, DecisionDenied:
		return pf.Microphone
	}
	return DecisionUndetermined
}

func (g *PromptGate) save(d Decision) error {
	if g.File == "" {
		return nil
	}
	data, err := yaml.Marshal(permissionFile{Microphone: d})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(g.File), 0755); err != nil {
		return err
	}
	return renameio.WriteFile(g.File, data, 0600)
}
