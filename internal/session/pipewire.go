package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrBusy means another process holds the audio session.
var ErrBusy = errors.New("audio session held by another process")

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

// PipeWire drives routing through pactl (PipeWire's PulseAudio server) and
// arbitrates activation between processes with an exclusive lock file.
type PipeWire struct {
	EarpieceSink string
	SpeakerSink  string
	LockFile     string

	run Runner

	mu   sync.Mutex
	lock *os.File
}

// NewPipeWire creates a PipeWire hardware layer. A nil runner uses ExecRunner.
func NewPipeWire(earpieceSink, speakerSink, lockFile string, run Runner) *PipeWire {
	if run == nil {
		run = ExecRunner
	}
	return &PipeWire{
		EarpieceSink: earpieceSink,
		SpeakerSink:  speakerSink,
		LockFile:     lockFile,
		run:          run,
	}
}

// SetCategory mutes the default sink for record-only and unmutes it for
// play-and-record.
func (pw *PipeWire) SetCategory(ctx context.Context, category Category) error {
	var mute string
	switch category {
	case CategoryRecord:
		mute = "1"
	case CategoryPlayAndRecord:
		mute = "0"
	default:
		return fmt.Errorf("unsupported category: %s", category)
	}

	if _, err := pw.run(ctx, "pactl", "set-sink-mute", "@DEFAULT_SINK@", mute); err != nil {
		return err
	}
	slog.Debug("Applied session category", "category", category)
	return nil
}

// OverrideOutputPort switches the default sink. PortNone restores the
// earpiece sink, or leaves routing alone when none is configured.
func (pw *PipeWire) OverrideOutputPort(ctx context.Context, port Port) error {
	var sink string
	switch port {
	case PortSpeaker:
		if pw.SpeakerSink == "" {
			return fmt.Errorf("no speaker sink configured (set session.speaker_sink)")
		}
		sink = pw.SpeakerSink
	case PortNone:
		if pw.EarpieceSink == "" {
			slog.Debug("No earpiece sink configured, keeping current default sink")
			return nil
		}
		sink = pw.EarpieceSink
	default:
		return fmt.Errorf("unsupported port override: %s", port)
	}

	if _, err := pw.run(ctx, "pactl", "set-default-sink", sink); err != nil {
		return err
	}
	slog.Debug("Applied output port override", "port", port, "sink", sink)
	return nil
}

// SetActive takes or releases the session lock. Both directions are
// idempotent.
func (pw *PipeWire) SetActive(ctx context.Context, active bool) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if !active {
		return pw.release()
	}
	if pw.lock != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(pw.LockFile), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(pw.LockFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open session lock: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrBusy
		}
		return fmt.Errorf("failed to lock session: %w", err)
	}

	pw.lock = f
	slog.Debug("Audio session lock acquired", "file", pw.LockFile)
	return nil
}

func (pw *PipeWire) release() error {
	if pw.lock == nil {
		return nil
	}
	f := pw.lock
	pw.lock = nil

	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return fmt.Errorf("failed to unlock session: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close session lock: %w", err)
	}
	slog.Debug("Audio session lock released", "file", pw.LockFile)
	return nil
}
