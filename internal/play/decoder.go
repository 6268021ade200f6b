package play

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Decoder plays one file. A stopped decoder can be played again from the
// start.
type Decoder interface {
	Path() string
	// Play starts playback, or resumes it when paused.
	Play() error
	Pause() error
	// Stop halts playback and rewinds to the start.
	Stop() error
	Playing() bool
	Position() time.Duration
}

// DecoderFactory builds decoders. notify receives the completion events of
// the decoder it builds.
type DecoderFactory interface {
	NewDecoder(path string, notify func(Event)) (Decoder, error)
}

// ProcessFactory builds decoders that run an external audio player.
type ProcessFactory struct {
	// Players in order of preference.
	Players  []string
	lookPath func(string) (string, error)
}

func NewProcessFactory() *ProcessFactory {
	return &ProcessFactory{
		Players:  []string{"ffplay", "mpv", "cvlc"},
		lookPath: exec.LookPath,
	}
}

func (f *ProcessFactory) NewDecoder(path string, notify func(Event)) (Decoder, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}
	player, binary, err := f.findAudioPlayer()
	if err != nil {
		return nil, err
	}
	return &processDecoder{
		path:   path,
		player: player,
		binary: binary,
		notify: notify,
	}, nil
}

func (f *ProcessFactory) findAudioPlayer() (string, string, error) {
	for _, player := range f.Players {
		if binary, err := f.lookPath(player); err == nil {
			return player, binary, nil
		}
	}
	return "", "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(f.Players, ", "))
}

func playerArgs(player, path string) []string {
	switch player {
	case "mpv":
		return []string{"--no-video", "--really-quiet", path}
	case "cvlc":
		return []string{"--play-and-exit", "--quiet", path}
	default:
		return []string{"-nodisp", "-autoexit", "-loglevel", "error", path}
	}
}

type decoderState int

const (
	stateStopped decoderState = iota
	statePlaying
	statePaused
)

// processDecoder pauses by stopping the player process with SIGSTOP and
// resumes it with SIGCONT. Position is wall clock time spent playing.
type processDecoder struct {
	path   string
	player string
	binary string
	notify func(Event)

	mu        sync.Mutex
	cmd       *exec.Cmd
	done      chan struct{}
	state     decoderState
	startedAt time.Time
	played    time.Duration
	// generation is bumped on every start and stop so that the waiter of a
	// killed process does not report it as finished.
	generation int
}

func (d *processDecoder) Path() string { return d.path }

func (d *processDecoder) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case statePlaying:
		return nil
	case statePaused:
		if err := d.cmd.Process.Signal(syscall.SIGCONT); err != nil {
			return fmt.Errorf("resume %s: %w", d.player, err)
		}
		d.state = statePlaying
		d.startedAt = time.Now()
		return nil
	}

	cmd := exec.Command(d.binary, playerArgs(d.player, d.path)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", d.player, err)
	}
	slog.Debug("Started player", "player", d.player, "path", d.path, "pid", cmd.Process.Pid)

	d.generation++
	d.cmd = cmd
	d.done = make(chan struct{})
	d.state = statePlaying
	d.startedAt = time.Now()
	d.played = 0
	go d.wait(cmd, d.done, d.generation)
	return nil
}

func (d *processDecoder) wait(cmd *exec.Cmd, done chan struct{}, generation int) {
	err := cmd.Wait()

	d.mu.Lock()
	natural := generation == d.generation
	if natural {
		d.state = stateStopped
		d.played = 0
		d.cmd = nil
	}
	d.mu.Unlock()
	close(done)

	if !natural {
		return
	}
	if err != nil {
		d.notify(Event{Type: EventDecodeError, Path: d.path, Err: err})
	}
	d.notify(Event{Type: EventFinished, Path: d.path, Successful: err == nil, Err: err})
}

func (d *processDecoder) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != statePlaying {
		return nil
	}
	if err := d.cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		return fmt.Errorf("pause %s: %w", d.player, err)
	}
	d.played += time.Since(d.startedAt)
	d.state = statePaused
	return nil
}

func (d *processDecoder) Stop() error {
	d.mu.Lock()
	if d.state == stateStopped || d.cmd == nil {
		d.played = 0
		d.mu.Unlock()
		return nil
	}
	d.generation++
	proc, done := d.cmd.Process, d.done
	d.cmd = nil
	d.state = stateStopped
	d.played = 0
	d.mu.Unlock()

	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("stop %s: %w", d.player, err)
	}
	<-done
	return nil
}

func (d *processDecoder) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == statePlaying
}

func (d *processDecoder) Position() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == statePlaying {
		return d.played + time.Since(d.startedAt)
	}
	return d.played
}
