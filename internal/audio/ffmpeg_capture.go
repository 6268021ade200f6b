package audio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// ffmpeg exits immediately when the source cannot be opened; a process
	// still alive after this window counts as started.
	startupGrace = 300 * time.Millisecond
	stopTimeout  = 5 * time.Second
	stderrLines  = 20
)

// ffmpegCapture runs one ffmpeg process writing to one file.
type ffmpegCapture struct {
	binary    string
	args      []string
	path      string
	logWriter io.Writer

	// stopTimeout bounds how long Stop waits after SIGINT before killing.
	stopTimeout time.Duration

	mutex         sync.RWMutex
	cmd           *exec.Cmd
	running       bool
	stopRequested bool
	err           error
	stderr        []string
	done          chan struct{}
}

func newFFmpegCapture(binary string, args []string, path string, logWriter io.Writer) *ffmpegCapture {
	return &ffmpegCapture{
		binary:      binary,
		args:        args,
		path:        path,
		logWriter:   logWriter,
		stopTimeout: stopTimeout,
		done:        make(chan struct{}),
	}
}

// Start launches ffmpeg and waits out the startup grace period.
func (c *ffmpegCapture) Start() error {
	c.mutex.Lock()
	if c.cmd != nil {
		c.mutex.Unlock()
		return fmt.Errorf("capture already started")
	}

	cmd := exec.Command(c.binary, c.args...)
	// Own process group so a terminal Ctrl+C reaches us, not ffmpeg
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = c.logWriter

	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.mutex.Unlock()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	slog.Debug("Starting FFmpeg capture", "command", c.binary+" "+strings.Join(c.args, " "))
	if err := cmd.Start(); err != nil {
		c.mutex.Unlock()
		return fmt.Errorf("failed to start FFmpeg: %w", err)
	}
	c.cmd = cmd
	c.running = true
	c.mutex.Unlock()

	stderrDone := make(chan struct{})
	go c.readStderr(stderr, stderrDone)
	go c.wait(stderrDone)

	select {
	case <-c.done:
		return c.Err()
	case <-time.After(startupGrace):
		return nil
	}
}

// readStderr keeps the last lines ffmpeg printed for error reports.
func (c *ffmpegCapture) readStderr(pipe io.Reader, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(c.logWriter, line)

		c.mutex.Lock()
		c.stderr = append(c.stderr, line)
		if len(c.stderr) > stderrLines {
			c.stderr = c.stderr[len(c.stderr)-stderrLines:]
		}
		c.mutex.Unlock()
	}
}

func (c *ffmpegCapture) wait(stderrDone <-chan struct{}) {
	<-stderrDone
	err := c.cmd.Wait()

	c.mutex.Lock()
	c.running = false
	if !c.stopRequested && !normalExit(err) {
		c.err = c.describe(err)
	} else if !c.stopRequested {
		// ffmpeg ended on its own with no error: the source went away
		c.err = fmt.Errorf("capture ended unexpectedly")
	}
	c.mutex.Unlock()

	close(c.done)
}

func (c *ffmpegCapture) describe(err error) error {
	if len(c.stderr) == 0 {
		return fmt.Errorf("FFmpeg process failed: %w", err)
	}
	return fmt.Errorf("FFmpeg process failed: %w: %s", err, strings.Join(c.stderr, "; "))
}

// normalExit reports whether a finished ffmpeg exited the way an interrupt
// makes it exit.
func normalExit(err error) bool {
	if err == nil {
		return true
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	// Exit code 255 means ffmpeg was interrupted and finalized the file
	if exitErr.ExitCode() == 255 {
		return true
	}
	if exitErr.ProcessState != nil {
		state := exitErr.ProcessState.String()
		return state == "signal: interrupt" || state == "signal: killed"
	}
	return false
}

// Stop interrupts ffmpeg and waits for the file to be finalized, killing the
// process if it does not exit in time.
func (c *ffmpegCapture) Stop() error {
	c.mutex.Lock()
	if c.cmd == nil || !c.running {
		c.mutex.Unlock()
		return nil
	}
	c.stopRequested = true
	proc := c.cmd.Process
	c.mutex.Unlock()

	slog.Debug("Sending SIGINT to FFmpeg process")
	if err := proc.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to send interrupt to FFmpeg, falling back to SIGKILL", "error", err)
		_ = proc.Kill()
	}

	select {
	case <-c.done:
	case <-time.After(c.stopTimeout):
		slog.Warn("FFmpeg did not exit within timeout, force killing")
		_ = proc.Kill()
		<-c.done
	}

	if info, err := os.Stat(c.path); err != nil || info.Size() == 0 {
		return fmt.Errorf("recording file is empty or missing: %s", c.path)
	}
	return nil
}

func (c *ffmpegCapture) IsRecording() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.running
}

func (c *ffmpegCapture) Done() <-chan struct{} { return c.done }

func (c *ffmpegCapture) Err() error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.err
}
