package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/audiolibrelab/claudio/internal/session"
)

var (
	// ErrAlreadyRecording is returned by Record while capture is active.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrPermissionDenied is returned when the user refused microphone access.
	ErrPermissionDenied = errors.New("microphone access denied")
	// ErrCaptureUnavailable is returned when no capture object can be built.
	ErrCaptureUnavailable = errors.New("capture unavailable")
	// ErrCaptureFailed is returned when capture dies while starting.
	ErrCaptureFailed = errors.New("capture failed to start")
)

// Session is the routing controller the Recorder drives.
type Session interface {
	SetMode(ctx context.Context, mode session.Mode)
	SetActive(ctx context.Context, active bool) bool
}

// Recorder captures microphone audio to timestamped files in one directory.
type Recorder struct {
	dir     string
	backend Backend
	session Session
	format  Format
	gate    PermissionGate
	now     func() time.Time

	mutex   sync.Mutex
	capture Capture
	path    string

	// failed holds the error of a capture that died on its own until the
	// next Stop or Record.
	failed error
	events chan Event
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock sets the time source used to name recordings.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithFormat overrides DefaultFormat.
func WithFormat(f Format) RecorderOption {
	return func(r *Recorder) { r.format = f }
}

// WithPermissionGate sets the microphone permission gate. Without one, access
// is granted.
func WithPermissionGate(g PermissionGate) RecorderOption {
	return func(r *Recorder) { r.gate = g }
}

// NewRecorder creates a Recorder writing to dir. Nothing is captured until
// Record.
func NewRecorder(dir string, backend Backend, sess Session, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		dir:     dir,
		backend: backend,
		session: sess,
		format:  DefaultFormat(),
		gate:    StaticGate(DecisionGranted),
		now:     time.Now,
		events:  make(chan Event, 16),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record starts capturing to a new file named after the current UTC time and
// returns that name, relative to the recording directory.
func (r *Recorder) Record(ctx context.Context) (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.capture != nil && r.capture.IsRecording() {
		return "", ErrAlreadyRecording
	}
	r.failed = nil

	decision, err := r.gate.Request(ctx)
	if err != nil {
		return "", fmt.Errorf("microphone permission: %w", err)
	}
	if decision != DecisionGranted {
		return "", ErrPermissionDenied
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if v, ok := r.backend.(SourceValidator); ok {
		if err := v.ValidateSource(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
		}
	}

	path := r.now().UTC().Format(time.RFC3339Nano)
	fullPath := filepath.Join(r.dir, path)

	capture, err := r.backend.NewCapture(fullPath, r.format)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	r.session.SetMode(ctx, session.Recording)
	if !r.session.SetActive(ctx, true) {
		return "", session.ErrUnavailable
	}

	if err := capture.Start(); err != nil {
		r.session.SetActive(ctx, false)
		return "", fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	r.capture = capture
	r.path = path
	go r.watch(capture, path)

	slog.Info("Recording started", "path", fullPath, "backend", r.backend.GetType())
	return path, nil
}

// watch reports the end of capture and releases the session if capture died
// on its own.
func (r *Recorder) watch(c Capture, path string) {
	<-c.Done()
	err := c.Err()

	if err != nil {
		slog.Error("Recording ended with error", "path", path, "error", err)
		r.emit(Event{Type: EventEncodeError, Path: path, Err: err})

		r.mutex.Lock()
		if r.capture == c {
			r.capture = nil
			r.failed = fmt.Errorf("recording %s: %w", path, err)
			r.session.SetActive(context.Background(), false)
		}
		r.mutex.Unlock()
	}
	r.emit(Event{Type: EventFinished, Path: path, Successful: err == nil, Err: err})
}

func (r *Recorder) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		slog.Warn("Dropping recorder event, nobody is listening", "type", ev.Type, "path", ev.Path)
	}
}

// Stop halts capture and deactivates the session. Calling it while not
// recording only deactivates the session. If capture had already died, its
// error is returned once.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	err := r.failed
	r.failed = nil
	if r.capture != nil {
		err = r.capture.Stop()
		r.capture = nil
		if err != nil {
			slog.Error("Failed to stop recording", "path", r.path, "error", err)
		} else {
			slog.Info("Recording stopped", "path", r.path)
		}
	}
	r.session.SetActive(ctx, false)
	return err
}

// IsRecording reports whether capture is active.
func (r *Recorder) IsRecording() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.capture != nil && r.capture.IsRecording()
}

// Path returns the name of the current or last recording.
func (r *Recorder) Path() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.path
}

// Directory returns the directory recordings are written to.
func (r *Recorder) Directory() string { return r.dir }

// Events delivers completion notifications.
func (r *Recorder) Events() <-chan Event { return r.events }
