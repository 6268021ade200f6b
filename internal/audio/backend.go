package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/claudio/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypePipeWire BackendType = "pipewire"
	BackendTypeAuto     BackendType = "auto"
)

// Quality is the encoder quality preset.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Format describes how captured audio is encoded.
type Format struct {
	SampleRate int
	Channels   int
	Codec      string
	Quality    Quality
}

// DefaultFormat is mono 44.1 kHz AAC at medium quality.
func DefaultFormat() Format {
	return Format{
		SampleRate: 44100,
		Channels:   1,
		Codec:      "aac",
		Quality:    QualityMedium,
	}
}

// FormatFromConfig builds the capture format from the audio section.
func FormatFromConfig(cfg config.AudioConfig) Format {
	return Format{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Codec:      cfg.Codec,
		Quality:    Quality(strings.ToLower(cfg.Quality)),
	}
}

// Bitrate returns the ffmpeg bitrate for the quality preset.
func (f Format) Bitrate() string {
	switch f.Quality {
	case QualityLow:
		return "32k"
	case QualityHigh:
		return "128k"
	default:
		return "64k"
	}
}

// Container returns the ffmpeg muxer for the codec. Recordings carry no file
// extension, so the muxer is always explicit.
func (f Format) Container() (string, error) {
	switch f.Codec {
	case "aac":
		return "adts", nil
	case "flac":
		return "flac", nil
	case "libopus", "opus":
		return "ogg", nil
	case "libmp3lame", "mp3":
		return "mp3", nil
	case "pcm_s16le":
		return "wav", nil
	default:
		return "", fmt.Errorf("unsupported codec: %s", f.Codec)
	}
}

func (f Format) validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 2 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	_, err := f.Container()
	return err
}

// Capture is one underlying capture process writing to one file.
type Capture interface {
	Start() error
	// Stop ends capture and waits for the file to be finalized. Stopping a
	// capture that is not running is a no-op.
	Stop() error
	IsRecording() bool
	// Done is closed when capture has ended for any reason.
	Done() <-chan struct{}
	// Err is the reason capture ended, or nil for a requested stop.
	Err() error
}

// Backend creates capture objects.
type Backend interface {
	NewCapture(path string, format Format) (Capture, error)
	GetType() BackendType
}

// SourceValidator is implemented by backends that can check their configured
// input before capture starts.
type SourceValidator interface {
	ValidateSource(ctx context.Context) error
}

// NewBackend creates the backend selected by configuration.
func NewBackend(cfg *config.Config, logWriter io.Writer) Backend {
	switch determineBackend(cfg) {
	case BackendTypePipeWire:
		return NewPipeWireBackend(cfg.Audio.Source, logWriter)
	default:
		// Default to PipeWire as the only available backend
		return NewPipeWireBackend(cfg.Audio.Source, logWriter)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	switch strings.ToLower(cfg.Audio.Backend) {
	case "pipewire", "auto":
		return BackendTypePipeWire // Only PipeWire is available now
	}
	return BackendTypePipeWire
}

// PipeWireBackend records through ffmpeg's pulse input, served by
// PipeWire's PulseAudio compatibility layer.
type PipeWireBackend struct {
	Source    string
	logWriter io.Writer
	lookPath  func(string) (string, error)
}

// NewPipeWireBackend records from source, "default" when empty. ffmpeg output
// goes to logWriter.
func NewPipeWireBackend(source string, logWriter io.Writer) *PipeWireBackend {
	if source == "" {
		source = "default"
	}
	if logWriter == nil {
		logWriter = io.Discard
	}
	return &PipeWireBackend{Source: source, logWriter: logWriter, lookPath: exec.LookPath}
}

// NewCapture prepares an ffmpeg capture to path. It fails when ffmpeg is
// missing or the format cannot be encoded.
func (p *PipeWireBackend) NewCapture(path string, format Format) (Capture, error) {
	if err := format.validate(); err != nil {
		return nil, err
	}
	binary, err := p.lookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	return newFFmpegCapture(binary, captureArgs(p.Source, path, format), path, p.logWriter), nil
}

// GetType returns the backend type
func (p *PipeWireBackend) GetType() BackendType {
	return BackendTypePipeWire
}

func captureArgs(source, path string, format Format) []string {
	container, _ := format.Container()
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", "pulse",
		"-i", source,
		"-ac", fmt.Sprintf("%d", format.Channels),
		"-ar", fmt.Sprintf("%d", format.SampleRate),
		"-c:a", format.Codec,
		"-b:a", format.Bitrate(),
		"-f", container,
		"-y", // Overwrite output
		path,
	}
}
