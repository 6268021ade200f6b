package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/audiolibrelab/claudio/internal/audio"
	"github.com/audiolibrelab/claudio/internal/catalog"
	"github.com/audiolibrelab/claudio/internal/config"
	"github.com/audiolibrelab/claudio/internal/metrics"
	"github.com/audiolibrelab/claudio/internal/play"
	"github.com/audiolibrelab/claudio/internal/session"
)

// ErrNoRecordings is returned when playing the latest recording of an empty
// catalog.
var ErrNoRecordings = errors.New("no recordings")

// Service represents the core claudio service interface
type Service interface {
	// Recording operations
	StartRecording(ctx context.Context) (catalog.Recording, error)
	StopRecording(ctx context.Context) error
	ToggleRecording(ctx context.Context) (bool, error)

	// Playback operations
	Play(ctx context.Context, id string) (catalog.Recording, error)
	TogglePause() error
	StopPlayback(ctx context.Context) error
	TogglePlaybackSource() session.Routing
	SetPlaybackSource(r session.Routing)

	// Catalog operations
	ListRecordings(ctx context.Context) ([]RecordingInfo, error)
	DeleteRecording(ctx context.Context, purge bool, ids ...string) error

	// Session operations
	SetSessionMode(ctx context.Context, mode session.Mode)

	// Information operations
	Status() Status
	GetConfig() *config.Config
	GetLastError() string

	// Watch consumes recorder and player events until ctx is done.
	Watch(ctx context.Context)
	Close() error
}

// Recorder is the capture side the service drives.
type Recorder interface {
	Record(ctx context.Context) (string, error)
	Stop(ctx context.Context) error
	IsRecording() bool
	Path() string
	Directory() string
	Events() <-chan audio.Event
}

// Player is the playback side the service drives.
type Player interface {
	Play(ctx context.Context, path string) error
	TogglePauseState() error
	Stop(ctx context.Context) error
	TogglePlaybackMode() session.Routing
	SetPlaybackMode(r session.Routing)
	PlaybackMode() session.Routing
	IsPlaying() bool
	Position() time.Duration
	Loaded() string
	Events() <-chan play.Event
}

// Session is the routing controller as the service sees it.
type Session interface {
	SetMode(ctx context.Context, mode session.Mode)
	Mode() session.Mode
	Active() bool
	LastError() string
}

// Status is a snapshot of what the service is doing.
type Status struct {
	Recording       bool    `json:"recording"`
	RecordingPath   string  `json:"recording_path,omitempty"`
	Playing         bool    `json:"playing"`
	Loaded          string  `json:"loaded,omitempty"`
	PositionSeconds float64 `json:"position_seconds"`
	Routing         string  `json:"routing"`
	Mode            string  `json:"mode"`
	SessionActive   bool    `json:"session_active"`
	SessionError    string  `json:"session_error,omitempty"`
	LastError       string  `json:"last_error,omitempty"`
}

// RecordingInfo is a catalog entry with file information for display.
type RecordingInfo struct {
	catalog.Recording
	Exists         bool   `json:"exists"`
	Size           int64  `json:"size"`
	SizeHuman      string `json:"size_human"`
	CreatedAtHuman string `json:"created_at_human"`
}

// Deps are the collaborators a ClaudioService composes.
type Deps struct {
	Recorder Recorder
	Player   Player
	Session  Session
	Catalog  catalog.Store
	Clock    func() time.Time
}

// ClaudioService is the main service implementation
type ClaudioService struct {
	cfg      *config.Config
	recorder Recorder
	player   Player
	session  Session
	store    catalog.Store
	now      func() time.Time

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New composes a service from already built collaborators.
func New(cfg *config.Config, deps Deps) *ClaudioService {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &ClaudioService{
		cfg:      cfg,
		recorder: deps.Recorder,
		player:   deps.Player,
		session:  deps.Session,
		store:    deps.Catalog,
		now:      now,
	}
}

// Open builds the PipeWire session, ffmpeg recorder, process player and
// catalog from configuration.
func Open(cfg *config.Config, logWriter io.Writer, gate audio.PermissionGate) (*ClaudioService, error) {
	if logWriter == nil {
		logWriter = io.Discard
	}

	store, err := catalog.Open(catalog.Options{Backend: cfg.Catalog.Backend, Path: cfg.Catalog.Path})
	if err != nil {
		return nil, err
	}

	hw := session.NewPipeWire(cfg.Session.EarpieceSink, cfg.Session.SpeakerSink, cfg.Session.LockFile, nil)
	ctrl := session.NewController(hw,
		session.WithApplyOrder(session.ApplyOrder(cfg.Session.ApplyOrder)),
		session.WithObserver(func(op string, mode session.Mode, err error) {
			metrics.ObserveSession(op, mode.String(), err)
		}),
	)

	opts := []audio.RecorderOption{audio.WithFormat(audio.FormatFromConfig(cfg.Audio))}
	if gate != nil {
		opts = append(opts, audio.WithPermissionGate(gate))
	}
	recorder := audio.NewRecorder(cfg.Output.Directory, audio.NewBackend(cfg, logWriter), ctrl, opts...)
	player := play.New(cfg.Output.Directory, ctrl, play.NewProcessFactory())

	return New(cfg, Deps{
		Recorder: recorder,
		Player:   player,
		Session:  ctrl,
		Catalog:  store,
	}), nil
}

// StartRecording starts capture and adds the new file to the catalog. If the
// catalog refuses the entry, capture is stopped again.
func (s *ClaudioService) StartRecording(ctx context.Context) (catalog.Recording, error) {
	slog.Debug("Service.StartRecording called")
	s.clearLastError() // Clear any previous errors when starting a new operation

	path, err := s.recorder.Record(ctx)
	if err != nil {
		metrics.IncRecording(false)
		metrics.IncRecordingFailure(failureReason(err))
		slog.Error("Service.StartRecording failed", "error", err)
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return catalog.Recording{}, err
	}

	rec := catalog.NewRecording(s.recorder.Directory(), path, s.now())
	if err := s.store.Create(ctx, rec); err != nil {
		if stopErr := s.recorder.Stop(ctx); stopErr != nil {
			slog.Warn("Failed to stop recording after catalog failure", "error", stopErr)
		}
		metrics.IncRecording(false)
		metrics.IncRecordingFailure("catalog")
		s.setLastError(fmt.Sprintf("Failed to save recording: %v", err))
		return catalog.Recording{}, fmt.Errorf("failed to save recording %s: %w", path, err)
	}

	metrics.IncRecording(true)
	metrics.SetRecordingActive(true)
	slog.Debug("Service.StartRecording completed successfully", "identifier", rec.Identifier)
	return rec, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "permission"
	case errors.Is(err, audio.ErrCaptureUnavailable), errors.Is(err, audio.ErrCaptureFailed):
		return "capture"
	case errors.Is(err, session.ErrUnavailable):
		return "session"
	case errors.Is(err, audio.ErrAlreadyRecording):
		return "busy"
	default:
		return "other"
	}
}

// StopRecording stops the current recording. It is safe to call when not
// recording. An earlier capture failure stays in GetLastError.
func (s *ClaudioService) StopRecording(ctx context.Context) error {
	err := s.recorder.Stop(ctx)
	metrics.SetRecordingActive(false)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
	}
	return err
}

// ToggleRecording stops a running recording or starts a new one, and reports
// whether it is now recording.
func (s *ClaudioService) ToggleRecording(ctx context.Context) (bool, error) {
	if s.recorder.IsRecording() {
		return false, s.StopRecording(ctx)
	}
	if _, err := s.StartRecording(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Play plays the recording with the given identifier, or the newest one when
// id is empty.
func (s *ClaudioService) Play(ctx context.Context, id string) (catalog.Recording, error) {
	rec, err := s.lookup(ctx, id)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to play: %v", err))
		return catalog.Recording{}, err
	}

	if err := s.player.Play(ctx, rec.FullPath()); err != nil {
		metrics.IncPlayback(false)
		slog.Error("Service.Play failed", "identifier", rec.Identifier, "error", err)
		s.setLastError(fmt.Sprintf("Failed to play %s: %v", rec.Identifier, err))
		return catalog.Recording{}, err
	}
	metrics.IncPlayback(true)
	s.clearLastError()
	return rec, nil
}

func (s *ClaudioService) lookup(ctx context.Context, id string) (catalog.Recording, error) {
	if id != "" {
		return s.store.Get(ctx, id)
	}
	recs, err := s.store.Retrieve(ctx, nil)
	if err != nil {
		return catalog.Recording{}, err
	}
	if len(recs) == 0 {
		return catalog.Recording{}, ErrNoRecordings
	}
	sortNewestFirst(recs)
	return recs[0], nil
}

func sortNewestFirst(recs []catalog.Recording) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].Identifier > recs[j].Identifier
	})
}

func (s *ClaudioService) TogglePause() error {
	if err := s.player.TogglePauseState(); err != nil {
		s.setLastError(fmt.Sprintf("Failed to toggle pause: %v", err))
		return err
	}
	return nil
}

func (s *ClaudioService) StopPlayback(ctx context.Context) error {
	if err := s.player.Stop(ctx); err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop playback: %v", err))
		return err
	}
	return nil
}

// TogglePlaybackSource flips the playback routing used by the next Play.
func (s *ClaudioService) TogglePlaybackSource() session.Routing {
	return s.player.TogglePlaybackMode()
}

func (s *ClaudioService) SetPlaybackSource(r session.Routing) {
	s.player.SetPlaybackMode(r)
}

// ListRecordings returns the catalog, newest first.
func (s *ClaudioService) ListRecordings(ctx context.Context) ([]RecordingInfo, error) {
	recs, err := s.store.Retrieve(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	sortNewestFirst(recs)
	metrics.RecordCatalogSize(len(recs))

	infos := make([]RecordingInfo, 0, len(recs))
	for _, rec := range recs {
		info := RecordingInfo{
			Recording:      rec,
			CreatedAtHuman: rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		}
		if st, err := os.Stat(rec.FullPath()); err == nil {
			info.Exists = true
			info.Size = st.Size()
			info.SizeHuman = formatBytes(st.Size())
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// DeleteRecording removes entries from the catalog. With purge the audio
// files are removed too. Unknown identifiers are ignored.
func (s *ClaudioService) DeleteRecording(ctx context.Context, purge bool, ids ...string) error {
	if purge {
		for _, id := range ids {
			rec, err := s.store.Get(ctx, id)
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if s.player.Loaded() == rec.FullPath() {
				if stopErr := s.player.Stop(ctx); stopErr != nil {
					slog.Warn("Failed to stop playback before removing file", "path", rec.FullPath(), "error", stopErr)
				}
			}
			if err := os.Remove(rec.FullPath()); err != nil && !os.IsNotExist(err) {
				s.setLastError(fmt.Sprintf("Failed to remove %s: %v", rec.FullPath(), err))
				return fmt.Errorf("failed to remove recording file: %w", err)
			}
		}
	}

	if err := s.store.Delete(ctx, ids...); err != nil {
		s.setLastError(fmt.Sprintf("Failed to delete recordings: %v", err))
		return err
	}
	slog.Info("Deleted recordings", "count", len(ids), "purge", purge)
	return nil
}

// SetSessionMode applies mode directly. Hardware failures show up in
// Status().SessionError.
func (s *ClaudioService) SetSessionMode(ctx context.Context, mode session.Mode) {
	s.session.SetMode(ctx, mode)
}

func (s *ClaudioService) Status() Status {
	return Status{
		Recording:       s.recorder.IsRecording(),
		RecordingPath:   s.recorder.Path(),
		Playing:         s.player.IsPlaying(),
		Loaded:          s.player.Loaded(),
		PositionSeconds: s.player.Position().Seconds(),
		Routing:         s.player.PlaybackMode().String(),
		Mode:            s.session.Mode().String(),
		SessionActive:   s.session.Active(),
		SessionError:    s.session.LastError(),
		LastError:       s.GetLastError(),
	}
}

// GetConfig returns the current configuration
func (s *ClaudioService) GetConfig() *config.Config {
	return s.cfg
}

// Watch logs and counts recorder and player events until ctx is done.
func (s *ClaudioService) Watch(ctx context.Context) {
	recEvents := s.recorder.Events()
	playEvents := s.player.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-recEvents:
			s.handleRecorderEvent(ev)
		case ev := <-playEvents:
			s.handlePlayerEvent(ev)
		}
	}
}

func (s *ClaudioService) handleRecorderEvent(ev audio.Event) {
	switch ev.Type {
	case audio.EventEncodeError:
		metrics.IncRecordingFailure("encode")
		slog.Error("Recording failed", "path", ev.Path, "error", ev.Err)
		s.setLastError(fmt.Sprintf("Recording %s failed: %v", ev.Path, ev.Err))
	case audio.EventFinished:
		slog.Info("Recording finished", "path", ev.Path, "successful", ev.Successful)
	}
	metrics.SetRecordingActive(s.recorder.IsRecording())
}

func (s *ClaudioService) handlePlayerEvent(ev play.Event) {
	switch ev.Type {
	case play.EventDecodeError:
		slog.Error("Playback failed", "path", ev.Path, "error", ev.Err)
		s.setLastError(fmt.Sprintf("Playback of %s failed: %v", ev.Path, ev.Err))
	case play.EventFinished:
		metrics.IncPlaybackFinished(ev.Successful)
		slog.Info("Playback finished", "path", ev.Path, "successful", ev.Successful)
	}
}

// Close stops any capture or playback and closes the catalog.
func (s *ClaudioService) Close() error {
	ctx := context.Background()
	var errs []error
	if s.recorder.IsRecording() {
		errs = append(errs, s.recorder.Stop(ctx))
	}
	// A paused player is loaded but not playing
	if s.player.Loaded() != "" {
		errs = append(errs, s.player.Stop(ctx))
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// GetLastError returns the last error message
func (s *ClaudioService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message
func (s *ClaudioService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err
}

// clearLastError clears the last error message
func (s *ClaudioService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
