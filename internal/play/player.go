package play

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/audiolibrelab/claudio/internal/session"
)

var (
	// ErrPlayerUnavailable is returned when no decoder can be built for a file.
	ErrPlayerUnavailable = errors.New("player unavailable")
	ErrNothingLoaded     = errors.New("nothing loaded")
)

// Session is the routing controller the Player drives.
type Session interface {
	SetMode(ctx context.Context, mode session.Mode)
	SetActive(ctx context.Context, active bool) bool
}

// Player plays recordings from one directory through the current routing.
// The decoder of the last file is kept and reused while the same file is
// played again.
type Player struct {
	dir     string
	session Session
	factory DecoderFactory

	mu      sync.Mutex
	decoder Decoder
	routing session.Routing
	events  chan Event
}

// New creates a Player that resolves relative paths against dir and builds
// decoders with factory.
func New(dir string, sess Session, factory DecoderFactory) *Player {
	return &Player{
		dir:     dir,
		session: sess,
		factory: factory,
		routing: session.RoutingEarpiece,
		events:  make(chan Event, 16),
	}
}

func (p *Player) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.dir, path)
}

// Play starts or resumes playback of path, relative to the playback
// directory unless absolute.
func (p *Player) Play(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	audioFile := p.resolve(path)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.session.SetMode(ctx, session.Playback(p.routing))
	if !p.session.SetActive(ctx, true) {
		return session.ErrUnavailable
	}

	if p.decoder == nil || p.decoder.Path() != audioFile {
		if p.decoder != nil {
			if err := p.decoder.Stop(); err != nil {
				slog.Warn("Failed to stop previous decoder", "path", p.decoder.Path(), "error", err)
			}
		}
		decoder, err := p.factory.NewDecoder(audioFile, p.emit)
		if err != nil {
			p.decoder = nil
			return fmt.Errorf("%w: %v", ErrPlayerUnavailable, err)
		}
		p.decoder = decoder
		slog.Debug("Loaded decoder", "path", audioFile)
	}

	if err := p.decoder.Play(); err != nil {
		return err
	}
	slog.Info("Playing", "path", audioFile, "routing", p.routing)
	return nil
}

func (p *Player) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		slog.Warn("Dropping player event, nobody is listening", "type", ev.Type, "path", ev.Path)
	}
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.decoder == nil {
		return ErrNothingLoaded
	}
	return p.decoder.Pause()
}

func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.decoder == nil {
		return ErrNothingLoaded
	}
	return p.decoder.Play()
}

// TogglePauseState pauses when playing and resumes otherwise.
func (p *Player) TogglePauseState() error {
	if p.IsPlaying() {
		return p.Pause()
	}
	return p.Resume()
}

// Stop halts playback, deactivates the session and rewinds to the start.
// The loaded decoder stays cached.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.decoder != nil {
		err = p.decoder.Stop()
	}
	p.session.SetActive(ctx, false)
	return err
}

// TogglePlaybackMode flips between earpiece and speaker. The new routing is
// applied by the next Play.
func (p *Player) TogglePlaybackMode() session.Routing {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routing = p.routing.Toggle()
	slog.Debug("Playback routing changed", "routing", p.routing)
	return p.routing
}

func (p *Player) SetPlaybackMode(r session.Routing) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routing = r
}

func (p *Player) PlaybackMode() session.Routing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.routing
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decoder != nil && p.decoder.Playing()
}

func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.decoder == nil {
		return 0
	}
	return p.decoder.Position()
}

// Loaded returns the file of the cached decoder, or "".
func (p *Player) Loaded() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.decoder == nil {
		return ""
	}
	return p.decoder.Path()
}

// Events delivers completion notifications.
func (p *Player) Events() <-chan Event { return p.events }
