package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrUnavailable is returned by callers that require an active session and
// could not get one.
var ErrUnavailable = errors.New("audio session unavailable")

// Hardware is the platform audio layer a Controller configures.
type Hardware interface {
	SetCategory(ctx context.Context, category Category) error
	OverrideOutputPort(ctx context.Context, port Port) error
	SetActive(ctx context.Context, active bool) error
}

// Controller owns the audio routing mode and activation state. It is the
// single point of truth for routing; Recorder and Player share one instance.
// Hardware failures are logged and kept as LastError, never returned.
type Controller struct {
	hw    Hardware
	order ApplyOrder

	mu        sync.Mutex
	mode      Mode
	active    bool
	lastError string
	observer  func(op string, mode Mode, err error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithApplyOrder sets the order of the two hardware calls in SetMode.
func WithApplyOrder(order ApplyOrder) Option {
	return func(c *Controller) {
		if order == PortFirst {
			c.order = PortFirst
		} else {
			c.order = CategoryFirst
		}
	}
}

// WithObserver registers a function called after every hardware operation.
// err is nil on success.
func WithObserver(fn func(op string, mode Mode, err error)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// NewController creates a controller in earpiece playback mode. The initial
// mode is not pushed to the hardware until the first SetMode.
func NewController(hw Hardware, opts ...Option) *Controller {
	c := &Controller{
		hw:    hw,
		order: CategoryFirst,
		mode:  Playback(RoutingEarpiece),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetMode applies mode's category and port override. Failures are logged and
// recorded; the mode is considered set either way.
func (c *Controller) SetMode(ctx context.Context, mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode = mode

	steps := []func() error{
		func() error { return c.applyCategory(ctx, mode) },
		func() error { return c.applyPort(ctx, mode) },
	}
	if c.order == PortFirst {
		steps[0], steps[1] = steps[1], steps[0]
	}

	var errs []error
	for _, step := range steps {
		if err := step(); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		c.lastError = err.Error()
		slog.Error("Error setting session mode", "mode", mode, "category", mode.Category(), "port", mode.Port(), "error", err)
	} else {
		slog.Debug("Session mode applied", "mode", mode, "order", c.order)
	}
	c.notify("set_mode", mode, err)
}

// SetActive activates or deactivates the hardware session and reports
// whether it succeeded. It fails when another process holds the session.
//
// This is a synchronous call that may block on hardware arbitration; keep
// it off latency-sensitive paths.
func (c *Controller) SetActive(ctx context.Context, active bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.hw.SetActive(ctx, active); err != nil {
		c.lastError = fmt.Sprintf("set active=%t: %v", active, err)
		slog.Error("Error setting audio session active state", "active", active, "error", err)
		c.notify("set_active", c.mode, err)
		return false
	}

	c.active = active
	slog.Debug("Audio session active state changed", "active", active)
	c.notify("set_active", c.mode, nil)
	return true
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Active reports whether the last successful SetActive activated the session.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// LastError returns the most recent hardware failure message, or "".
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *Controller) applyCategory(ctx context.Context, mode Mode) error {
	if err := c.hw.SetCategory(ctx, mode.Category()); err != nil {
		return fmt.Errorf("set category %s: %w", mode.Category(), err)
	}
	return nil
}

func (c *Controller) applyPort(ctx context.Context, mode Mode) error {
	if err := c.hw.OverrideOutputPort(ctx, mode.Port()); err != nil {
		return fmt.Errorf("override output port %s: %w", mode.Port(), err)
	}
	return nil
}

func (c *Controller) notify(op string, mode Mode, err error) {
	if c.observer != nil {
		c.observer(op, mode, err)
	}
}
