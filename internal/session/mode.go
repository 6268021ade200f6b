package session

import "fmt"

// Routing selects the physical output used during playback.
type Routing int

const (
	RoutingEarpiece Routing = iota
	RoutingSpeaker
)

func (r Routing) String() string {
	switch r {
	case RoutingEarpiece:
		return "earpiece"
	case RoutingSpeaker:
		return "speaker"
	default:
		return fmt.Sprintf("routing(%d)", int(r))
	}
}

// Toggle returns the other routing.
func (r Routing) Toggle() Routing {
	if r == RoutingEarpiece {
		return RoutingSpeaker
	}
	return RoutingEarpiece
}

// Category is the set of capabilities requested from the audio hardware.
type Category string

const (
	CategoryRecord        Category = "record"
	CategoryPlayAndRecord Category = "play-and-record"
)

// Port is the output port override.
type Port string

const (
	PortNone    Port = "none"
	PortSpeaker Port = "speaker"
)

// Mode is how the shared audio hardware is configured: either recording, or
// playback through a routing. The zero value is earpiece playback.
type Mode struct {
	recording bool
	routing   Routing
}

// Recording is the capture mode.
var Recording = Mode{recording: true}

// Playback returns the playback mode for the given routing.
func Playback(r Routing) Mode {
	return Mode{routing: r}
}

// IsRecording reports whether m is the capture mode.
func (m Mode) IsRecording() bool { return m.recording }

// Routing returns the playback routing. It is meaningless for Recording.
func (m Mode) Routing() Routing { return m.routing }

// Category maps the mode to its hardware category.
func (m Mode) Category() Category {
	if m.recording {
		return CategoryRecord
	}
	return CategoryPlayAndRecord
}

// Port maps the mode to its output port override.
func (m Mode) Port() Port {
	if !m.recording && m.routing == RoutingSpeaker {
		return PortSpeaker
	}
	return PortNone
}

func (m Mode) String() string {
	if m.recording {
		return "recording"
	}
	return "playback(" + m.routing.String() + ")"
}

// ParseMode accepts "recording", "earpiece" and "speaker".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "recording", "record":
		return Recording, nil
	case "earpiece":
		return Playback(RoutingEarpiece), nil
	case "speaker":
		return Playback(RoutingSpeaker), nil
	default:
		return Mode{}, fmt.Errorf("unknown session mode '%s' (valid: recording, earpiece, speaker)", s)
	}
}

// ApplyOrder is the order in which SetMode pushes category and port to the
// hardware.
type ApplyOrder string

const (
	CategoryFirst ApplyOrder = "category-first"
	PortFirst     ApplyOrder = "port-first"
)
