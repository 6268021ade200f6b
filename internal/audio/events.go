package audio

import "fmt"

// EventType identifies what happened to a recording.
type EventType int

const (
	// EventFinished is sent when capture ends, requested or not.
	EventFinished EventType = iota
	// EventEncodeError is sent when capture ends because ffmpeg failed.
	EventEncodeError
)

func (t EventType) String() string {
	switch t {
	case EventFinished:
		return "finished"
	case EventEncodeError:
		return "encode-error"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a completion notification for one recording.
type Event struct {
	Type       EventType
	Path       string
	Successful bool
	Err        error
}
