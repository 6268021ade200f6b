package play

// EventType identifies what happened to playback.
type EventType int

const (
	// EventFinished is sent when a file plays to its end.
	EventFinished EventType = iota
	// EventDecodeError is sent when the player fails mid-playback.
	EventDecodeError
)

func (t EventType) String() string {
	if t == EventDecodeError {
		return "decode-error"
	}
	return "finished"
}

// Event is a completion notification for one file.
type Event struct {
	Type       EventType
	Path       string
	Successful bool
	Err        error
}
