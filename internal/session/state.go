package session

import "fmt"

// State is the playback state of a session.
type State int32

// Session states. Stopped is terminal.
const (
	Idle State = iota
	Playing
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
