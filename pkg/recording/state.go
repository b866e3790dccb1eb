package recording

import "fmt"

// State is the lifecycle state of a Session.
type State int

const (
	// Idle means no capture device is held.
	Idle State = iota

	// Recording means the device is open and elapsed time is advancing.
	Recording

	// Finalizing means the device is being released and the chunks are
	// being turned into an Artifact.
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StopReason records which event ended a recording.
type StopReason int

const (
	// StopUser is a Stop call from the caller.
	StopUser StopReason = iota

	// StopMaxDuration is the automatic stop at MaxDuration.
	StopMaxDuration

	// StopStreamEnded means the capture stream closed on its own.
	StopStreamEnded
)

func (r StopReason) String() string {
	switch r {
	case StopUser:
		return "user"
	case StopMaxDuration:
		return "max_duration"
	case StopStreamEnded:
		return "stream_ended"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}
