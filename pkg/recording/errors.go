package recording

import "errors"

var (
	// ErrPermissionDenied is returned by Start when the capture device could
	// not be acquired. The underlying capture error is wrapped alongside it.
	ErrPermissionDenied = errors.New("recording: microphone permission denied")

	// ErrAlreadyRecording is returned by Start when the session is not Idle.
	ErrAlreadyRecording = errors.New("recording: session is not idle")
)
