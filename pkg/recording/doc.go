// Package recording owns the lifecycle of a single microphone capture.
//
// A Session moves through Idle → Recording → Finalizing → Idle. While
// recording, a ticker advances the elapsed time in fixed steps and the
// capture Stream delivers encoded chunks. Every input (tick, chunk, user
// stop, end of stream) is an event applied by one transition function on
// the session's loop goroutine, so a tick that reaches MaxDuration and a
// user-initiated Stop can never both finalize the same recording.
//
// On stop the capture device is released and the accumulated chunks are
// finalized into an immutable Artifact. Recordings shorter than the
// configured MinDuration are discarded without surfacing anything.
//
// Example usage:
//
//	s := recording.NewSession(capture, recording.EnrollmentConfig(),
//	    recording.WithHandler(func(a *recording.Artifact) {
//	        // upload a
//	    }),
//	)
//	if err := s.Start(ctx); err != nil {
//	    // errors.Is(err, recording.ErrPermissionDenied)
//	}
//	...
//	s.Stop()
package recording
