package recording

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler receives every Artifact a Session surfaces, whichever event
// stopped the recording. It runs on the session's loop goroutine while the
// session is still Finalizing, so Start is refused until it returns.
type Handler func(*Artifact)

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock that drives elapsed time. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHandler sets the artifact handler.
func WithHandler(h Handler) Option {
	return func(s *Session) {
		s.handler = h
	}
}

// WithGate sets a check run by Start before the device is acquired. A
// non-nil error rejects the Start and is returned unchanged.
func WithGate(gate func() error) Option {
	return func(s *Session) {
		s.gate = gate
	}
}

// WithOnStart sets a hook run after the device is acquired and the
// session has entered Recording.
func WithOnStart(fn func()) Option {
	return func(s *Session) {
		s.onStart = fn
	}
}

// Session is one capture lifecycle, reusable across recordings.
type Session struct {
	capture Capture
	cfg     Config
	clock   Clock
	logger  *slog.Logger
	handler Handler
	gate    func() error
	onStart func()

	mu       sync.Mutex
	state    State
	starting bool
	ticks    int
	chunks   [][]byte
	stopReq  chan chan *Artifact
	done     chan struct{}
}

// NewSession creates an Idle session reading from capture.
func NewSession(capture Capture, cfg Config, opts ...Option) *Session {
	s := &Session{
		capture: capture,
		cfg:     cfg.withDefaults(),
		clock:   SystemClock,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the session's duration limits.
func (s *Session) Config() Config {
	return s.cfg
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns the elapsed time of the current recording, or zero when
// no recording is in progress.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	return time.Duration(s.ticks) * s.cfg.TickInterval
}

// Start acquires the capture device and begins recording. It fails with
// the gate's error, ErrAlreadyRecording, or ErrPermissionDenied; in every
// failure case the session stays Idle and holds no device.
func (s *Session) Start(ctx context.Context) error {
	if s.gate != nil {
		if err := s.gate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.state != Idle || s.starting {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	s.starting = true
	s.mu.Unlock()

	stream, err := s.capture.Open(ctx)

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
		s.logger.Warn("recording: capture refused", "error", err)
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	ticker := s.clock.NewTicker(s.cfg.TickInterval)
	s.state = Recording
	s.ticks = 0
	s.chunks = nil
	s.stopReq = make(chan chan *Artifact)
	s.done = make(chan struct{})
	stopReq, done := s.stopReq, s.done
	s.mu.Unlock()

	s.logger.Debug("recording: started",
		"min", s.cfg.MinDuration, "max", s.cfg.MaxDuration, "mime", stream.MIMEType())

	if s.onStart != nil {
		s.onStart()
	}

	go s.loop(stream, ticker, stopReq, done)
	return nil
}

// Done returns a channel closed once the latest recording is finalized and
// handed to the handler. It is already closed before the first Start.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return s.done
}

// Stop ends the current recording and returns the finalized Artifact, or
// nil when the session was not recording, the recording was too short, or
// an automatic stop got there first. The handler has already been called
// with the artifact when Stop returns.
func (s *Session) Stop() *Artifact {
	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return nil
	}
	stopReq, done := s.stopReq, s.done
	s.mu.Unlock()

	reply := make(chan *Artifact, 1)
	select {
	case stopReq <- reply:
		return <-reply
	case <-done:
		return nil
	}
}

type eventKind int

const (
	evTick eventKind = iota
	evChunk
	evStop
	evStreamEnd
)

type event struct {
	kind eventKind
	data []byte
}

// finalization is what a transition out of Recording hands to finish.
type finalization struct {
	reason  StopReason
	elapsed time.Duration
	chunks  [][]byte
}

// transition applies ev to the session. It returns non-nil when ev moved
// the session from Recording to Finalizing.
func (s *Session) transition(ev event) *finalization {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Recording {
		return nil
	}

	var reason StopReason
	switch ev.kind {
	case evChunk:
		if len(ev.data) > 0 {
			s.chunks = append(s.chunks, ev.data)
		}
		return nil
	case evTick:
		s.ticks++
		if s.elapsedLocked() < s.cfg.MaxDuration {
			return nil
		}
		reason = StopMaxDuration
	case evStop:
		reason = StopUser
	case evStreamEnd:
		reason = StopStreamEnded
	}

	s.state = Finalizing
	f := &finalization{
		reason:  reason,
		elapsed: s.elapsedLocked(),
		chunks:  s.chunks,
	}
	s.chunks = nil
	return f
}

func (s *Session) loop(stream Stream, ticker Ticker, stopReq chan chan *Artifact, done chan struct{}) {
	chunks := stream.Chunks()
	var (
		fin   *finalization
		reply chan *Artifact
	)
	for fin == nil {
		select {
		case <-ticker.C():
			fin = s.transition(event{kind: evTick})
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				fin = s.transition(event{kind: evStreamEnd})
				continue
			}
			s.transition(event{kind: evChunk, data: c})
		case r := <-stopReq:
			reply = r
			fin = s.transition(event{kind: evStop})
		}
	}

	ticker.Stop()
	art := s.finish(stream, fin)
	if art != nil && s.handler != nil {
		s.handler(art)
	}

	// Idle only once the handler has taken the artifact, so the next
	// Start (and its OnStart hook) always comes after the hand-off.
	s.mu.Lock()
	s.state = Idle
	s.ticks = 0
	s.mu.Unlock()

	if reply != nil {
		reply <- art
	}
	close(done)
}

// finish releases the device, drains trailing chunks and builds the
// Artifact. The session stays Finalizing.
func (s *Session) finish(stream Stream, fin *finalization) *Artifact {
	if err := stream.Close(); err != nil {
		s.logger.Warn("recording: release capture", "error", err)
	}
	chunks := fin.chunks
	for c := range stream.Chunks() {
		if len(c) > 0 {
			chunks = append(chunks, c)
		}
	}

	log := s.logger.With("reason", fin.reason.String(), "elapsed", fin.elapsed)
	if fin.elapsed < s.cfg.MinDuration {
		log.Debug("recording: discarded, too short", "min", s.cfg.MinDuration)
		return nil
	}

	var (
		data     []byte
		mimeType = stream.MIMEType()
	)
	if enc, ok := stream.(Encoder); ok {
		var err error
		data, mimeType, err = enc.Encode(chunks)
		if err != nil {
			log.Error("recording: encode failed", "error", err)
			return nil
		}
	} else {
		data = bytes.Join(chunks, nil)
	}

	art := &Artifact{data: data, mimeType: mimeType, duration: fin.elapsed}
	log.Info("recording: finalized", "bytes", art.Len(), "mime", art.MIMEType())
	return art
}
