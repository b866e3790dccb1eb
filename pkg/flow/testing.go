package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/haivivi/speakerid/pkg/recognition"
	"github.com/haivivi/speakerid/pkg/recording"
	"github.com/haivivi/speakerid/pkg/storage"
)

const testingFlow = "testing"

// Testing records test clips and submits each for recognition.
type Testing struct {
	opts    options
	session *recording.Session
	recog   *recognition.Orchestrator
	ctx     context.Context

	mu  sync.Mutex
	req recognition.Request

	inflight sync.WaitGroup
}

// NewTesting creates a Testing flow. ctx bounds the recognition requests.
func NewTesting(ctx context.Context, capture recording.Capture, recog *recognition.Orchestrator, opts ...Option) *Testing {
	t := &Testing{
		opts:  buildOptions(opts),
		recog: recog,
		ctx:   ctx,
	}
	cfg := recording.RecognitionConfig()
	if t.opts.config != nil {
		cfg = *t.opts.config
	}
	t.session = recording.NewSession(capture, cfg, t.opts.sessionOptions(
		recording.WithGate(t.gate),
		recording.WithOnStart(func() {
			t.recog.Clear()
			t.opts.emit(Event{Kind: EventRecordingStarted, Flow: testingFlow})
		}),
		recording.WithHandler(t.handle),
	)...)
	return t
}

// Session returns the underlying recording session.
func (t *Testing) Session() *recording.Session {
	return t.session
}

// Orchestrator returns the recognition orchestrator.
func (t *Testing) Orchestrator() *recognition.Orchestrator {
	return t.recog
}

// SetRequest selects the mode used for the next clips. The request is
// validated now so an empty NamedUserCheck username is rejected before
// anything is recorded.
func (t *Testing) SetRequest(req recognition.Request) error {
	req, err := req.Normalize()
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.req = req
	t.mu.Unlock()
	return nil
}

// Request returns the current request.
func (t *Testing) Request() recognition.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.req
}

// Start begins recording a test clip and clears the previous result.
func (t *Testing) Start(ctx context.Context) error {
	return t.session.Start(ctx)
}

// Stop ends the current recording. A surfaced artifact is submitted in the
// background; use Wait or the observer for the result.
func (t *Testing) Stop() *recording.Artifact {
	return t.session.Stop()
}

// Wait blocks until all submitted clips have been recognized or ctx is done.
func (t *Testing) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops recording and waits for outstanding requests.
func (t *Testing) Close() error {
	t.session.Stop()
	t.inflight.Wait()
	return nil
}

func (t *Testing) gate() error {
	_, err := t.Request().Normalize()
	return err
}

func (t *Testing) handle(art *recording.Artifact) {
	t.opts.clipReady(testingFlow, art)
	req := t.Request()
	gen := t.recog.Generation()
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		res, err := t.recog.RecognizeAt(t.ctx, gen, art, req)
		if err != nil {
			if !errors.Is(err, recognition.ErrValidation) {
				t.opts.logger.Error("flow: recognize", "error", err)
			}
			t.opts.emit(Event{Kind: EventError, Flow: testingFlow, Error: err.Error()})
			return
		}
		t.opts.emit(Event{Kind: EventRecognition, Flow: testingFlow, Result: res})
		t.opts.store(t.ctx, testingFlow, art, storage.ArchiveEntry{
			Kind:     "recognition",
			Username: req.Username,
			ID:       res.ID,
		})
	}()
}
