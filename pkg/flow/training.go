package flow

import (
	"context"
	"sync"

	"github.com/haivivi/speakerid/pkg/clipstore"
	"github.com/haivivi/speakerid/pkg/enrollment"
	"github.com/haivivi/speakerid/pkg/recording"
	"github.com/haivivi/speakerid/pkg/storage"
)

const trainingFlow = "training"

// Training records enrollment clips and uploads them in order.
type Training struct {
	opts    options
	session *recording.Session
	enroll  *enrollment.Orchestrator

	ctx    context.Context
	cancel context.CancelFunc

	queue   chan *recording.Artifact
	pending sync.WaitGroup
	worker  sync.WaitGroup

	closeOnce sync.Once
}

// NewTraining creates a Training flow and starts its upload worker. ctx
// bounds the uploads; Close stops the worker.
func NewTraining(ctx context.Context, capture recording.Capture, enroll *enrollment.Orchestrator, opts ...Option) *Training {
	t := &Training{
		opts:   buildOptions(opts),
		enroll: enroll,
		queue:  make(chan *recording.Artifact, clipstore.RequiredClipCount),
	}
	t.ctx, t.cancel = context.WithCancel(ctx)

	cfg := recording.EnrollmentConfig()
	if t.opts.config != nil {
		cfg = *t.opts.config
	}
	t.session = recording.NewSession(capture, cfg, t.opts.sessionOptions(
		recording.WithGate(enroll.Gate),
		recording.WithOnStart(func() {
			t.opts.emit(Event{Kind: EventRecordingStarted, Flow: trainingFlow})
		}),
		recording.WithHandler(t.handle),
	)...)

	t.worker.Add(1)
	go t.run()
	return t
}

// Session returns the underlying recording session.
func (t *Training) Session() *recording.Session {
	return t.session
}

// Orchestrator returns the enrollment orchestrator.
func (t *Training) Orchestrator() *enrollment.Orchestrator {
	return t.enroll
}

// Start begins recording the next clip. It fails with
// enrollment.ErrTrainingComplete or enrollment.ErrEmptyUsername before
// touching the device. Clips still waiting for upload count toward the
// required total.
func (t *Training) Start(ctx context.Context) error {
	return t.session.Start(ctx)
}

// Stop ends the current recording. The returned artifact, if any, is
// already queued for upload.
func (t *Training) Stop() *recording.Artifact {
	return t.session.Stop()
}

// Wait blocks until every queued clip has been uploaded or ctx is done.
func (t *Training) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset stops any recording, drops clips still waiting for upload and
// clears the enrolled clips. The backend is not told.
func (t *Training) Reset() {
	t.session.Stop()
	<-t.session.Done()
	t.drop()
	t.enroll.Reset()
}

// Close stops recording and the upload worker. Queued clips that have not
// started uploading are dropped.
func (t *Training) Close() error {
	t.closeOnce.Do(func() {
		t.session.Stop()
		t.cancel()
		t.worker.Wait()
	})
	return nil
}

func (t *Training) handle(art *recording.Artifact) {
	t.opts.clipReady(trainingFlow, art)
	t.pending.Add(1)
	t.enroll.Hold()
	select {
	case t.queue <- art:
	case <-t.ctx.Done():
		t.enroll.Release()
		t.pending.Done()
	}
}

func (t *Training) run() {
	defer t.worker.Done()
	for {
		select {
		case <-t.ctx.Done():
			t.drop()
			return
		case art := <-t.queue:
			t.upload(art)
			t.pending.Done()
		}
	}
}

func (t *Training) upload(art *recording.Artifact) {
	att := t.enroll.Enroll(t.ctx, art)
	t.opts.emit(Event{Kind: EventEnrollment, Flow: trainingFlow, Attempt: att})
	t.opts.store(t.ctx, trainingFlow, art, storage.ArchiveEntry{
		Kind:     "enrollment",
		Username: att.Username,
		ID:       att.ID,
	})
}

func (t *Training) drop() {
	for {
		select {
		case <-t.queue:
			t.enroll.Release()
			t.pending.Done()
		default:
			return
		}
	}
}
