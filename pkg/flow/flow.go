// Package flow wires a recording session to an orchestrator.
//
// Training pairs the enrollment recording preset with an
// enrollment.Orchestrator and uploads finished clips in recording order from
// a single worker. Testing pairs the recognition preset with a
// recognition.Orchestrator and clears the previous result whenever a new
// recording starts. Both report progress as Events and can copy every
// artifact to a storage.FileStore.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/haivivi/speakerid/pkg/enrollment"
	"github.com/haivivi/speakerid/pkg/recognition"
	"github.com/haivivi/speakerid/pkg/recording"
	"github.com/haivivi/speakerid/pkg/storage"
)

// EventKind identifies an Event.
type EventKind string

const (
	EventRecordingStarted EventKind = "recording_started"
	EventClipReady        EventKind = "clip_ready"
	EventEnrollment       EventKind = "enrollment"
	EventRecognition      EventKind = "recognition"
	EventArchived         EventKind = "archived"
	EventError            EventKind = "error"
)

// Event is one observable step of a flow.
type Event struct {
	Kind EventKind `json:"kind"`
	Flow string    `json:"flow"`
	Time time.Time `json:"time"`

	// Clip fields, set on EventClipReady.
	Duration time.Duration `json:"duration,omitempty"`
	Bytes    int           `json:"bytes,omitempty"`
	MIMEType string        `json:"mime_type,omitempty"`

	Attempt *enrollment.Attempt `json:"attempt,omitempty"`
	Result  *recognition.Result `json:"result,omitempty"`

	// Path is the archive path, set on EventArchived.
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// Observer receives flow events. It is called from the flow's goroutines
// and must not block for long.
type Observer func(Event)

// Option configures a Training or Testing flow.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer Observer
	archive  storage.FileStore
	clock    recording.Clock
	config   *recording.Config
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers an event observer.
func WithObserver(fn Observer) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithArchive copies every surfaced artifact to fs.
func WithArchive(fs storage.FileStore) Option {
	return func(o *options) {
		o.archive = fs
	}
}

// WithClock sets the recording clock. Used by tests.
func WithClock(c recording.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithRecordingConfig overrides the recording preset.
func WithRecordingConfig(cfg recording.Config) Option {
	return func(o *options) {
		o.config = &cfg
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) emit(ev Event) {
	if o.observer == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	o.observer(ev)
}

func (o *options) sessionOptions(extra ...recording.Option) []recording.Option {
	opts := []recording.Option{recording.WithLogger(o.logger)}
	if o.clock != nil {
		opts = append(opts, recording.WithClock(o.clock))
	}
	return append(opts, extra...)
}

func (o *options) clipReady(flow string, art *recording.Artifact) {
	o.logger.Debug("flow: clip ready", "flow", flow, "duration", art.Duration(), "bytes", art.Len())
	o.emit(Event{
		Kind:     EventClipReady,
		Flow:     flow,
		Duration: art.Duration(),
		Bytes:    art.Len(),
		MIMEType: art.MIMEType(),
	})
}

// store writes art to the archive, if one is configured. Failures are
// reported as events and never affect the flow.
func (o *options) store(ctx context.Context, flow string, art *recording.Artifact, entry storage.ArchiveEntry) {
	if o.archive == nil {
		return
	}
	entry.Ext = art.Extension()
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	p := entry.Path()
	if err := storage.WriteFile(ctx, o.archive, p, art.Reader()); err != nil {
		o.logger.Warn("flow: archive clip", "path", p, "error", err)
		o.emit(Event{Kind: EventError, Flow: flow, Path: p, Error: err.Error()})
		return
	}
	o.logger.Debug("flow: clip archived", "path", p)
	o.emit(Event{Kind: EventArchived, Flow: flow, Path: p})
}
