// Package enrollment uploads recorded training clips to the backend one at a
// time and keeps the clip store in step with what the backend accepted.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/speakerid/pkg/clipstore"
	"github.com/haivivi/speakerid/pkg/history"
	"github.com/haivivi/speakerid/pkg/recording"
	"github.com/haivivi/speakerid/pkg/speakerapi"
)

var (
	// ErrEmptyUsername is returned when the username is blank.
	ErrEmptyUsername = errors.New("enrollment: username is required")

	// ErrUsernameLocked is returned when changing the username after the
	// first clip was enrolled.
	ErrUsernameLocked = errors.New("enrollment: username is locked after the first clip")

	// ErrTrainingComplete is returned by Gate once all clips are enrolled.
	ErrTrainingComplete = errors.New("enrollment: training is complete")
)

// Backend is the part of the speaker-recognition backend used here.
type Backend interface {
	Enroll(ctx context.Context, req *speakerapi.EnrollRequest) (*speakerapi.EnrollResult, error)
}

// Status is the state of an Attempt.
type Status string

const (
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// Attempt is one clip upload.
type Attempt struct {
	ID        string        `json:"id"`
	ClipIndex int           `json:"clip_index"`
	Username  string        `json:"username"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHistory records every finished attempt.
func WithHistory(r history.Recorder) Option {
	return func(o *Orchestrator) {
		o.history = r
	}
}

// WithObserver is called on every attempt status change, including the
// transition to Uploading.
func WithObserver(fn func(Attempt)) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// Orchestrator drives enrollment for one user.
type Orchestrator struct {
	backend  Backend
	store    *clipstore.Store
	logger   *slog.Logger
	history  history.Recorder
	observer func(Attempt)

	// uploadMu serializes Enroll calls so a clip index is never computed
	// while another upload is outstanding.
	uploadMu sync.Mutex

	mu       sync.Mutex
	username string
	current  *Attempt
	epoch    uint64
	held     int // clips handed off with Hold, not yet through Enroll
}

// New creates an Orchestrator. A nil store gets a fresh clipstore.Store.
func New(backend Backend, store *clipstore.Store, opts ...Option) *Orchestrator {
	if store == nil {
		store = clipstore.New()
	}
	o := &Orchestrator{
		backend: backend,
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SetUsername sets the user clips are enrolled for. The name is normalized
// first. Once a clip is enrolled only the same name is accepted.
func (o *Orchestrator) SetUsername(name string) error {
	name = NormalizeUsername(name)
	if name == "" {
		return ErrEmptyUsername
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store.Len() > 0 && name != o.username {
		return ErrUsernameLocked
	}
	o.username = name
	return nil
}

// Username returns the normalized username.
func (o *Orchestrator) Username() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.username
}

// Store returns the clip store.
func (o *Orchestrator) Store() *clipstore.Store {
	return o.store
}

// Current returns the most recent attempt, or nil after Reset.
func (o *Orchestrator) Current() *Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return nil
	}
	a := *o.current
	return &a
}

// Gate reports whether a new training recording may start. Held clips
// count as enrolled, so no recording starts once they would fill the store.
func (o *Orchestrator) Gate() error {
	o.mu.Lock()
	n := o.store.Len() + o.held
	username := o.username
	o.mu.Unlock()
	if n >= clipstore.RequiredClipCount {
		return ErrTrainingComplete
	}
	if username == "" {
		return ErrEmptyUsername
	}
	return nil
}

// Hold reserves a place for a clip that will be passed to Enroll later.
// Enroll gives the place back when it finishes; Release gives it back for
// a clip that is dropped instead.
func (o *Orchestrator) Hold() {
	o.mu.Lock()
	o.held++
	o.mu.Unlock()
}

// Release gives back a place taken by Hold.
func (o *Orchestrator) Release() {
	o.mu.Lock()
	o.releaseLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) releaseLocked() {
	if o.held > 0 {
		o.held--
	}
}

// Reset clears the clip store and the attempt status. The backend is not
// told; clips it already accepted stay enrolled there. An upload still in
// flight when Reset is called is not added to the store.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.store.Reset()
	o.current = nil
	o.epoch++
	o.mu.Unlock()
	o.logger.Info("enrollment: reset")
}

// Enroll uploads art as the next clip. It never returns an error: failures
// are reported through the Attempt status and message, and leave the clip
// store unchanged. One place taken by Hold is released either way.
func (o *Orchestrator) Enroll(ctx context.Context, art *recording.Artifact) *Attempt {
	o.uploadMu.Lock()
	defer o.uploadMu.Unlock()

	released := false
	defer func() {
		if !released {
			o.Release()
		}
	}()

	o.mu.Lock()
	att := Attempt{
		ID:        uuid.NewString(),
		ClipIndex: o.store.NextIndex(),
		Username:  o.username,
	}
	epoch := o.epoch
	o.mu.Unlock()

	switch {
	case art == nil:
		return o.fail(ctx, epoch, att, "Error: no audio recorded")
	case o.store.TrainingComplete():
		return o.fail(ctx, epoch, att, "Error: training is already complete")
	case att.Username == "":
		return o.fail(ctx, epoch, att, "Error: username is required")
	}
	att.Duration = art.Duration()

	att.Status = StatusUploading
	att.Message = fmt.Sprintf("Uploading Clip %d...", att.ClipIndex)
	o.publish(epoch, att)

	log := o.logger.With("user", att.Username, "clip", att.ClipIndex, "attempt", att.ID)
	log.Debug("enrollment: uploading", "bytes", art.Len(), "mime", art.MIMEType())

	_, err := o.backend.Enroll(ctx, &speakerapi.EnrollRequest{
		Username:    att.Username,
		ClipNumber:  att.ClipIndex,
		Audio:       art.Reader(),
		Filename:    fmt.Sprintf("clip_%d%s", att.ClipIndex, art.Extension()),
		ContentType: art.MIMEType(),
	})
	if err != nil {
		log.Warn("enrollment: upload failed", "error", err)
		return o.fail(ctx, epoch, att, failureMessage(err))
	}

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		log.Info("enrollment: upload finished after reset, clip dropped")
		return o.fail(ctx, epoch, att, "Error: enrollment was reset during upload")
	}
	if _, err := o.store.Append(art); err != nil {
		o.mu.Unlock()
		return o.fail(ctx, epoch, att, "Error: "+err.Error())
	}
	o.releaseLocked()
	released = true
	o.mu.Unlock()

	att.Status = StatusSuccess
	att.Message = fmt.Sprintf("Clip %d Enrolled! ✅", att.ClipIndex)
	log.Info("enrollment: clip enrolled", "complete", o.store.TrainingComplete())
	o.finish(ctx, epoch, att)
	return &att
}

func (o *Orchestrator) fail(ctx context.Context, epoch uint64, att Attempt, msg string) *Attempt {
	att.Status = StatusError
	att.Message = msg
	o.finish(ctx, epoch, att)
	return &att
}

func (o *Orchestrator) finish(ctx context.Context, epoch uint64, att Attempt) {
	o.publish(epoch, att)
	if o.history == nil {
		return
	}
	err := o.history.Record(ctx, history.Entry{
		ID:         att.ID,
		Kind:       history.KindEnrollment,
		Username:   att.Username,
		ClipIndex:  att.ClipIndex,
		Status:     string(att.Status),
		Message:    att.Message,
		DurationMS: att.Duration.Milliseconds(),
	})
	if err != nil {
		o.logger.Warn("enrollment: record history", "error", err)
	}
}

// publish makes att the current attempt unless a Reset happened since it
// began. Observers see every change either way.
func (o *Orchestrator) publish(epoch uint64, att Attempt) {
	o.mu.Lock()
	if o.epoch == epoch {
		o.current = &att
	}
	o.mu.Unlock()
	if o.observer != nil {
		o.observer(att)
	}
}

func failureMessage(err error) string {
	if apiErr, ok := speakerapi.AsError(err); ok {
		msg := apiErr.Message
		if msg == "" {
			msg = "Upload failed"
		}
		return "Error: " + msg
	}
	return "Network Error: " + err.Error()
}
