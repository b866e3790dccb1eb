// Package recognition submits test clips for speaker prediction and
// classifies the backend's answer.
//
// Three modes are supported:
//
//   - FreeMatch sends the clip alone and trusts the prediction.
//   - NamedUserCheck pins the prediction to one username.
//   - EnrollmentCrossCheck sends the clip alone, then verifies the predicted
//     user against the backend's enrolled-users list. A prediction that
//     cannot be verified is reported as no match.
//
// Results are tagged with a generation. Clear starts a new generation, and
// a result from an older one never replaces the current result.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/haivivi/speakerid/pkg/history"
	"github.com/haivivi/speakerid/pkg/recording"
	"github.com/haivivi/speakerid/pkg/speakerapi"
)

// ErrValidation is returned for requests rejected before any network call.
var ErrValidation = errors.New("recognition: invalid request")

// NotEnrolledMessage is the message of a cross-check without a prediction.
const NotEnrolledMessage = "Speaker not recognized. Please enroll first."

// Backend is the part of the speaker-recognition backend used here.
type Backend interface {
	Predict(ctx context.Context, req *speakerapi.PredictRequest) (*speakerapi.PredictionResult, error)
	ListEnrolledUsers(ctx context.Context) ([]speakerapi.User, error)
}

// Request selects the mode of one recognition.
type Request struct {
	Mode Mode

	// Username is required for NamedUserCheck and ignored otherwise.
	Username string
}

// Normalize validates r and returns it with the username trimmed and
// lower-cased. The username is cleared for modes that do not send one.
func (r Request) Normalize() (Request, error) {
	switch r.Mode {
	case FreeMatch, EnrollmentCrossCheck:
		r.Username = ""
	case NamedUserCheck:
		r.Username = strings.ToLower(strings.TrimSpace(r.Username))
		if r.Username == "" {
			return r, fmt.Errorf("%w: username is required for %s", ErrValidation, r.Mode)
		}
	default:
		return r, fmt.Errorf("%w: unknown mode %d", ErrValidation, r.Mode)
	}
	return r, nil
}

// Result is one recognition attempt.
type Result struct {
	ID         string                       `json:"id"`
	Generation uint64                       `json:"generation"`
	Mode       Mode                         `json:"mode"`
	Username   string                       `json:"username,omitempty"`
	Status     Status                       `json:"status"`
	Outcome    Outcome                      `json:"outcome,omitempty"`
	Prediction *speakerapi.PredictionResult `json:"prediction,omitempty"`
	Message    string                       `json:"message,omitempty"`
}

// Matched reports whether the attempt resolved to a match.
func (r *Result) Matched() bool {
	return r.Status == StatusResolved && r.Outcome == OutcomeMatch
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

// WithObserver is called whenever the current result changes, including
// the transition to Pending and the reset by Clear (with a nil result).
func WithObserver(fn func(*Result)) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// Orchestrator runs recognitions against a Backend.
type Orchestrator struct {
	backend  Backend
	logger   *slog.Logger
	history  history.Recorder
	observer func(*Result)

	mu         sync.Mutex
	generation uint64
	current    *Result
}

// New creates an Orchestrator.
func New(backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Clear drops the current result and starts a new generation. Call it when
// a new test recording starts.
func (o *Orchestrator) Clear() uint64 {
	o.mu.Lock()
	o.generation++
	o.current = nil
	gen := o.generation
	o.mu.Unlock()
	if o.observer != nil {
		o.observer(nil)
	}
	return gen
}

// Generation returns the current generation.
func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// Current returns the result of the current generation, or nil.
func (o *Orchestrator) Current() *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return nil
	}
	r := *o.current
	return &r
}

// Recognize submits art and classifies the answer. Only ErrValidation is
// returned as an error; backend failures are reported as StatusError.
//
// The result becomes Current only if no Clear happened while the request
// was outstanding. It is returned to the caller either way.
func (o *Orchestrator) Recognize(ctx context.Context, art *recording.Artifact, req Request) (*Result, error) {
	return o.RecognizeAt(ctx, o.Generation(), art, req)
}

// RecognizeAt is Recognize for a clip recorded during generation gen.
// Callers that submit asynchronously take gen when the clip is handed off,
// so a Clear issued before the request goroutine runs still supersedes it.
func (o *Orchestrator) RecognizeAt(ctx context.Context, gen uint64, art *recording.Artifact, req Request) (*Result, error) {
	if art == nil {
		return nil, fmt.Errorf("%w: no audio", ErrValidation)
	}
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	username := req.Username

	res := &Result{
		ID:         uuid.NewString(),
		Generation: gen,
		Mode:       req.Mode,
		Username:   username,
		Status:     StatusPending,
	}
	o.publish(res)

	log := o.logger.With("attempt", res.ID, "mode", req.Mode.String())
	log.Debug("recognition: predicting", "bytes", art.Len(), "user", username)

	pred, err := o.backend.Predict(ctx, &speakerapi.PredictRequest{
		Audio:       art.Reader(),
		Filename:    "test_clip" + art.Extension(),
		ContentType: art.MIMEType(),
		Username:    username,
	})
	if err != nil {
		log.Warn("recognition: predict failed", "error", err)
		return o.fail(ctx, res, failureMessage(err)), nil
	}
	res.Prediction = pred
	res.Message = pred.Message

	switch {
	case pred.IsUnknown():
		res.Outcome = OutcomeNoMatch
		if req.Mode == EnrollmentCrossCheck {
			res.Message = NotEnrolledMessage
		}
	case req.Mode == EnrollmentCrossCheck:
		users, err := o.backend.ListEnrolledUsers(ctx)
		if err != nil {
			log.Warn("recognition: list enrolled users failed", "error", err)
			return o.fail(ctx, res, failureMessage(err)), nil
		}
		if isEnrolled(users, pred.PredictedUser) {
			res.Outcome = OutcomeMatch
		} else {
			log.Warn("recognition: predicted user is not enrolled", "predicted", pred.PredictedUser)
			unverified := *pred
			unverified.PredictedUser = speakerapi.UnknownSpeaker
			res.Prediction = &unverified
			res.Outcome = OutcomeNoMatch
			res.Message = NotEnrolledMessage
		}
	default:
		res.Outcome = OutcomeMatch
	}

	res.Status = StatusResolved
	log.Info("recognition: resolved",
		"outcome", res.Outcome.String(),
		"predicted", res.Prediction.PredictedUser,
		"confidence", res.Prediction.Confidence)
	o.finish(ctx, res)
	return res, nil
}

func (o *Orchestrator) fail(ctx context.Context, res *Result, msg string) *Result {
	res.Status = StatusError
	res.Outcome = OutcomeNone
	res.Prediction = nil
	res.Message = msg
	o.finish(ctx, res)
	return res
}

func (o *Orchestrator) finish(ctx context.Context, res *Result) {
	if !o.publish(res) {
		o.logger.Debug("recognition: result superseded", "attempt", res.ID)
	}
	if o.history == nil {
		return
	}
	e := history.Entry{
		ID:       res.ID,
		Kind:     history.KindRecognition,
		Username: res.Username,
		Mode:     res.Mode.String(),
		Status:   res.Status.String(),
		Outcome:  res.Outcome.String(),
		Message:  res.Message,
	}
	if res.Prediction != nil {
		e.PredictedUser = res.Prediction.PredictedUser
		e.Confidence = res.Prediction.Confidence
	}
	if err := o.history.Record(ctx, e); err != nil {
		o.logger.Warn("recognition: record history", "error", err)
	}
}

// publish stores a snapshot of res as current if its generation is still
// live, and reports whether it did.
func (o *Orchestrator) publish(res *Result) bool {
	snap := *res
	o.mu.Lock()
	if snap.Generation != o.generation {
		o.mu.Unlock()
		return false
	}
	o.current = &snap
	o.mu.Unlock()
	if o.observer != nil {
		o.observer(&snap)
	}
	return true
}

func isEnrolled(users []speakerapi.User, name string) bool {
	for _, u := range users {
		if strings.EqualFold(u.Username, name) {
			return true
		}
	}
	return false
}

func failureMessage(err error) string {
	if apiErr, ok := speakerapi.AsError(err); ok {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return "Prediction failed"
	}
	return "Network Error: " + err.Error()
}
