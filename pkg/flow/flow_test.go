package flow_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/speakerid/pkg/enrollment"
	"github.com/haivivi/speakerid/pkg/flow"
	"github.com/haivivi/speakerid/pkg/recognition"
	"github.com/haivivi/speakerid/pkg/recording"
	"github.com/haivivi/speakerid/pkg/speakerapi"
	"github.com/haivivi/speakerid/pkg/storage"
)

type stream struct {
	chunks chan []byte
	once   sync.Once
}

func (s *stream) Chunks() <-chan []byte { return s.chunks }
func (s *stream) MIMEType() string      { return "audio/webm" }
func (s *stream) Close() error {
	s.once.Do(func() { close(s.chunks) })
	return nil
}

type capture struct {
	mu    sync.Mutex
	opens int
}

func (c *capture) Open(context.Context) (recording.Stream, error) {
	c.mu.Lock()
	c.opens++
	c.mu.Unlock()
	st := &stream{chunks: make(chan []byte, 4)}
	st.chunks <- []byte("webm-bytes")
	return st, nil
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// backend is a fake speaker-recognition server.
type backend struct {
	mu       sync.Mutex
	clips    []string
	predicts int
	users    []string
	predict  map[string]any
	hold     chan struct{} // when set, /enroll waits for it to close
}

func (b *backend) serve(t *testing.T) *speakerapi.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /enroll", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		hold := b.hold
		b.mu.Unlock()
		if hold != nil {
			<-hold
		}
		b.mu.Lock()
		b.clips = append(b.clips, r.FormValue("username")+"#"+r.FormValue("clip_number"))
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"status": "success", "message": "ok"})
	})
	mux.HandleFunc("POST /predict", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.predicts++
		resp := b.predict
		b.mu.Unlock()
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /enrolled-users", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		var users []map[string]string
		for _, u := range b.users {
			users = append(users, map[string]string{"username": u})
		}
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"users": users})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return speakerapi.NewClient(speakerapi.WithBaseURL(srv.URL))
}

func (b *backend) enrolled() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.clips)
}

func (b *backend) predictCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.predicts
}

type events struct {
	mu   sync.Mutex
	list []flow.Event
}

func (e *events) observe(ev flow.Event) {
	e.mu.Lock()
	e.list = append(e.list, ev)
	e.mu.Unlock()
}

func (e *events) kinds(kind flow.EventKind) []flow.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []flow.Event
	for _, ev := range e.list {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// record runs one recording of the given length on the manual clock.
func record(t *testing.T, s interface {
	Start(context.Context) error
	Stop() *recording.Artifact
}, clock *recording.ManualClock, d time.Duration) *recording.Artifact {
	t.Helper()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Tick(int(d / recording.DefaultTickInterval))
	return s.Stop()
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTrainingEnrollsFourClips(t *testing.T) {
	be := &backend{}
	client := be.serve(t)
	src := &capture{}
	clock := recording.NewManualClock()
	ev := &events{}

	orch := enrollment.New(client, nil)
	if err := orch.SetUsername("john"); err != nil {
		t.Fatal(err)
	}
	tr := flow.NewTraining(context.Background(), src, orch,
		flow.WithClock(clock), flow.WithObserver(ev.observe))
	defer tr.Close()

	for range 4 {
		if art := record(t, tr, clock, 6*time.Second); art == nil {
			t.Fatal("6s clip should surface")
		}
		if err := tr.Wait(waitCtx(t)); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"john#1", "john#2", "john#3", "john#4"}
	if got := be.enrolled(); !slices.Equal(got, want) {
		t.Errorf("enrolled = %v, want %v", got, want)
	}
	if !orch.Store().TrainingComplete() {
		t.Error("training should be complete")
	}
	if err := tr.Start(context.Background()); !errors.Is(err, enrollment.ErrTrainingComplete) {
		t.Errorf("Start after 4 clips = %v, want ErrTrainingComplete", err)
	}
	if src.count() != 4 {
		t.Errorf("capture opened %d times, want 4", src.count())
	}

	var statuses []enrollment.Status
	for _, e := range ev.kinds(flow.EventEnrollment) {
		statuses = append(statuses, e.Attempt.Status)
	}
	if len(statuses) != 4 || slices.ContainsFunc(statuses, func(s enrollment.Status) bool { return s != enrollment.StatusSuccess }) {
		t.Errorf("enrollment statuses = %v", statuses)
	}
	if n := len(ev.kinds(flow.EventRecordingStarted)); n != 4 {
		t.Errorf("recording_started events = %d, want 4", n)
	}
}

func TestTrainingRejectsWithoutUsername(t *testing.T) {
	be := &backend{}
	src := &capture{}
	tr := flow.NewTraining(context.Background(), src, enrollment.New(be.serve(t), nil),
		flow.WithClock(recording.NewManualClock()))
	defer tr.Close()

	if err := tr.Start(context.Background()); !errors.Is(err, enrollment.ErrEmptyUsername) {
		t.Fatalf("Start = %v, want ErrEmptyUsername", err)
	}
	if src.count() != 0 {
		t.Error("device must not be opened when the gate rejects")
	}
}

func TestTrainingShortClipNotUploaded(t *testing.T) {
	be := &backend{}
	clock := recording.NewManualClock()
	orch := enrollment.New(be.serve(t), nil)
	orch.SetUsername("john")
	tr := flow.NewTraining(context.Background(), &capture{}, orch, flow.WithClock(clock))
	defer tr.Close()

	if art := record(t, tr, clock, 4*time.Second); art != nil {
		t.Fatal("4s enrollment clip should be discarded")
	}
	if err := tr.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if len(be.enrolled()) != 0 {
		t.Errorf("enrolled = %v", be.enrolled())
	}
}

func TestTrainingArchive(t *testing.T) {
	be := &backend{}
	clock := recording.NewManualClock()
	dir := t.TempDir()
	archive, err := storage.NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	ev := &events{}

	orch := enrollment.New(be.serve(t), nil)
	orch.SetUsername("John")
	tr := flow.NewTraining(context.Background(), &capture{}, orch,
		flow.WithClock(clock), flow.WithArchive(archive), flow.WithObserver(ev.observe))
	defer tr.Close()

	record(t, tr, clock, 5*time.Second)
	if err := tr.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}

	archived := ev.kinds(flow.EventArchived)
	if len(archived) != 1 {
		t.Fatalf("archived events = %d, want 1", len(archived))
	}
	data, err := os.ReadFile(filepath.Join(dir, archived[0].Path))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "webm-bytes" {
		t.Errorf("archived data = %q", data)
	}
	if want := "enrollment/john/"; archived[0].Path[:len(want)] != want {
		t.Errorf("archive path = %q", archived[0].Path)
	}
}

func TestTrainingReset(t *testing.T) {
	be := &backend{}
	clock := recording.NewManualClock()
	orch := enrollment.New(be.serve(t), nil)
	orch.SetUsername("john")
	tr := flow.NewTraining(context.Background(), &capture{}, orch, flow.WithClock(clock))
	defer tr.Close()

	record(t, tr, clock, 6*time.Second)
	tr.Wait(waitCtx(t))
	tr.Reset()

	if orch.Store().Len() != 0 || orch.Current() != nil {
		t.Error("Reset should clear clips and attempt")
	}
	if orch.Username() != "john" {
		t.Errorf("username = %q, Reset keeps it", orch.Username())
	}
	record(t, tr, clock, 6*time.Second)
	tr.Wait(waitCtx(t))
	if got := be.enrolled(); !slices.Equal(got, []string{"john#1", "john#1"}) {
		t.Errorf("enrolled = %v", got)
	}
}

func TestTrainingRejectsWhileLastClipUploads(t *testing.T) {
	be := &backend{}
	client := be.serve(t)
	src := &capture{}
	clock := recording.NewManualClock()
	orch := enrollment.New(client, nil)
	if err := orch.SetUsername("john"); err != nil {
		t.Fatal(err)
	}
	tr := flow.NewTraining(context.Background(), src, orch, flow.WithClock(clock))
	defer tr.Close()

	for range 3 {
		record(t, tr, clock, 6*time.Second)
	}
	if err := tr.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}

	hold := make(chan struct{})
	be.mu.Lock()
	be.hold = hold
	be.mu.Unlock()
	if art := record(t, tr, clock, 6*time.Second); art == nil {
		t.Fatal("fourth clip should surface")
	}

	if err := tr.Start(context.Background()); !errors.Is(err, enrollment.ErrTrainingComplete) {
		t.Errorf("Start while the fourth clip uploads = %v, want ErrTrainingComplete", err)
	}
	if src.count() != 4 {
		t.Errorf("capture opened %d times, want 4", src.count())
	}

	close(hold)
	if err := tr.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if !orch.Store().TrainingComplete() {
		t.Error("training should be complete")
	}
	if got := be.enrolled(); len(got) != 4 {
		t.Errorf("enrolled = %v", got)
	}
}

func TestTestingShortClipSkipsPredict(t *testing.T) {
	be := &backend{predict: map[string]any{"prediction": "john", "confidence": 0.9, "threshold": 0.75}}
	clock := recording.NewManualClock()
	recog := recognition.New(be.serve(t))
	ts := flow.NewTesting(context.Background(), &capture{}, recog, flow.WithClock(clock))
	defer ts.Close()

	if art := record(t, ts, clock, 2*time.Second); art != nil {
		t.Fatal("2s test clip should be discarded")
	}
	ts.Wait(waitCtx(t))
	if be.predictCount() != 0 {
		t.Errorf("predict calls = %d, want 0", be.predictCount())
	}
	if recog.Current() != nil {
		t.Error("result state should not change")
	}
}

func TestTestingFreeMatch(t *testing.T) {
	be := &backend{predict: map[string]any{"status": "success", "prediction": "john", "confidence": 0.91, "threshold": 0.75}}
	clock := recording.NewManualClock()
	ev := &events{}
	recog := recognition.New(be.serve(t))
	ts := flow.NewTesting(context.Background(), &capture{}, recog,
		flow.WithClock(clock), flow.WithObserver(ev.observe))
	defer ts.Close()

	record(t, ts, clock, 3*time.Second)
	if err := ts.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}

	cur := recog.Current()
	if cur == nil || !cur.Matched() || cur.Prediction.PredictedUser != "john" {
		t.Fatalf("current = %+v", cur)
	}
	if got := recognition.FormatConfidence(cur.Prediction.Confidence); got != "91.0%" {
		t.Errorf("confidence = %s", got)
	}
	if n := len(ev.kinds(flow.EventRecognition)); n != 1 {
		t.Errorf("recognition events = %d", n)
	}

	// Starting the next recording clears the shown result.
	if err := ts.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if recog.Current() != nil {
		t.Error("Start should clear the previous result")
	}
	ts.Stop()
}

func TestTestingRestartDropsPendingResult(t *testing.T) {
	be := &backend{predict: map[string]any{"status": "success", "prediction": "john", "confidence": 0.9, "threshold": 0.75}}
	client := be.serve(t)
	clock := recording.NewManualClock()
	cfg := recording.RecognitionConfig()
	cfg.MinDuration = 0
	recog := recognition.New(client)
	ts := flow.NewTesting(context.Background(), &capture{}, recog,
		flow.WithClock(clock), flow.WithRecordingConfig(cfg))
	defer ts.Close()

	for i := range 50 {
		if err := ts.Start(context.Background()); err != nil {
			t.Fatalf("run %d: Start: %v", i, err)
		}
		clock.Tick(1)
		if ts.Stop() == nil {
			t.Fatalf("run %d: clip not surfaced", i)
		}
		// The next recording starts before the previous clip's request.
		if err := ts.Start(context.Background()); err != nil {
			t.Fatalf("run %d: restart: %v", i, err)
		}
		if err := ts.Wait(waitCtx(t)); err != nil {
			t.Fatal(err)
		}
		if cur := recog.Current(); cur != nil {
			t.Fatalf("run %d: result of the previous clip shown against the new recording: %+v", i, cur)
		}
		ts.Stop()
		if err := ts.Wait(waitCtx(t)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTestingCrossCheck(t *testing.T) {
	be := &backend{
		predict: map[string]any{"prediction": "john", "confidence": 0.8, "threshold": 0.75},
		users:   []string{"alice"},
	}
	clock := recording.NewManualClock()
	recog := recognition.New(be.serve(t))
	ts := flow.NewTesting(context.Background(), &capture{}, recog, flow.WithClock(clock))
	defer ts.Close()
	if err := ts.SetRequest(recognition.Request{Mode: recognition.EnrollmentCrossCheck}); err != nil {
		t.Fatal(err)
	}

	record(t, ts, clock, 6*time.Second)
	ts.Wait(waitCtx(t))

	cur := recog.Current()
	if cur == nil || cur.Outcome != recognition.OutcomeNoMatch {
		t.Fatalf("current = %+v", cur)
	}
	if cur.Prediction.PredictedUser != speakerapi.UnknownSpeaker {
		t.Errorf("prediction = %q, want Unknown", cur.Prediction.PredictedUser)
	}
}

func TestTestingNamedUserValidation(t *testing.T) {
	be := &backend{}
	src := &capture{}
	ts := flow.NewTesting(context.Background(), src, recognition.New(be.serve(t)),
		flow.WithClock(recording.NewManualClock()))
	defer ts.Close()

	err := ts.SetRequest(recognition.Request{Mode: recognition.NamedUserCheck, Username: "  "})
	if !errors.Is(err, recognition.ErrValidation) {
		t.Fatalf("SetRequest = %v, want ErrValidation", err)
	}
	if err := ts.SetRequest(recognition.Request{Mode: recognition.NamedUserCheck, Username: " John "}); err != nil {
		t.Fatal(err)
	}
	if got := ts.Request().Username; got != "john" {
		t.Errorf("username = %q, want normalized", got)
	}
	if be.predictCount() != 0 || src.count() != 0 {
		t.Error("validation must not touch the device or backend")
	}
}
