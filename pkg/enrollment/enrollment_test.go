package enrollment

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haivivi/speakerid/pkg/history"
	"github.com/haivivi/speakerid/pkg/kv"
	"github.com/haivivi/speakerid/pkg/recording"
	"github.com/haivivi/speakerid/pkg/speakerapi"
)

type enrollCall struct {
	username    string
	clip        int
	filename    string
	contentType string
	audio       string
}

type fakeBackend struct {
	mu       sync.Mutex
	calls    []enrollCall
	inFlight atomic.Int32
	overlap  atomic.Bool
	fail     func(n int) error
	block    chan struct{}
}

func (b *fakeBackend) Enroll(ctx context.Context, req *speakerapi.EnrollRequest) (*speakerapi.EnrollResult, error) {
	if b.inFlight.Add(1) > 1 {
		b.overlap.Store(true)
	}
	defer b.inFlight.Add(-1)

	data, _ := io.ReadAll(req.Audio)
	b.mu.Lock()
	b.calls = append(b.calls, enrollCall{req.Username, req.ClipNumber, req.Filename, req.ContentType, string(data)})
	n := len(b.calls)
	b.mu.Unlock()

	if b.block != nil {
		<-b.block
	}
	time.Sleep(time.Millisecond)
	if b.fail != nil {
		if err := b.fail(n); err != nil {
			return nil, err
		}
	}
	return &speakerapi.EnrollResult{Status: "success"}, nil
}

func (b *fakeBackend) clipNumbers() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []int
	for _, c := range b.calls {
		out = append(out, c.clip)
	}
	return out
}

func clip(d time.Duration) *recording.Artifact {
	return recording.NewArtifact([]byte("webm-bytes"), "audio/webm", d)
}

func TestEnrollFourClips(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	o := New(backend, nil)
	if err := o.SetUsername("  John "); err != nil {
		t.Fatalf("SetUsername: %v", err)
	}
	if o.Username() != "john" {
		t.Fatalf("Username = %q, want john", o.Username())
	}

	for i := 1; i <= 4; i++ {
		if err := o.Gate(); err != nil {
			t.Fatalf("Gate before clip %d: %v", i, err)
		}
		att := o.Enroll(ctx, clip(6*time.Second))
		if att.Status != StatusSuccess {
			t.Fatalf("clip %d: status %s: %s", i, att.Status, att.Message)
		}
		if att.ClipIndex != i {
			t.Errorf("clip %d: ClipIndex = %d", i, att.ClipIndex)
		}
		if want := "Clip " + string(rune('0'+i)) + " Enrolled! ✅"; att.Message != want {
			t.Errorf("Message = %q, want %q", att.Message, want)
		}
	}

	if got := backend.clipNumbers(); len(got) != 4 || got[0] != 1 || got[3] != 4 {
		t.Errorf("clip numbers sent = %v", got)
	}
	first := backend.calls[0]
	if first.username != "john" || first.filename != "clip_1.webm" || first.contentType != "audio/webm" || first.audio != "webm-bytes" {
		t.Errorf("first call = %+v", first)
	}
	if !o.Store().TrainingComplete() {
		t.Error("TrainingComplete = false after 4 clips")
	}
	if err := o.Gate(); !errors.Is(err, ErrTrainingComplete) {
		t.Errorf("Gate after 4 clips = %v, want ErrTrainingComplete", err)
	}

	att := o.Enroll(ctx, clip(6*time.Second))
	if att.Status != StatusError {
		t.Errorf("fifth clip status = %s", att.Status)
	}
	if len(backend.clipNumbers()) != 4 {
		t.Error("fifth clip reached the backend")
	}
}

func TestEnrollFailureMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"backend message", &speakerapi.Error{HTTPStatus: 400, Message: "audio too quiet"}, "Error: audio too quiet"},
		{"backend without message", &speakerapi.Error{HTTPStatus: 500}, "Error: Upload failed"},
		{"network", errors.New("dial tcp: connection refused"), "Network Error: dial tcp: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			backend := &fakeBackend{fail: func(n int) error {
				if n == 1 {
					return tt.err
				}
				return nil
			}}
			o := New(backend, nil)
			o.SetUsername("mary")

			att := o.Enroll(ctx, clip(7*time.Second))
			if att.Status != StatusError || att.Message != tt.want {
				t.Fatalf("attempt = %s %q, want error %q", att.Status, att.Message, tt.want)
			}
			if o.Store().Len() != 0 {
				t.Errorf("store grew on failure: %d", o.Store().Len())
			}

			retry := o.Enroll(ctx, clip(7*time.Second))
			if retry.Status != StatusSuccess || retry.ClipIndex != 1 {
				t.Errorf("re-recorded clip = %+v", retry)
			}
		})
	}
}

func TestUsernameRules(t *testing.T) {
	o := New(&fakeBackend{}, nil)
	if err := o.SetUsername("   "); !errors.Is(err, ErrEmptyUsername) {
		t.Errorf("blank SetUsername = %v", err)
	}
	if err := o.Gate(); !errors.Is(err, ErrEmptyUsername) {
		t.Errorf("Gate without username = %v", err)
	}
	if att := o.Enroll(context.Background(), clip(6*time.Second)); att.Status != StatusError {
		t.Errorf("Enroll without username = %s", att.Status)
	}

	o.SetUsername("alice")
	if err := o.SetUsername("bob"); err != nil {
		t.Errorf("rename before first clip = %v", err)
	}
	o.Enroll(context.Background(), clip(6*time.Second))
	if err := o.SetUsername("carol"); !errors.Is(err, ErrUsernameLocked) {
		t.Errorf("rename after first clip = %v, want ErrUsernameLocked", err)
	}
	if err := o.SetUsername(" BOB "); err != nil {
		t.Errorf("same name after first clip = %v", err)
	}

	o.Reset()
	if err := o.SetUsername("carol"); err != nil {
		t.Errorf("rename after reset = %v", err)
	}
}

func TestGateCountsHeldClips(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{fail: func(n int) error {
		if n == 8 {
			return &speakerapi.Error{HTTPStatus: 500, Message: "boom"}
		}
		return nil
	}}
	o := New(backend, nil)
	if err := o.SetUsername("john"); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		o.Hold()
		o.Enroll(ctx, clip(6*time.Second))
	}
	if err := o.Gate(); err != nil {
		t.Fatalf("Gate with 3 clips = %v", err)
	}

	// The fourth clip is waiting for upload: no fifth recording may start.
	o.Hold()
	if err := o.Gate(); !errors.Is(err, ErrTrainingComplete) {
		t.Fatalf("Gate with a held fourth clip = %v, want ErrTrainingComplete", err)
	}
	o.Release()
	if err := o.Gate(); err != nil {
		t.Fatalf("Gate after Release = %v", err)
	}

	o.Hold()
	if att := o.Enroll(ctx, clip(6*time.Second)); att.Status != StatusSuccess {
		t.Fatalf("fourth clip = %+v", att)
	}
	if err := o.Gate(); !errors.Is(err, ErrTrainingComplete) {
		t.Errorf("Gate after four clips = %v", err)
	}

	// A held clip that fails gives its place back.
	o.Reset()
	for range 3 {
		o.Hold()
		o.Enroll(ctx, clip(6*time.Second))
	}
	o.Hold()
	if att := o.Enroll(ctx, clip(6*time.Second)); att.Status != StatusError {
		t.Fatalf("failing clip = %+v", att)
	}
	if err := o.Gate(); err != nil {
		t.Errorf("Gate after a failed upload = %v", err)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	o := New(&fakeBackend{}, nil)
	o.SetUsername("john")
	o.Enroll(ctx, clip(6*time.Second))
	o.Enroll(ctx, clip(6*time.Second))

	o.Reset()
	if o.Store().Len() != 0 || o.Current() != nil {
		t.Fatalf("after Reset: len=%d current=%v", o.Store().Len(), o.Current())
	}
	if att := o.Enroll(ctx, clip(6*time.Second)); att.ClipIndex != 1 {
		t.Errorf("ClipIndex after reset = %d, want 1", att.ClipIndex)
	}
}

func TestResetDuringUpload(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{block: make(chan struct{})}
	o := New(backend, nil)
	o.SetUsername("john")

	done := make(chan *Attempt)
	go func() { done <- o.Enroll(ctx, clip(6*time.Second)) }()

	for len(backend.clipNumbers()) == 0 {
		time.Sleep(time.Millisecond)
	}
	o.Reset()
	close(backend.block)

	att := <-done
	if att.Status != StatusError {
		t.Errorf("status = %s, want error", att.Status)
	}
	if o.Store().Len() != 0 {
		t.Errorf("stale upload was stored")
	}
	if o.Current() != nil {
		t.Errorf("stale attempt became current: %+v", o.Current())
	}
}

func TestConcurrentEnrollIsSerialized(t *testing.T) {
	backend := &fakeBackend{}
	o := New(backend, nil)
	o.SetUsername("john")

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Enroll(context.Background(), clip(6*time.Second))
		}()
	}
	wg.Wait()

	if backend.overlap.Load() {
		t.Error("uploads overlapped")
	}
	seen := map[int]bool{}
	for _, n := range backend.clipNumbers() {
		if seen[n] {
			t.Errorf("clip number %d sent twice", n)
		}
		seen[n] = true
	}
	if o.Store().Len() != 4 {
		t.Errorf("store len = %d, want 4", o.Store().Len())
	}
}

func TestIndicesContiguousUnderResetsAndFailures(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewPCG(1, 2))
	backend := &fakeBackend{fail: func(int) error {
		if r.IntN(3) == 0 {
			return &speakerapi.Error{HTTPStatus: 500}
		}
		return nil
	}}
	o := New(backend, nil)
	o.SetUsername("john")

	successes := 0
	for range 200 {
		if r.IntN(8) == 0 {
			o.Reset()
			successes = 0
			continue
		}
		att := o.Enroll(ctx, clip(6*time.Second))
		if o.Store().TrainingComplete() && att.Status == StatusError && att.ClipIndex > 4 {
			continue
		}
		if att.Status == StatusSuccess {
			successes++
			if att.ClipIndex != successes {
				t.Fatalf("ClipIndex = %d, want %d", att.ClipIndex, successes)
			}
		}
		if o.Store().Len() != successes {
			t.Fatalf("store len = %d, successes = %d", o.Store().Len(), successes)
		}
	}
}

func TestEnrollObserverAndHistory(t *testing.T) {
	ctx := context.Background()
	log := history.New(kv.NewMemory(nil), kv.Key{"speakerid"})
	var seen []Status
	o := New(&fakeBackend{}, nil,
		WithHistory(log),
		WithObserver(func(a Attempt) { seen = append(seen, a.Status) }),
	)
	o.SetUsername("john")
	att := o.Enroll(ctx, clip(6500*time.Millisecond))

	if len(seen) != 2 || seen[0] != StatusUploading || seen[1] != StatusSuccess {
		t.Errorf("observed = %v", seen)
	}
	entries, err := log.Recent(ctx, 10)
	if err != nil || len(entries) != 1 {
		t.Fatalf("history = %v, %v", entries, err)
	}
	e := entries[0]
	if e.ID != att.ID || e.Kind != history.KindEnrollment || e.ClipIndex != 1 || e.Status != "success" || e.DurationMS != 6500 {
		t.Errorf("entry = %+v", e)
	}
}
