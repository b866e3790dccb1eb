// Package clipstore holds the ordered clips a user has successfully enrolled
// during one training session.
package clipstore

import (
	"errors"
	"sync"

	"github.com/haivivi/speakerid/pkg/recording"
)

// RequiredClipCount is the number of clips that completes training.
const RequiredClipCount = 4

// ErrFull is returned by Append once the store holds RequiredClipCount clips.
var ErrFull = errors.New("clipstore: training already complete")

// Store is an append-only sequence of enrolled clips. Only Reset shrinks it.
// It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	clips []*recording.Artifact
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// Append adds a clip and returns its 1-based index.
func (s *Store) Append(a *recording.Artifact) (int, error) {
	if a == nil {
		return 0, errors.New("clipstore: nil artifact")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clips) >= RequiredClipCount {
		return 0, ErrFull
	}
	s.clips = append(s.clips, a)
	return len(s.clips), nil
}

// Len returns the number of clips.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clips)
}

// NextIndex returns the 1-based index the next appended clip will get.
func (s *Store) NextIndex() int {
	return s.Len() + 1
}

// Clips returns a snapshot of the stored clips in enrollment order.
func (s *Store) Clips() []*recording.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*recording.Artifact, len(s.clips))
	copy(out, s.clips)
	return out
}

// TrainingComplete reports whether the store holds RequiredClipCount clips.
func (s *Store) TrainingComplete() bool {
	return s.Len() >= RequiredClipCount
}

// Reset empties the store.
func (s *Store) Reset() {
	s.mu.Lock()
	s.clips = nil
	s.mu.Unlock()
}
