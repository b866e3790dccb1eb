package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/haivivi/speakerid/pkg/audio/pcm"
	"github.com/haivivi/speakerid/pkg/recording"
)

// File replays a 16-bit mono WAV file as a capture device. Chunks are paced
// in real time so the recording lasts as long as the file; the stream ends
// by itself after the last chunk.
type File struct {
	path     string
	chunk    time.Duration
	realtime bool
}

// FileOption configures a File.
type FileOption func(*File)

// WithChunkDuration sets the length of each emitted chunk. Default 100ms.
func WithChunkDuration(d time.Duration) FileOption {
	return func(f *File) {
		if d > 0 {
			f.chunk = d
		}
	}
}

// WithRealtime controls pacing. Without it, chunks are emitted as fast as
// the reader takes them.
func WithRealtime(on bool) FileOption {
	return func(f *File) {
		f.realtime = on
	}
}

// NewFile creates a File source for the WAV file at path.
func NewFile(path string, opts ...FileOption) *File {
	f := &File{path: path, chunk: 100 * time.Millisecond, realtime: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open reads and validates the file. A missing or unsupported file is
// reported as an error, which the session treats as the device being
// unavailable.
func (f *File) Open(ctx context.Context) (recording.Stream, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	info, data, err := pcm.DecodeWAV(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}
	format, err := info.Format()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}

	s := &fileStream{
		PCMEncoder: PCMEncoder{Source: format},
		chunks:     make(chan []byte),
		done:       make(chan struct{}),
	}
	go s.replay(data, int(format.BytesInDuration(f.chunk)), f.chunk, f.realtime)
	return s, nil
}

type fileStream struct {
	PCMEncoder
	chunks chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *fileStream) Chunks() <-chan []byte { return s.chunks }
func (s *fileStream) MIMEType() string      { return "audio/wav" }

func (s *fileStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fileStream) replay(data []byte, size int, every time.Duration, realtime bool) {
	defer close(s.chunks)
	size = max(size-size%2, 2)

	var tick <-chan time.Time
	if realtime {
		t := time.NewTicker(every)
		defer t.Stop()
		tick = t.C
	}
	for off := 0; off < len(data); off += size {
		if tick != nil {
			select {
			case <-tick:
			case <-s.done:
				return
			}
		}
		chunk := bytes.Clone(data[off:min(off+size, len(data))])
		select {
		case s.chunks <- chunk:
		case <-s.done:
			return
		}
	}
}

// ErrPlaylistDone is returned by Playlist.Open after the last file.
var ErrPlaylistDone = errors.New("capture: no more files")

// Playlist opens one file per recording, in order.
type Playlist struct {
	mu    sync.Mutex
	files []*File
	next  int
}

// NewPlaylist creates a Playlist over paths. opts apply to every file.
func NewPlaylist(paths []string, opts ...FileOption) *Playlist {
	p := &Playlist{}
	for _, path := range paths {
		p.files = append(p.files, NewFile(path, opts...))
	}
	return p
}

// Open opens the next file.
func (p *Playlist) Open(ctx context.Context) (recording.Stream, error) {
	p.mu.Lock()
	if p.next >= len(p.files) {
		p.mu.Unlock()
		return nil, ErrPlaylistDone
	}
	f := p.files[p.next]
	p.next++
	p.mu.Unlock()
	return f.Open(ctx)
}

// Remaining returns how many files have not been opened yet.
func (p *Playlist) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.files) - p.next
}
