package portaudio

import (
	"io"
	"sync"
	"time"

	"github.com/haivivi/speakerid/pkg/audio/pcm"
)

// InputStream captures mono 16-bit PCM from the default input device.
type InputStream struct {
	stream *stream
	format pcm.Format

	mu     sync.Mutex
	closed bool
}

// NewInputStream opens the default input device in the given format and
// starts capturing. Each ReadChunk returns bufferDuration of audio.
func NewInputStream(format pcm.Format, bufferDuration time.Duration) (*InputStream, error) {
	frames := int(format.SamplesInDuration(bufferDuration))
	s, err := openInput(format.Channels(), float64(format.SampleRate()), frames)
	if err != nil {
		return nil, err
	}
	return &InputStream{stream: s, format: format}, nil
}

// ReadChunk blocks until one buffer of audio is available. It returns
// io.EOF after Close.
func (is *InputStream) ReadChunk() ([]byte, error) {
	is.mu.Lock()
	closed := is.closed
	is.mu.Unlock()
	if closed {
		return nil, io.EOF
	}
	data, err := is.stream.read()
	if err != nil {
		is.mu.Lock()
		closed = is.closed
		is.mu.Unlock()
		if closed {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// Format returns the PCM format.
func (is *InputStream) Format() pcm.Format {
	return is.format
}

// Close stops capturing and releases the device.
func (is *InputStream) Close() error {
	is.mu.Lock()
	if is.closed {
		is.mu.Unlock()
		return nil
	}
	is.closed = true
	is.mu.Unlock()
	return is.stream.close()
}
