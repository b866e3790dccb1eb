// Package mic records the default PortAudio input device.
package mic

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/haivivi/speakerid/pkg/audio/pcm"
	"github.com/haivivi/speakerid/pkg/audio/portaudio"
	"github.com/haivivi/speakerid/pkg/capture"
	"github.com/haivivi/speakerid/pkg/recording"
)

// Mic is a recording.Capture over the default input device. It records at
// Format and finalizes to 16kHz mono WAV.
type Mic struct {
	Format pcm.Format
	Buffer time.Duration
	Logger *slog.Logger
}

// New returns a Mic recording 48kHz mono in 100ms buffers.
func New() *Mic {
	return &Mic{Format: pcm.L16Mono48K, Buffer: 100 * time.Millisecond}
}

// Open starts capturing. Errors opening the device (none present, access
// refused by the OS) are returned as is.
func (m *Mic) Open(ctx context.Context) (recording.Stream, error) {
	in, err := portaudio.NewInputStream(m.Format, m.Buffer)
	if err != nil {
		return nil, err
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &stream{
		PCMEncoder: capture.PCMEncoder{Source: m.Format},
		in:         in,
		chunks:     make(chan []byte, 16),
	}
	go s.read(logger)
	return s, nil
}

type stream struct {
	capture.PCMEncoder
	in     *portaudio.InputStream
	chunks chan []byte
}

func (s *stream) Chunks() <-chan []byte { return s.chunks }
func (s *stream) MIMEType() string      { return "audio/wav" }
func (s *stream) Close() error          { return s.in.Close() }

func (s *stream) read(logger *slog.Logger) {
	defer close(s.chunks)
	for {
		data, err := s.in.ReadChunk()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("mic: read", "error", err)
			}
			return
		}
		s.chunks <- data
	}
}
