package recording

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"time"
)

// Artifact is one finalized recording. It is never mutated after creation;
// accessors hand out copies or read-only views.
type Artifact struct {
	data     []byte
	mimeType string
	duration time.Duration
}

// NewArtifact copies data into a new Artifact.
func NewArtifact(data []byte, mimeType string, duration time.Duration) *Artifact {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Artifact{data: cp, mimeType: mimeType, duration: duration}
}

// Bytes returns a copy of the encoded audio.
func (a *Artifact) Bytes() []byte {
	cp := make([]byte, len(a.data))
	copy(cp, a.data)
	return cp
}

// Reader returns a reader over the encoded audio.
func (a *Artifact) Reader() io.Reader {
	return bytes.NewReader(a.data)
}

// Len returns the encoded size in bytes.
func (a *Artifact) Len() int {
	return len(a.data)
}

// MIMEType returns the container MIME type, e.g. "audio/wav".
func (a *Artifact) MIMEType() string {
	return a.mimeType
}

// Duration returns the elapsed recording time at stop.
func (a *Artifact) Duration() time.Duration {
	return a.duration
}

// Extension returns the file extension for the artifact's MIME type,
// including the leading dot.
func (a *Artifact) Extension() string {
	mt, _, err := mime.ParseMediaType(a.mimeType)
	if err != nil {
		mt = a.mimeType
	}
	switch strings.ToLower(mt) {
	case "audio/wav", "audio/wave", "audio/x-wav":
		return ".wav"
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4":
		return ".m4a"
	}
	return ".bin"
}
