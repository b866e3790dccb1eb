package recording

import "context"

// Capture opens the underlying audio capture device.
//
// Open suspends until access is granted or refused. A refusal (or any other
// failure to acquire the device) is reported as an error and must leave the
// device released.
type Capture interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open capture device.
//
// Chunks delivers encoded audio in capture order; the session takes
// ownership of every slice it receives. Close releases the device; any
// chunks still buffered are delivered afterwards and then the channel is
// closed. A stream that ends on its own closes the channel without a Close
// call.
type Stream interface {
	Chunks() <-chan []byte
	MIMEType() string
	Close() error
}

// Encoder is implemented by streams whose chunks need a container around
// them (for example raw PCM wrapped into WAV). Streams that do not
// implement it are finalized by concatenating their chunks.
type Encoder interface {
	Encode(chunks [][]byte) (data []byte, mimeType string, err error)
}
