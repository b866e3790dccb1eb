package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WAVMIMEType is the MIME type of EncodeWAV output.
const WAVMIMEType = "audio/wav"

const wavHeaderSize = 44

// ErrNotWAV is returned by DecodeWAV when the input is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("pcm: not a WAV file")

// WAVInfo holds the fmt fields of a decoded WAV file.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Format returns the matching mono Format, if any.
func (i WAVInfo) Format() (Format, error) {
	if i.Channels != 1 || i.BitsPerSample != 16 {
		return 0, fmt.Errorf("pcm: unsupported WAV layout %d ch / %d bit", i.Channels, i.BitsPerSample)
	}
	return FormatForRate(i.SampleRate)
}

// EncodeWAV wraps PCM chunks of format f into a single WAV file.
func EncodeWAV(f Format, chunks [][]byte) []byte {
	var dataLen int
	for _, c := range chunks {
		dataLen += len(c)
	}
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataLen))
	writeWAVHeader(buf, f, dataLen)
	for _, c := range chunks {
		buf.Write(c)
	}
	return buf.Bytes()
}

func writeWAVHeader(w *bytes.Buffer, f Format, dataLen int) {
	le := binary.LittleEndian
	var h [wavHeaderSize]byte
	copy(h[0:4], "RIFF")
	le.PutUint32(h[4:8], uint32(36+dataLen))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	le.PutUint32(h[16:20], 16)
	le.PutUint16(h[20:22], 1) // PCM
	le.PutUint16(h[22:24], uint16(f.Channels()))
	le.PutUint32(h[24:28], uint32(f.SampleRate()))
	le.PutUint32(h[28:32], uint32(f.BytesRate()))
	le.PutUint16(h[32:34], uint16(f.BlockAlign()))
	le.PutUint16(h[34:36], uint16(f.Depth()))
	copy(h[36:40], "data")
	le.PutUint32(h[40:44], uint32(dataLen))
	w.Write(h[:])
}

// DecodeWAV reads a PCM WAV file and returns its fmt fields and sample data.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(r io.Reader) (WAVInfo, []byte, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return WAVInfo{}, nil, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAVInfo{}, nil, ErrNotWAV
	}

	le := binary.LittleEndian
	var (
		info    WAVInfo
		haveFmt bool
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return WAVInfo{}, nil, fmt.Errorf("pcm: read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(le.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return WAVInfo{}, nil, fmt.Errorf("pcm: fmt chunk too small (%d)", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return WAVInfo{}, nil, fmt.Errorf("pcm: read fmt chunk: %w", err)
			}
			if tag := le.Uint16(body[0:2]); tag != 1 {
				return WAVInfo{}, nil, fmt.Errorf("pcm: unsupported WAV encoding %d", tag)
			}
			info = WAVInfo{
				Channels:      int(le.Uint16(body[2:4])),
				SampleRate:    int(le.Uint32(body[4:8])),
				BitsPerSample: int(le.Uint16(body[14:16])),
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAVInfo{}, nil, errors.New("pcm: data chunk before fmt chunk")
			}
			data := make([]byte, size)
			n, err := io.ReadFull(r, data)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return WAVInfo{}, nil, fmt.Errorf("pcm: read data chunk: %w", err)
			}
			return info, data[:n], nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return WAVInfo{}, nil, fmt.Errorf("pcm: skip %q chunk: %w", id, err)
			}
		}
	}
}
