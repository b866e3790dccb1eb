package capture

import (
	"bytes"

	"github.com/haivivi/speakerid/pkg/audio/pcm"
	"github.com/haivivi/speakerid/pkg/audio/resampler"
)

// UploadFormat is the PCM format artifacts are encoded in.
const UploadFormat = pcm.L16Mono16K

// PCMEncoder turns raw PCM chunks in Source format into a 16kHz mono WAV.
// It implements recording.Encoder when embedded in a stream.
type PCMEncoder struct {
	Source pcm.Format
}

// Encode joins chunks, resamples when needed and returns the WAV bytes.
func (e PCMEncoder) Encode(chunks [][]byte) ([]byte, string, error) {
	data := bytes.Join(chunks, nil)
	if e.Source != UploadFormat {
		out, err := resampler.Resample(data, resampler.FromPCM(e.Source), resampler.FromPCM(UploadFormat))
		if err != nil {
			return nil, "", err
		}
		data = out
	}
	return pcm.EncodeWAV(UploadFormat, [][]byte{data}), "audio/wav", nil
}
