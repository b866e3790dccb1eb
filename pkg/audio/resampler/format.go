package resampler

import "github.com/haivivi/speakerid/pkg/audio/pcm"

// Format describes one side of a conversion. Samples are always 16-bit
// signed little-endian.
type Format struct {
	// SampleRate is the sample rate in Hz (e.g., 16000, 48000).
	SampleRate int

	// Stereo indicates interleaved stereo if true, mono if false.
	Stereo bool
}

// FromPCM returns the resampler Format matching a pcm.Format.
func FromPCM(f pcm.Format) Format {
	return Format{SampleRate: f.SampleRate(), Stereo: f.Channels() == 2}
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

func (f Format) sampleBytes() int {
	return f.channels() * 2
}
