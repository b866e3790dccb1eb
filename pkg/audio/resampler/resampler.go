package resampler

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts little-endian int16 PCM from src to dst. Channel
// conversion (mono↔stereo) is applied before rate conversion.
func Resample(data []byte, src, dst Format) ([]byte, error) {
	if len(data)%src.sampleBytes() != 0 {
		return nil, fmt.Errorf("resampler: %d bytes is not a whole number of frames", len(data))
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	switch {
	case src.Stereo && !dst.Stereo:
		buf = buf[:stereoToMono(buf)]
	case !src.Stereo && dst.Stereo:
		buf = append(buf, make([]byte, len(buf))...)
		monoToStereo(buf)
	}

	if src.SampleRate == dst.SampleRate || len(buf) == 0 {
		return buf, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(src.SampleRate),
		OutputRate: float64(dst.SampleRate),
		Channels:   dst.channels(),
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	input := make([]float64, len(buf)/2)
	for i := range input {
		sample := int16(buf[i*2]) | int16(buf[i*2+1])<<8
		input[i] = float64(sample) / 32768.0
	}

	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	out := make([]byte, len(output)*2)
	for i, s := range output {
		sample := int16(s * 32767.0)
		if s > 1.0 {
			sample = 32767
		} else if s < -1.0 {
			sample = -32768
		}
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out[:len(out)/dst.sampleBytes()*dst.sampleBytes()], nil
}

// stereoToMono converts stereo 16-bit samples to mono in-place by averaging L
// and R channels.
func stereoToMono(b []byte) int {
	numFrames := len(b) / 4
	for i := range numFrames {
		j := i * 4
		k := i * 2
		l := int16(b[j]) | int16(b[j+1])<<8
		r := int16(b[j+2]) | int16(b[j+3])<<8
		m := int16((int32(l) + int32(r)) / 2)
		b[k] = byte(m)
		b[k+1] = byte(m >> 8)
	}
	return numFrames * 2
}

// monoToStereo expands mono samples held in the first half of b to stereo
// in-place by duplicating each sample.
func monoToStereo(b []byte) int {
	stereoLen := len(b)
	numSamples := stereoLen / 4
	for i := numSamples - 1; i >= 0; i-- {
		s0, s1 := b[i*2], b[i*2+1]
		j := i * 4
		b[j], b[j+1] = s0, s1
		b[j+2], b[j+3] = s0, s1
	}
	return stereoLen
}
