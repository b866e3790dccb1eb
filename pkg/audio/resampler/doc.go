// Package resampler converts captured 16-bit PCM between sample rates and
// channel layouts before it is wrapped into an upload artifact.
//
// Capture devices usually run at 44.1kHz or 48kHz, while speaker models are
// trained on 16kHz mono. Resample converts a whole buffer in one call.
//
// Example usage:
//
//	src := resampler.Format{SampleRate: 48000}
//	dst := resampler.Format{SampleRate: 16000}
//	out, err := resampler.Resample(pcm48k, src, dst)
package resampler
