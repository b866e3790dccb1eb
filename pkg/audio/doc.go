// Package audio groups the audio helpers used by capture sources:
//
//   - pcm: 16-bit mono PCM formats and the WAV container
//   - resampler: sample-rate and channel conversion
//   - portaudio: microphone input through the PortAudio C library
package audio
