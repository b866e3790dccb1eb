// Package pcm provides the PCM formats produced by local capture devices and
// the WAV container used to finalize them into an uploadable artifact.
//
// Key types:
//   - Format: 16-bit mono PCM at a fixed sample rate
//   - Chunk: a captured slice of audio in a given Format
//   - WAVInfo: header fields parsed by DecodeWAV
//
// Example usage:
//
//	format := pcm.L16Mono16K
//
//	// 100ms of audio, the capture tick granularity
//	n := format.BytesInDuration(100 * time.Millisecond)
//
//	// finalize captured chunks into one WAV file
//	wav := pcm.EncodeWAV(format, chunks)
package pcm
