// Package capture provides recording.Capture sources.
//
//   - File replays a WAV file in real time, as if spoken into a microphone.
//   - Bridge relays a browser MediaRecorder over a WebSocket.
//   - mic (subpackage) records the default PortAudio input device.
//
// PCM sources finalize through PCMEncoder, which resamples to 16kHz mono
// and wraps the audio into a WAV file.
package capture
