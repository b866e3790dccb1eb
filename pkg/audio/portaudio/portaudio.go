// Package portaudio reads microphone input through the PortAudio C library.
//
// Building requires PortAudio headers visible to pkg-config
// (brew install portaudio, apt install portaudio19-dev).
package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

// PaStream is opaque; pass it around as void*.
static PaError pa_open_input(void **stream,
                             const PaStreamParameters *inputParams,
                             double sampleRate,
                             unsigned long framesPerBuffer) {
    return Pa_OpenStream((PaStream**)stream, inputParams, NULL, sampleRate,
                         framesPerBuffer, paClipOff, NULL, NULL);
}

static PaError pa_start_stream(void *stream) {
    return Pa_StartStream((PaStream*)stream);
}

static PaError pa_stop_stream(void *stream) {
    return Pa_StopStream((PaStream*)stream);
}

static PaError pa_close_stream(void *stream) {
    return Pa_CloseStream((PaStream*)stream);
}

static PaError pa_read_stream(void *stream, void *buffer, unsigned long frames) {
    return Pa_ReadStream((PaStream*)stream, buffer, frames);
}
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"
)

// ErrNoInputDevice is returned when the host has no default input device.
var ErrNoInputDevice = errors.New("portaudio: no default input device")

var (
	initOnce sync.Once
	initErr  error
)

func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return errors.New("portaudio: " + C.GoString(C.Pa_GetErrorText(code)))
}

// Initialize initializes the PortAudio library. It is safe to call multiple
// times.
func Initialize() error {
	initOnce.Do(func() {
		initErr = paError(C.Pa_Initialize())
	})
	return initErr
}

// Terminate releases the PortAudio library.
func Terminate() error {
	return paError(C.Pa_Terminate())
}

// DeviceInfo describes an input device.
type DeviceInfo struct {
	Index             int     `json:"index"`
	Name              string  `json:"name"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	IsDefault         bool    `json:"is_default"`
}

// InputDevices lists devices that can record.
func InputDevices() ([]DeviceInfo, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	count := int(C.Pa_GetDeviceCount())
	if count < 0 {
		return nil, paError(C.PaError(count))
	}
	def := int(C.Pa_GetDefaultInputDevice())

	var devices []DeviceInfo
	for i := range count {
		info := C.Pa_GetDeviceInfo(C.PaDeviceIndex(i))
		if info == nil || info.maxInputChannels < 1 {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:             i,
			Name:              C.GoString(info.name),
			MaxInputChannels:  int(info.maxInputChannels),
			DefaultSampleRate: float64(info.defaultSampleRate),
			IsDefault:         i == def,
		})
	}
	return devices, nil
}

// DefaultInputDevice returns the default input device.
func DefaultInputDevice() (*DeviceInfo, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	idx := C.Pa_GetDefaultInputDevice()
	if idx == C.paNoDevice {
		return nil, ErrNoInputDevice
	}
	info := C.Pa_GetDeviceInfo(idx)
	if info == nil {
		return nil, errors.New("portaudio: failed to get device info")
	}
	return &DeviceInfo{
		Index:             int(idx),
		Name:              C.GoString(info.name),
		MaxInputChannels:  int(info.maxInputChannels),
		DefaultSampleRate: float64(info.defaultSampleRate),
		IsDefault:         true,
	}, nil
}

// stream is an open, blocking-read PortAudio input stream.
type stream struct {
	mu     sync.Mutex
	pa     unsafe.Pointer
	buf    unsafe.Pointer
	frames int
	closed bool
}

func openInput(channels int, sampleRate float64, frames int) (*stream, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	dev := C.Pa_GetDefaultInputDevice()
	if dev == C.paNoDevice {
		return nil, ErrNoInputDevice
	}
	info := C.Pa_GetDeviceInfo(dev)
	params := &C.PaStreamParameters{
		device:                    dev,
		channelCount:              C.int(channels),
		sampleFormat:              C.paInt16,
		suggestedLatency:          info.defaultLowInputLatency,
		hostApiSpecificStreamInfo: nil,
	}

	var pa unsafe.Pointer
	if err := paError(C.pa_open_input(&pa, params, C.double(sampleRate), C.ulong(frames))); err != nil {
		return nil, err
	}
	s := &stream{
		pa:     pa,
		buf:    C.malloc(C.size_t(frames * channels * 2)),
		frames: frames,
	}
	if err := paError(C.pa_start_stream(pa)); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// read blocks for one buffer of frames and returns it as little-endian
// int16 bytes.
func (s *stream) read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("portaudio: stream closed")
	}
	if err := paError(C.pa_read_stream(s.pa, s.buf, C.ulong(s.frames))); err != nil {
		return nil, err
	}
	return C.GoBytes(s.buf, C.int(s.frames*2)), nil
}

func (s *stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	C.pa_stop_stream(s.pa)
	err := paError(C.pa_close_stream(s.pa))
	C.free(s.buf)
	return err
}
