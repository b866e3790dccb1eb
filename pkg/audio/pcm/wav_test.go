package pcm

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeWAV(t *testing.T) {
	chunks := [][]byte{
		{1, 0, 2, 0},
		{3, 0},
		{4, 0, 5, 0, 6, 0},
	}
	wav := EncodeWAV(L16Mono16K, chunks)
	if len(wav) != wavHeaderSize+12 {
		t.Fatalf("len = %d, want %d", len(wav), wavHeaderSize+12)
	}

	info, data, err := DecodeWAV(bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Fatalf("info = %+v", info)
	}
	want := []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0}
	if !bytes.Equal(data, want) {
		t.Fatalf("data = %v, want %v", data, want)
	}
	f, err := info.Format()
	if err != nil || f != L16Mono16K {
		t.Fatalf("Format() = %v, %v", f, err)
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	wav := EncodeWAV(L16Mono48K, [][]byte{{9, 9}})
	// Splice a LIST chunk between fmt and data.
	list := append([]byte("LIST"), 3, 0, 0, 0, 'a', 'b', 'c', 0)
	spliced := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)

	info, data, err := DecodeWAV(bytes.NewReader(spliced))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if info.SampleRate != 48000 {
		t.Fatalf("SampleRate = %d", info.SampleRate)
	}
	if !bytes.Equal(data, []byte{9, 9}) {
		t.Fatalf("data = %v", data)
	}
}

func TestDecodeWAV_NotWAV(t *testing.T) {
	_, _, err := DecodeWAV(bytes.NewReader([]byte("OggS0000000000000000")))
	if !errors.Is(err, ErrNotWAV) {
		t.Fatalf("err = %v, want ErrNotWAV", err)
	}
}

func TestFormat_BytesInDuration(t *testing.T) {
	tests := []struct {
		f    Format
		d    time.Duration
		want int64
	}{
		{L16Mono16K, 100 * time.Millisecond, 3200},
		{L16Mono44K, 100 * time.Millisecond, 8820},
		{L16Mono48K, time.Second, 96000},
	}
	for _, tt := range tests {
		if got := tt.f.BytesInDuration(tt.d); got != tt.want {
			t.Errorf("%v.BytesInDuration(%v) = %d, want %d", tt.f, tt.d, got, tt.want)
		}
		if got := tt.f.Duration(tt.want); got != tt.d {
			t.Errorf("%v.Duration(%d) = %v, want %v", tt.f, tt.want, got, tt.d)
		}
	}
}

func TestFormatForRate(t *testing.T) {
	if _, err := FormatForRate(8000); err == nil {
		t.Fatal("expected error for 8000 Hz")
	}
	f, err := FormatForRate(44100)
	if err != nil || f != L16Mono44K {
		t.Fatalf("FormatForRate(44100) = %v, %v", f, err)
	}
}
