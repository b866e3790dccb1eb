package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/speakerid/pkg/audio/pcm"
	"github.com/haivivi/speakerid/pkg/recording"
)

func writeWAV(t *testing.T, f pcm.Format, d time.Duration) string {
	t.Helper()
	n := f.SamplesInDuration(d)
	data := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(i%200-100)*50))
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, pcm.EncodeWAV(f, [][]byte{data}), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func collect(t *testing.T, s recording.Stream) [][]byte {
	t.Helper()
	var out [][]byte
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-s.Chunks():
			if !ok {
				return out
			}
			out = append(out, c)
		case <-timeout:
			t.Fatal("stream did not end")
		}
	}
}

func TestFileReplay(t *testing.T) {
	path := writeWAV(t, pcm.L16Mono16K, 550*time.Millisecond)
	s, err := NewFile(path, WithRealtime(false)).Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	chunks := collect(t, s)
	if len(chunks) != 6 {
		t.Fatalf("got %d chunks, want 6", len(chunks))
	}
	if got := len(bytes.Join(chunks, nil)); got != int(pcm.L16Mono16K.BytesInDuration(550*time.Millisecond)) {
		t.Errorf("replayed %d bytes", got)
	}

	enc, ok := s.(recording.Encoder)
	if !ok {
		t.Fatal("file stream should encode WAV")
	}
	data, mime, err := enc.Encode(chunks)
	if err != nil {
		t.Fatal(err)
	}
	if mime != "audio/wav" {
		t.Errorf("mime = %q", mime)
	}
	info, pcmData, err := pcm.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if info.SampleRate != 16000 || len(pcmData) != len(bytes.Join(chunks, nil)) {
		t.Errorf("decoded %+v with %d bytes", info, len(pcmData))
	}
}

func TestFileResamplesOnEncode(t *testing.T) {
	path := writeWAV(t, pcm.L16Mono48K, time.Second)
	s, err := NewFile(path, WithRealtime(false)).Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	data, _, err := s.(recording.Encoder).Encode(collect(t, s))
	if err != nil {
		t.Fatal(err)
	}
	info, pcmData, err := pcm.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	want := pcm.L16Mono16K.BytesInDuration(time.Second)
	if info.SampleRate != 16000 {
		t.Errorf("sample rate = %d", info.SampleRate)
	}
	// The resampler holds back its filter delay, so allow a short tail.
	if got := int64(len(pcmData)); got < want/2 || got > want+want/20 {
		t.Errorf("resampled to %d bytes, want about %d", got, want)
	}
}

func TestFileCloseStopsReplay(t *testing.T) {
	path := writeWAV(t, pcm.L16Mono16K, 10*time.Second)
	s, err := NewFile(path).Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	collect(t, s)
}

func TestFileOpenErrors(t *testing.T) {
	if _, err := NewFile(filepath.Join(t.TempDir(), "missing.wav")).Open(context.Background()); err == nil {
		t.Error("missing file should fail")
	}
	bad := filepath.Join(t.TempDir(), "bad.wav")
	os.WriteFile(bad, []byte("not a wav"), 0o644)
	if _, err := NewFile(bad).Open(context.Background()); !errors.Is(err, pcm.ErrNotWAV) {
		t.Errorf("bad file error = %v", err)
	}
}

func TestPlaylist(t *testing.T) {
	short := writeWAV(t, pcm.L16Mono16K, 200*time.Millisecond)
	long := writeWAV(t, pcm.L16Mono16K, 400*time.Millisecond)
	p := NewPlaylist([]string{short, long}, WithRealtime(false))

	for _, want := range []int{2, 4} {
		s, err := p.Open(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got := len(collect(t, s)); got != want {
			t.Errorf("chunks = %d, want %d", got, want)
		}
		s.Close()
	}
	if p.Remaining() != 0 {
		t.Errorf("Remaining = %d", p.Remaining())
	}
	if _, err := p.Open(context.Background()); !errors.Is(err, ErrPlaylistDone) {
		t.Errorf("Open past end = %v, want ErrPlaylistDone", err)
	}
}

// browser plays the client side of the bridge protocol.
func browser(t *testing.T, url string, onStart func(*websocket.Conn), onStop func(*websocket.Conn)) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	go func() {
		for {
			var msg controlMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case msgStart:
				onStart(conn)
			case msgStop:
				onStop(conn)
			}
		}
	}()
	return conn
}

func waitConnected(t *testing.T, b *Bridge) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !b.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("browser never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBridgeRecording(t *testing.T) {
	b := NewBridge()
	srv := httptest.NewServer(b)
	defer srv.Close()

	browser(t, srv.URL,
		func(c *websocket.Conn) {
			c.WriteJSON(controlMessage{Type: msgStarted, MIMEType: "audio/webm;codecs=opus"})
			c.WriteMessage(websocket.BinaryMessage, []byte("aa"))
			c.WriteMessage(websocket.BinaryMessage, []byte("bb"))
		},
		func(c *websocket.Conn) {
			c.WriteMessage(websocket.BinaryMessage, []byte("cc"))
			c.WriteJSON(controlMessage{Type: msgStopped})
		})
	waitConnected(t, b)

	s, err := b.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.MIMEType() != "audio/webm;codecs=opus" {
		t.Errorf("mime = %q", s.MIMEType())
	}
	first := <-s.Chunks()
	s.Close()
	rest := collect(t, s)
	got := string(first) + string(bytes.Join(rest, nil))
	if got != "aabbcc" {
		t.Errorf("chunks = %q, want aabbcc", got)
	}

	// The bridge is free for the next recording.
	if _, err := b.Open(context.Background()); errors.Is(err, ErrBusy) {
		t.Error("bridge still busy after stop")
	}
}

func TestBridgeDenied(t *testing.T) {
	b := NewBridge()
	srv := httptest.NewServer(b)
	defer srv.Close()

	browser(t, srv.URL,
		func(c *websocket.Conn) {
			c.WriteJSON(controlMessage{Type: msgDenied, Message: "NotAllowedError"})
		},
		func(*websocket.Conn) {})
	waitConnected(t, b)

	_, err := b.Open(context.Background())
	if !errors.Is(err, ErrDenied) || !strings.Contains(err.Error(), "NotAllowedError") {
		t.Fatalf("Open = %v, want ErrDenied", err)
	}
}

func TestBridgeNoClient(t *testing.T) {
	if _, err := NewBridge().Open(context.Background()); !errors.Is(err, ErrNoClient) {
		t.Errorf("Open = %v, want ErrNoClient", err)
	}
}

func TestBridgeStopTimeout(t *testing.T) {
	b := NewBridge(WithStopTimeout(50 * time.Millisecond))
	srv := httptest.NewServer(b)
	defer srv.Close()

	browser(t, srv.URL,
		func(c *websocket.Conn) { c.WriteJSON(controlMessage{Type: msgStarted}) },
		func(*websocket.Conn) {})
	waitConnected(t, b)

	s, err := b.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.MIMEType() != "audio/webm" {
		t.Errorf("default mime = %q", s.MIMEType())
	}
	s.Close()
	if n := len(collect(t, s)); n != 0 {
		t.Errorf("got %d chunks", n)
	}
}

func TestBridgeDisconnectEndsStream(t *testing.T) {
	b := NewBridge()
	srv := httptest.NewServer(b)
	defer srv.Close()

	conn := browser(t, srv.URL,
		func(c *websocket.Conn) { c.WriteJSON(controlMessage{Type: msgStarted}) },
		func(*websocket.Conn) {})
	waitConnected(t, b)

	s, err := b.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
	collect(t, s)
}

// acceptConn returns the server side of a fresh WebSocket connection.
func acceptConn(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	select {
	case c := <-conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no server connection")
		return nil
	}
}

func TestBridgeReplacedClientKeepsNewStream(t *testing.T) {
	b := NewBridge()
	old := &bridgeClient{conn: acceptConn(t), gone: make(chan struct{})}
	cur := &bridgeClient{conn: acceptConn(t), gone: make(chan struct{})}
	s := &bridgeStream{
		bridge:   b,
		client:   cur,
		mimeType: "audio/webm",
		chunks:   make(chan []byte, 1),
		ended:    make(chan struct{}),
	}
	b.client = cur
	b.active = s

	// The replaced connection shuts down after the new one started.
	b.release(old)

	if !b.Connected() {
		t.Error("newer client detached")
	}
	b.mu.Lock()
	active := b.active
	b.mu.Unlock()
	if active != s {
		t.Fatal("stream of the newer client was cleared")
	}
	select {
	case <-s.ended:
		t.Fatal("stream of the newer client was ended")
	default:
	}
	select {
	case <-old.gone:
	default:
		t.Error("old client not marked gone")
	}

	// Frames and control messages from the old client are ignored.
	b.control(old, controlMessage{Type: msgStopped})
	select {
	case <-s.ended:
		t.Fatal("stopped from the old client ended the stream")
	default:
	}

	b.release(cur)
	if _, ok := <-s.chunks; ok {
		t.Error("stream still open after its client left")
	}
}
