package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/speakerid/pkg/recording"
)

// Bridge errors.
var (
	ErrNoClient = errors.New("capture: no browser connected")
	ErrDenied   = errors.New("capture: microphone access denied")
	ErrBusy     = errors.New("capture: a recording is already streaming")
)

// Control messages exchanged with the browser as JSON text frames. Audio
// travels as binary frames between "started" and "stopped".
//
//	server → browser: {"type":"start"}  {"type":"stop"}
//	browser → server: {"type":"started","mime_type":"audio/webm"}
//	                  {"type":"denied","message":"..."}
//	                  {"type":"stopped"}
type controlMessage struct {
	Type     string `json:"type"`
	MIMEType string `json:"mime_type,omitempty"`
	Message  string `json:"message,omitempty"`
}

const (
	msgStart   = "start"
	msgStop    = "stop"
	msgStarted = "started"
	msgDenied  = "denied"
	msgStopped = "stopped"
)

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeLogger sets the logger. Default: slog.Default().
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithStartTimeout bounds the wait for the browser to grant access.
// Default 30s.
func WithStartTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		b.startTimeout = d
	}
}

// WithStopTimeout bounds the wait for trailing chunks after stop.
// Default 2s.
func WithStopTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		b.stopTimeout = d
	}
}

// Bridge is a capture device backed by one browser connected over a
// WebSocket. The browser records with MediaRecorder and streams the
// encoded chunks; Open asks it to start and Close asks it to stop.
type Bridge struct {
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	startTimeout time.Duration
	stopTimeout  time.Duration

	mu      sync.Mutex
	client  *bridgeClient
	pending *pendingStart
	active  *bridgeStream
}

// pendingStart is an Open waiting for the browser's answer.
type pendingStart struct {
	stream *bridgeStream
	reply  chan controlMessage
}

type bridgeClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	gone    chan struct{}
}

func (c *bridgeClient) send(msg controlMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// NewBridge creates a Bridge with no browser attached.
func NewBridge(opts ...BridgeOption) *Bridge {
	b := &Bridge{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:       slog.Default(),
		startTimeout: 30 * time.Second,
		stopTimeout:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connected reports whether a browser is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client != nil
}

// ServeHTTP upgrades the request and attaches the browser. A newer
// connection replaces an older one. It returns when the connection closes.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("capture: websocket upgrade", "error", err)
		return
	}
	c := &bridgeClient{conn: conn, gone: make(chan struct{})}

	b.mu.Lock()
	old := b.client
	b.client = c
	b.mu.Unlock()
	if old != nil {
		old.conn.Close()
	}
	b.logger.Info("capture: browser connected", "remote", r.RemoteAddr)

	b.readLoop(c)
	b.release(c)
	b.logger.Info("capture: browser disconnected", "remote", r.RemoteAddr)
}

// release detaches c after its connection closed. Only a stream opened
// through c is ended; a newer client's recording is left alone.
func (b *Bridge) release(c *bridgeClient) {
	b.mu.Lock()
	if b.client == c {
		b.client = nil
	}
	var active *bridgeStream
	if b.active != nil && b.active.client == c {
		active = b.active
		b.active = nil
	}
	b.mu.Unlock()
	close(c.gone)
	c.conn.Close()
	if active != nil {
		active.end()
	}
}

func (b *Bridge) readLoop(c *bridgeClient) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			b.mu.Lock()
			active := b.active
			b.mu.Unlock()
			if active != nil && active.client == c {
				active.push(data)
			}
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				b.logger.Warn("capture: bad control message", "error", err)
				continue
			}
			b.control(c, msg)
		}
	}
}

func (b *Bridge) control(c *bridgeClient, msg controlMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch msg.Type {
	case msgStarted, msgDenied:
		p := b.pending
		if p == nil || p.stream.client != c {
			return
		}
		b.pending = nil
		if msg.Type == msgStarted {
			// Binary frames after this message belong to the stream.
			if msg.MIMEType != "" {
				p.stream.mimeType = msg.MIMEType
			}
			b.active = p.stream
		}
		p.reply <- msg
	case msgStopped:
		if b.active != nil && b.active.client == c {
			b.active.end()
			b.active = nil
		}
	default:
		b.logger.Debug("capture: ignored control message", "type", msg.Type)
	}
}

// Open asks the browser to start recording and waits for it to grant or
// refuse microphone access.
func (b *Bridge) Open(ctx context.Context) (recording.Stream, error) {
	b.mu.Lock()
	c := b.client
	switch {
	case c == nil:
		b.mu.Unlock()
		return nil, ErrNoClient
	case b.active != nil || b.pending != nil:
		b.mu.Unlock()
		return nil, ErrBusy
	}
	p := &pendingStart{
		stream: &bridgeStream{
			bridge:   b,
			client:   c,
			mimeType: "audio/webm",
			chunks:   make(chan []byte, 64),
			ended:    make(chan struct{}),
		},
		reply: make(chan controlMessage, 1),
	}
	b.pending = p
	b.mu.Unlock()

	if err := c.send(controlMessage{Type: msgStart}); err != nil {
		b.abandon(p)
		return nil, fmt.Errorf("capture: send start: %w", err)
	}

	timer := time.NewTimer(b.startTimeout)
	defer timer.Stop()
	var msg controlMessage
	select {
	case msg = <-p.reply:
	case <-c.gone:
		b.abandon(p)
		return nil, ErrNoClient
	case <-timer.C:
		b.abandon(p)
		return nil, fmt.Errorf("capture: browser did not answer within %s", b.startTimeout)
	case <-ctx.Done():
		b.abandon(p)
		return nil, ctx.Err()
	}

	if msg.Type == msgDenied {
		if msg.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrDenied, msg.Message)
		}
		return nil, ErrDenied
	}
	return p.stream, nil
}

// abandon gives up on p. If the browser started anyway in the meantime,
// it is told to stop.
func (b *Bridge) abandon(p *pendingStart) {
	b.mu.Lock()
	if b.pending == p {
		b.pending = nil
	}
	started := b.active == p.stream
	b.mu.Unlock()
	if started {
		p.stream.Close()
	}
}

type bridgeStream struct {
	bridge   *Bridge
	client   *bridgeClient
	mimeType string
	chunks   chan []byte

	ended     chan struct{}
	endOnce   sync.Once
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

func (s *bridgeStream) Chunks() <-chan []byte { return s.chunks }
func (s *bridgeStream) MIMEType() string      { return s.mimeType }

// Close asks the browser to stop. Trailing chunks keep arriving until the
// browser confirms or the stop timeout passes.
func (s *bridgeStream) Close() error {
	s.closeOnce.Do(func() {
		if err := s.client.send(controlMessage{Type: msgStop}); err != nil {
			s.bridge.logger.Debug("capture: send stop", "error", err)
			s.detach()
			return
		}
		go func() {
			t := time.NewTimer(s.bridge.stopTimeout)
			defer t.Stop()
			select {
			case <-s.ended:
			case <-t.C:
				s.bridge.logger.Warn("capture: browser did not confirm stop")
				s.detach()
			}
		}()
	})
	return nil
}

func (s *bridgeStream) detach() {
	b := s.bridge
	b.mu.Lock()
	if b.active == s {
		b.active = nil
	}
	b.mu.Unlock()
	s.end()
}

func (s *bridgeStream) push(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.chunks <- data:
	case <-s.ended:
	}
}

// end closes the chunk channel. ended is closed first so a push blocked on
// a full channel gives up the lock.
func (s *bridgeStream) end() {
	s.endOnce.Do(func() { close(s.ended) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.chunks)
	}
}
