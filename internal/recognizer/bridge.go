// Package recognizer connects the caption engine to a speech recognition
// service over a websocket. One connection carries every recognition session;
// messages are tagged with the session id.
package recognizer

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

	"github.com/w93163red/LivCap-Translate/internal/caption"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 2 * time.Second
)

// Client message types.
const (
	msgStart  = "start"
	msgCancel = "cancel"
	msgEnd    = "end"
)

// Server message types.
const (
	msgHypothesis = "hypothesis"
	msgFinal      = "final"
	msgError      = "error"
	msgVAD        = "vad"
)

// CodeNoSpeech is the error code the service sends when a session heard
// nothing.
const CodeNoSpeech = "no_speech"

type clientMessage struct {
	Type    string `json:"type"`
	Session string `json:"session"`
}

type serverMessage struct {
	Type     string            `json:"type"`
	Session  string            `json:"session,omitempty"`
	Text     string            `json:"text,omitempty"`
	Segments []caption.Segment `json:"segments,omitempty"`
	Code     string            `json:"code,omitempty"`
	Message  string            `json:"message,omitempty"`
	Speech   bool              `json:"speech,omitempty"`
	Index    int               `json:"index,omitempty"`
}

// FrameFunc receives VAD frames from the service.
type FrameFunc func(isSpeech bool, index int)

// Config configures a Bridge.
type Config struct {
	URL              string
	Token            string
	HandshakeTimeout time.Duration
}

// Bridge implements caption.Recognizer. It dials lazily on the first Open
// and redials on the next Open after the connection drops.
type Bridge struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *slog.Logger

	frameMu sync.RWMutex
	onFrame FrameFunc

	mu       sync.Mutex
	conn     *websocket.Conn
	done     chan struct{}
	sessions map[string]caption.Callbacks
	closed   bool

	writeMu sync.Mutex
}

var _ caption.Recognizer = (*Bridge)(nil)

// New returns a Bridge for the service at cfg.URL.
func New(cfg Config, logger *slog.Logger) *Bridge {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		log:      logger.With("component", "recognizer.Bridge"),
		sessions: make(map[string]caption.Callbacks),
	}
}

// OnFrame registers the receiver of VAD frames.
func (b *Bridge) OnFrame(fn FrameFunc) {
	b.frameMu.Lock()
	b.onFrame = fn
	b.frameMu.Unlock()
}

// Open starts a recognition session. Dial failures are reported as
// caption.ErrBackendUnavailable, rejected credentials as
// caption.ErrNotAuthorized.
func (b *Bridge) Open(ctx context.Context, sessionID string, cb caption.Callbacks) (caption.RecognitionTask, error) {
	conn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.sessions[sessionID] = cb
	b.mu.Unlock()

	if err := b.send(conn, clientMessage{Type: msgStart, Session: sessionID}); err != nil {
		b.forget(sessionID)
		return nil, fmt.Errorf("%w: send start: %v", caption.ErrBackendUnavailable, err)
	}
	return &task{bridge: b, conn: conn, id: sessionID}, nil
}

// Close drops the connection and waits for the reader to exit. Open fails
// afterwards.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	conn, done := b.conn, b.done
	b.mu.Unlock()
	if conn == nil {
		return nil
	}

	b.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	b.writeMu.Unlock()
	err := conn.Close()
	<-done
	return err
}

func (b *Bridge) connect(ctx context.Context) (*websocket.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("%w: bridge closed", caption.ErrBackendUnavailable)
	}
	if b.conn != nil {
		return b.conn, nil
	}

	header := make(http.Header)
	if b.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+b.cfg.Token)
	}
	conn, resp, err := b.dialer.DialContext(ctx, b.cfg.URL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("%w: status %d", caption.ErrNotAuthorized, resp.StatusCode)
			}
			return nil, fmt.Errorf("%w: dial %s (status %d): %v", caption.ErrBackendUnavailable, b.cfg.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", caption.ErrBackendUnavailable, b.cfg.URL, err)
	}

	b.conn = conn
	b.done = make(chan struct{})
	go b.readLoop(conn, b.done)
	b.log.Info("connected to recognition service", "url", b.cfg.URL)
	return conn, nil
}

func (b *Bridge) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.dropConnection(conn, err)
			return
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			b.log.Warn("invalid message from recognition service", "error", err)
			continue
		}
		b.dispatch(msg)
	}
}

func (b *Bridge) dispatch(msg serverMessage) {
	if msg.Type == msgVAD {
		b.frameMu.RLock()
		fn := b.onFrame
		b.frameMu.RUnlock()
		if fn != nil {
			fn(msg.Speech, msg.Index)
		}
		return
	}

	b.mu.Lock()
	cb, ok := b.sessions[msg.Session]
	if ok && (msg.Type == msgFinal || msg.Type == msgError) {
		delete(b.sessions, msg.Session)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	switch msg.Type {
	case msgHypothesis:
		if cb.OnHypothesis != nil {
			cb.OnHypothesis(caption.Hypothesis{Text: msg.Text, Segments: msg.Segments})
		}
	case msgFinal:
		if cb.OnFinal != nil {
			cb.OnFinal()
		}
	case msgError:
		if cb.OnError != nil {
			cb.OnError(decodeError(msg))
		}
	default:
		b.log.Debug("ignoring message", "type", msg.Type)
	}
}

func decodeError(msg serverMessage) error {
	if msg.Code == CodeNoSpeech {
		return caption.ErrNoSpeechDetected
	}
	text := msg.Message
	if text == "" {
		text = "recognition failed"
	}
	return &caption.TransportError{Code: msg.Code, Err: errors.New(text)}
}

// dropConnection fails every open session so the engine rotates onto a
// fresh connection.
func (b *Bridge) dropConnection(conn *websocket.Conn, err error) {
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	orphans := b.sessions
	b.sessions = make(map[string]caption.Callbacks)
	closed := b.closed
	b.mu.Unlock()
	_ = conn.Close()

	if closed {
		return
	}
	b.log.Warn("recognition connection lost", "error", err)
	for _, cb := range orphans {
		if cb.OnError != nil {
			cb.OnError(&caption.TransportError{Code: "connection_lost", Err: err})
		}
	}
}

func (b *Bridge) send(conn *websocket.Conn, msg clientMessage) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (b *Bridge) forget(sessionID string) {
	b.mu.Lock()
	delete(b.sessions, sessionID)
	b.mu.Unlock()
}

type task struct {
	bridge *Bridge
	conn   *websocket.Conn
	id     string
}

// Cancel abandons the session on the service.
func (t *task) Cancel() {
	t.bridge.forget(t.id)
	if err := t.bridge.send(t.conn, clientMessage{Type: msgCancel, Session: t.id}); err != nil {
		t.bridge.log.Debug("send cancel", "session_id", t.id, "error", err)
	}
}

// EndAudio tells the service no more audio follows for the session.
func (t *task) EndAudio() {
	if err := t.bridge.send(t.conn, clientMessage{Type: msgEnd, Session: t.id}); err != nil {
		t.bridge.log.Debug("send end", "session_id", t.id, "error", err)
	}
}
