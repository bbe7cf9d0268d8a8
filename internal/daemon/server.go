package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/w93163red/LivCap-Translate/internal/db"
	"github.com/w93163red/LivCap-Translate/internal/pipeline"
)

const (
	defaultCaptionLimit = 50
	maxCaptionLimit     = 500
	writeTimeout        = 5 * time.Second
	connBuffer          = 256
)

// Recorder is the recording control the server exposes. *pipeline.Pipeline
// implements it.
type Recorder interface {
	StartRecording(ctx context.Context) (string, error)
	StopRecording() string
	Status() pipeline.Status
}

// CaptionReader serves the captions command. *db.Store implements it.
type CaptionReader interface {
	LatestSession() (*db.Session, error)
	RecentCaptions(sessionID string, limit int) ([]db.Caption, error)
}

// Server accepts NDJSON connections on a Unix socket.
type Server struct {
	rec      Recorder
	captions CaptionReader
	hub      *Hub
	log      *slog.Logger

	mu    sync.Mutex
	conns map[*conn]struct{}
	wg    sync.WaitGroup
}

// NewServer returns a Server. captions may be nil, in which case the
// captions command fails.
func NewServer(rec Recorder, captions CaptionReader, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	return &Server{
		rec:      rec,
		captions: captions,
		hub:      hub,
		log:      logger.With("component", "daemon.Server"),
		conns:    make(map[*conn]struct{}),
	}
}

// Listen creates the socket, replacing a stale one left by a previous run.
func Listen(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if c, err := net.Dial("unix", socketPath); err == nil {
		c.Close()
		return nil, fmt.Errorf("daemon already listening on %s", socketPath)
	}
	_ = os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return ln, nil
}

// Serve accepts connections until ctx is done, then closes every connection
// and waits for their handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			s.closeAll()
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		cn := newConn(c, s.log)
		s.mu.Lock()
		s.conns[cn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, cn)
			s.mu.Lock()
			delete(s.conns, cn)
			s.mu.Unlock()
		}()
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.drop("daemon shutting down")
	}
}

func (s *Server) handle(ctx context.Context, c *conn) {
	defer c.drop("")
	defer s.hub.remove(c)

	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var cmd Command
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			resp = Response{Error: "invalid command: " + err.Error()}
		} else {
			resp = s.dispatch(ctx, c, cmd)
		}
		if !c.send(resp) {
			return
		}
		// Events only start after the subscribe reply is queued.
		if cmd.Cmd == CmdSubscribe && resp.OK {
			s.hub.add(c)
		}
	}
}

func (s *Server) dispatch(ctx context.Context, c *conn, cmd Command) Response {
	switch cmd.Cmd {
	case CmdStart:
		id, err := s.rec.StartRecording(ctx)
		if err != nil {
			s.log.Warn("start recording", "error", err)
			return Response{Error: err.Error(), Recording: BoolPtr(s.rec.Status().Recording)}
		}
		return Response{OK: true, SessionID: id, Recording: BoolPtr(true)}

	case CmdStop:
		id := s.rec.StopRecording()
		return Response{OK: true, SessionID: id, Recording: BoolPtr(false)}

	case CmdStatus:
		st := s.rec.Status()
		resp := Response{
			OK:                  true,
			SessionID:           st.SessionID,
			Recording:           BoolPtr(st.Recording),
			Segments:            IntPtr(st.Captions),
			PendingTranslations: IntPtr(st.PendingTranslations),
			Partial:             st.Residual,
			Status:              "Idle",
		}
		if st.Recording {
			resp.Status = "Recording"
		}
		return resp

	case CmdSubscribe:
		c.setFilter(cmd.Events)
		return Response{OK: true}

	case CmdCaptions:
		return s.recentCaptions(cmd)

	case "":
		return Response{Error: "missing cmd"}
	default:
		return Response{Error: fmt.Sprintf("unknown command %q", cmd.Cmd)}
	}
}

func (s *Server) recentCaptions(cmd Command) Response {
	if s.captions == nil {
		return Response{Error: "caption store unavailable"}
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultCaptionLimit
	}
	limit = min(limit, maxCaptionLimit)

	id := cmd.SessionID
	if id == "" {
		if st := s.rec.Status(); st.SessionID != "" {
			id = st.SessionID
		} else {
			sess, err := s.captions.LatestSession()
			if err != nil {
				return Response{Error: err.Error()}
			}
			if sess == nil {
				return Response{OK: true}
			}
			id = sess.ID
		}
	}

	rows, err := s.captions.RecentCaptions(id, limit)
	if err != nil {
		return Response{Error: err.Error()}
	}
	resp := Response{OK: true, SessionID: id, Captions: make([]CaptionLine, 0, len(rows))}
	for _, r := range rows {
		resp.Captions = append(resp.Captions, CaptionLine{
			ID:             r.ID,
			Text:           r.Text,
			Translation:    r.Translation,
			SequenceNumber: r.SequenceNumber,
			CreatedAt:      r.CreatedAt,
		})
	}
	return resp
}

// conn is one client connection. Responses and events share a buffered
// writer goroutine so lines never interleave.
type conn struct {
	nc  net.Conn
	log *slog.Logger
	out chan []byte

	filterMu sync.RWMutex
	filter   map[string]bool

	once sync.Once
	done chan struct{}
}

func newConn(nc net.Conn, logger *slog.Logger) *conn {
	c := &conn{
		nc:   nc,
		log:  logger,
		out:  make(chan []byte, connBuffer),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case line := <-c.out:
			_ = c.nc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := c.nc.Write(line); err != nil {
				c.drop("write failed")
				return
			}
		}
	}
}

// send queues a response, waiting for room. It reports false once the
// connection is gone.
func (c *conn) send(resp Response) bool {
	line, err := json.Marshal(resp)
	if err != nil {
		c.log.Error("marshal response", "error", err)
		return false
	}
	select {
	case c.out <- append(line, '\n'):
		return true
	case <-c.done:
		return false
	}
}

func (c *conn) offer(line []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.out <- line:
		return true
	default:
		return false
	}
}

func (c *conn) drop(reason string) {
	c.once.Do(func() {
		if reason != "" {
			c.log.Debug("closing connection", "reason", reason)
		}
		close(c.done)
		c.nc.Close()
	})
}

func (c *conn) setFilter(names []string) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	if len(names) == 0 {
		c.filter = nil
		return
	}
	c.filter = make(map[string]bool, len(names))
	for _, n := range names {
		c.filter[n] = true
	}
}

func (c *conn) wants(event string) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.filter == nil || c.filter[event]
}
