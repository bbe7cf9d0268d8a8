package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	dialTimeout    = 2 * time.Second
	commandTimeout = 5 * time.Second
	maxLine        = 1 << 20
)

// ErrConnectionClosed is returned when the daemon hangs up.
var ErrConnectionClosed = errors.New("daemon connection closed")

// Client talks to livcapd over its Unix socket. A connection that has
// subscribed only reads events afterwards, so the TUI keeps two clients.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
}

// Connect dials the daemon Unix socket.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &Client{conn: conn, scanner: sc}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// SendCommand writes cmd and waits for its reply. A daemon that does not
// answer within commandTimeout fails the call instead of hanging the UI.
func (c *Client) SendCommand(cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("marshal %s command: %w", cmd.Cmd, err)
	}

	c.conn.SetDeadline(time.Now().Add(commandTimeout))
	defer c.conn.SetDeadline(time.Time{})

	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", cmd.Cmd, err)
	}

	var resp Response
	if err := c.readLine(&resp); err != nil {
		return Response{}, fmt.Errorf("%s response: %w", cmd.Cmd, err)
	}
	return resp, nil
}

// Subscribe switches the connection to event streaming. names filters the
// events received; none means all of them.
func (c *Client) Subscribe(names ...string) error {
	resp, err := c.SendCommand(Command{Cmd: CmdSubscribe, Events: names})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("subscribe: %s", resp.Error)
	}
	return nil
}

// Captions fetches the most recent stored captions of a session, or of the
// current or latest session when sessionID is empty.
func (c *Client) Captions(sessionID string, limit int) (Response, error) {
	return c.SendCommand(Command{Cmd: CmdCaptions, SessionID: sessionID, Limit: limit})
}

// ReadEvent blocks until the next event arrives on a subscribed connection.
func (c *Client) ReadEvent() (Event, error) {
	var ev Event
	if err := c.readLine(&ev); err != nil {
		return Event{}, fmt.Errorf("read event: %w", err)
	}
	return ev, nil
}

func (c *Client) readLine(v any) error {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return err
		}
		return ErrConnectionClosed
	}
	if err := json.Unmarshal(c.scanner.Bytes(), v); err != nil {
		return fmt.Errorf("decode %q: %w", c.scanner.Bytes(), err)
	}
	return nil
}
