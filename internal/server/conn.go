package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-relay/internal/frame"
)

const (
	wsPongWait     = 60 * time.Second
	wsPingInterval = 54 * time.Second
)

// tcpConn carries frames over a raw stream connection. Reads use a short
// deadline so the session can poll for shutdown between frames.
type tcpConn struct {
	conn         net.Conn
	reader       *frame.Reader
	poll         time.Duration
	writeTimeout time.Duration
}

func newTCPConn(conn net.Conn, cfg Config) *tcpConn {
	return &tcpConn{
		conn:         conn,
		reader:       frame.NewReader(conn, cfg.MaxMessageSize),
		poll:         cfg.PollInterval,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (c *tcpConn) ReadFrame() ([]byte, error) {
	if c.poll > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.poll)); err != nil {
			return nil, &frame.IOError{Op: "read", Err: err}
		}
	}
	return c.reader.ReadFrame()
}

func (c *tcpConn) WriteFrame(payload []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return &frame.IOError{Op: "write", Err: err}
		}
	}
	return frame.WriteFrame(c.conn, payload)
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *tcpConn) Transport() string {
	return "tcp"
}

// wsConn carries one frame per WebSocket message. Reads have no deadline
// until StartKeepAlive; afterwards the peer must answer pings within
// pongWait.
type wsConn struct {
	conn         *websocket.Conn
	addr         string
	limit        int64
	writeTimeout time.Duration

	pongWait     time.Duration
	pingInterval time.Duration
	alive        bool
}

func newWSConn(conn *websocket.Conn, addr string, cfg Config) *wsConn {
	conn.SetReadLimit(cfg.MaxMessageSize)
	return &wsConn{
		conn:         conn,
		addr:         addr,
		limit:        cfg.MaxMessageSize,
		writeTimeout: cfg.WriteTimeout,
		pongWait:     wsPongWait,
		pingInterval: wsPingInterval,
	}
}

func (c *wsConn) StartKeepAlive() error {
	c.alive = true
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		return &frame.IOError{Op: "read", Err: err}
	}
	return nil
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	if err == nil {
		if c.alive {
			// any inbound traffic proves the peer alive
			_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		}
		return payload, nil
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		return nil, fmt.Errorf("%w: message exceeds %d bytes", frame.ErrProtocol, c.limit)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		return nil, io.EOF
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isExpectedCloseError(err):
		return nil, io.EOF
	default:
		return nil, &frame.IOError{Op: "read", Err: err}
	}
}

func (c *wsConn) WriteFrame(payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return &frame.IOError{Op: "write", Err: err}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &frame.IOError{Op: "write", Err: err}
	}
	return nil
}

func (c *wsConn) PingInterval() time.Duration {
	return c.pingInterval
}

func (c *wsConn) Ping() error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.addr
}

func (c *wsConn) Transport() string {
	return "websocket"
}
