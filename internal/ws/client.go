package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	closeWait      = time.Second
)

// Close codes sent by the gateway.
const (
	CloseSessionReplaced = 4001
	CloseInactive        = 4002
	CloseQueueOverflow   = 4008
)

var (
	errClientClosed = errors.New("connection closed")
	errQueueFull    = errors.New("outbound queue full")
)

// Client is one live websocket connection. Writes go through a bounded queue drained by writePump;
// a client whose queue overflows is disconnected instead of stalling fan-out.
type Client struct {
	info ConnInfo
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	once        sync.Once
	mu          sync.Mutex
	closeCode   int
	closeReason string
}

func newClient(conn *websocket.Conn, info ConnInfo, queue int) *Client {
	if queue <= 0 {
		queue = 256
	}
	return &Client{
		info: info,
		conn: conn,
		send: make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.info.ConnID }
func (c *Client) UserID() int64  { return c.info.UserID }
func (c *Client) Info() ConnInfo { return c.info }

// Send enqueues payload without blocking.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.Close(CloseQueueOverflow, "outbound queue overflow")
		return errQueueFull
	}
}

// Close marks the client closed, then sends a close frame and tears down the socket in the background.
// It never blocks on the peer. Only the first call has an effect.
func (c *Client) Close(code int, reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.closeReason = reason
		c.mu.Unlock()

		close(c.done)
		go func() {
			// a stuck writePump holds the write lock, so the frame gets a short deadline
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeWait))
			_ = c.conn.Close()
		}()
	})
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// CloseCode returns the code given to Close, or 0 if the server has not closed the client.
func (c *Client) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// CloseReason returns the reason given to Close, if the server closed the client.
func (c *Client) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseInternalServerErr, "ping failed")
				return
			}
		}
	}
}

// readPump reads frames until the socket fails and hands each to handle. onPong runs on every pong.
func (c *Client) readPump(handle func([]byte), onPong func()) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		onPong()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(data)
	}
}
