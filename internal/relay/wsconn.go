package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tether/internal/protocol"
)

var (
	errConnClosed   = errors.New("relay: connection closed")
	errSlowConsumer = errors.New("relay: send buffer full")
)

// wsConn adapts a websocket to Conn. Frames are queued on out and written by
// a single writePump goroutine, so Send never blocks the router.
type wsConn struct {
	id        string
	ws        *websocket.Conn
	out       chan protocol.Outbound
	closing   chan struct{}
	once      sync.Once
	sig       CloseSignal
	writeWait time.Duration
}

func newWSConn(ws *websocket.Conn, buffer int, writeWait time.Duration) *wsConn {
	return &wsConn{
		id:        uuid.NewString(),
		ws:        ws,
		out:       make(chan protocol.Outbound, buffer),
		closing:   make(chan struct{}),
		writeWait: writeWait,
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(f protocol.Outbound) error {
	select {
	case <-c.closing:
		return errConnClosed
	default:
	}
	select {
	case c.out <- f:
		return nil
	default:
		_ = c.Close(CloseSlowConsumer, "send buffer full")
		return errSlowConsumer
	}
}

func (c *wsConn) Close(code int, reason string) error {
	c.once.Do(func() {
		c.sig = CloseSignal{Code: code, Reason: reason}
		close(c.closing)
	})
	return nil
}

// writePump owns all writes to ws. It returns after sending a close frame or
// on the first write error, and always closes the socket.
func (c *wsConn) writePump(pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case f := <-c.out:
			if err := c.write(f); err != nil {
				_ = c.Close(CloseNormal, "")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				_ = c.Close(CloseNormal, "")
				return
			}
		case <-c.closing:
			// Flush what the router queued before the close, e.g. the
			// "replaced" error frame.
			c.drain()
			msg := websocket.FormatCloseMessage(c.sig.Code, c.sig.Reason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
			return
		}
	}
}

func (c *wsConn) drain() {
	for {
		select {
		case f := <-c.out:
			if err := c.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(f protocol.Outbound) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.ws.WriteJSON(f)
}
