package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"tether/internal/protocol"
)

// ErrClientClosed is returned by Client methods after Close.
var ErrClientClosed = errors.New("relay: client closed")

// Client is an endpoint's connection to a relay.
type Client struct {
	ws     *websocket.Conn
	frames chan protocol.Outbound

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
	err       error
}

// WebsocketURL normalises a relay URL to the websocket endpoint: http(s)
// becomes ws(s) and an empty path becomes /ws.
func WebsocketURL(relayURL string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay url %q has no host", relayURL)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Dial connects to the relay at relayURL.
func Dial(ctx context.Context, relayURL string) (*Client, error) {
	wsURL, err := WebsocketURL(relayURL)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", wsURL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c := &Client{
		ws:     ws,
		frames: make(chan protocol.Outbound, 64),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Frames delivers relay frames in arrival order. It is closed when the
// connection ends.
func (c *Client) Frames() <-chan protocol.Outbound { return c.frames }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended. Valid after Done is closed.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Join registers this connection under sessionID as role.
func (c *Client) Join(sessionID string, role protocol.Role) error {
	return c.write(protocol.Inbound{Type: protocol.FrameJoin, SessionID: sessionID, Role: role})
}

// Send forwards payload to the peer.
func (c *Client) Send(sessionID string, role protocol.Role, payload string) error {
	return c.write(protocol.Inbound{Type: protocol.FrameMessage, SessionID: sessionID, Role: role, Payload: payload})
}

// Ping sends an application-level heartbeat that extends the session.
func (c *Client) Ping() error {
	return c.write(protocol.Inbound{Type: protocol.FramePing})
}

// Leave deregisters from the session without closing the connection.
func (c *Client) Leave(sessionID string, role protocol.Role) error {
	return c.write(protocol.Inbound{Type: protocol.FrameLeave, SessionID: sessionID, Role: role})
}

// Close sends a normal close frame and releases the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Client) write(f protocol.Inbound) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.frames)

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.err = err
			return
		}
		f, err := protocol.DecodeOutbound(raw)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping malformed relay frame")
			continue
		}
		select {
		case c.frames <- f:
		case <-c.closed:
			c.err = ErrClientClosed
			return
		}
	}
}

// CloseCode extracts the websocket close code from a connection error, or
// returns 0 when err is not a close.
func CloseCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}
