package relay_test

import (
	"sync"
	"testing"
	"time"

	"tether/internal/protocol"
	"tether/internal/relay"
)

// fakeConn records frames and closes instead of writing to a socket.
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames []protocol.Outbound
	closed *relay.CloseSignal
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(f protocol.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed == nil {
		c.closed = &relay.CloseSignal{Code: code, Reason: reason}
	}
	return nil
}

func (c *fakeConn) closeCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed == nil {
		return 0
	}
	return c.closed.Code
}

// harness drives a Router the way the server does, applying actions to fake
// connections.
type harness struct {
	t      *testing.T
	router *relay.Router
	states map[*fakeConn]relay.ConnState
}

func newHarness(t *testing.T, opts ...relay.RouterOption) *harness {
	t.Helper()
	reg := relay.NewRegistry(time.Hour)
	return &harness{
		t:      t,
		router: relay.NewRouter(reg, opts...),
		states: make(map[*fakeConn]relay.ConnState),
	}
}

func (h *harness) apply(actions []relay.Action) {
	for _, a := range actions {
		if a.Close != nil {
			_ = a.Conn.Close(a.Close.Code, a.Close.Reason)
			continue
		}
		_ = a.Conn.Send(a.Frame)
	}
}

func (h *harness) send(c *fakeConn, raw string) {
	h.t.Helper()
	st, actions := h.router.Handle(c, h.states[c], []byte(raw))
	h.states[c] = st
	h.apply(actions)
}

func (h *harness) disconnect(c *fakeConn) {
	h.apply(h.router.Disconnect(c, h.states[c]))
	delete(h.states, c)
}

// drain returns and clears the frames c has received.
func drain(c *fakeConn) []protocol.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

func types(frames []protocol.Outbound) []protocol.OutboundType {
	out := make([]protocol.OutboundType, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func expectTypes(t *testing.T, who string, got []protocol.Outbound, want ...protocol.OutboundType) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got frames %v, want %v", who, types(got), want)
	}
	for i := range want {
		if got[i].Type != want[i] {
			t.Fatalf("%s: got frames %v, want %v", who, types(got), want)
		}
	}
}

func expectError(t *testing.T, who string, got []protocol.Outbound, msg string) {
	t.Helper()
	if len(got) != 1 || got[0].Type != protocol.OutError || got[0].Error != msg {
		t.Fatalf("%s: got %+v, want single error %q", who, got, msg)
	}
}
