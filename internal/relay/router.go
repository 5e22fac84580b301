package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"tether/internal/protocol"
)

// Error strings sent to endpoints in error frames.
const (
	ErrMsgInvalidFrame  = "Invalid message format"
	ErrMsgNotJoined     = "Not joined to a session"
	ErrMsgMismatch      = "Session/role mismatch"
	ErrMsgNoPeer        = "Peer not connected"
	ErrMsgTooLarge      = "Payload too large"
	ErrMsgReplaced      = "Replaced by a newer connection"
	errMsgUnknownPrefix = "Unknown message type: "
)

// ConnState is the per-connection routing context. The zero value is
// unjoined.
type ConnState struct {
	SessionID string
	Role      protocol.Role
}

// Joined reports whether the connection is registered in a session.
func (s ConnState) Joined() bool { return s.SessionID != "" }

// Action is an effect the transport must carry out: deliver Frame to Conn,
// or close Conn when Close is set.
type Action struct {
	Conn  Conn
	Frame protocol.Outbound
	Close *CloseSignal
}

// CloseSignal carries a websocket close code and reason.
type CloseSignal struct {
	Code   int
	Reason string
}

func send(c Conn, f protocol.Outbound) Action { return Action{Conn: c, Frame: f} }

func sendErr(c Conn, msg string) Action { return send(c, protocol.ErrorFrame(msg)) }

func closeConn(c Conn, code int, reason string) Action {
	return Action{Conn: c, Close: &CloseSignal{Code: code, Reason: reason}}
}

// Router interprets inbound frames against a Registry. It never looks
// inside message payloads.
type Router struct {
	reg        *Registry
	events     EventPublisher
	maxPayload int
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithEvents sets the lifecycle event sink.
func WithEvents(p EventPublisher) RouterOption {
	return func(r *Router) { r.events = p }
}

// WithMaxPayload caps the payload size of message frames; 0 disables.
func WithMaxPayload(n int) RouterOption {
	return func(r *Router) { r.maxPayload = n }
}

// NewRouter returns a Router over reg.
func NewRouter(reg *Registry, opts ...RouterOption) *Router {
	r := &Router{reg: reg, events: NopPublisher{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Registry returns the router's registry.
func (r *Router) Registry() *Registry { return r.reg }

// Handle processes one raw inbound frame from conn in state st and returns
// the next state together with the actions to perform, in order. Errors leave
// the state unchanged, except that a connection found no longer holding its
// slot falls back to unjoined.
func (r *Router) Handle(conn Conn, st ConnState, raw []byte) (ConnState, []Action) {
	f, err := protocol.DecodeInbound(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			return st, []Action{sendErr(conn, errMsgUnknownPrefix+unknownType(raw))}
		}
		return st, []Action{sendErr(conn, ErrMsgInvalidFrame)}
	}

	switch f.Type {
	case protocol.FrameJoin:
		return r.join(conn, st, f)
	case protocol.FrameMessage:
		return r.message(conn, st, f)
	case protocol.FramePing:
		if st.Joined() && !r.reg.UpdateHeartbeatIf(st.SessionID, st.Role, conn) {
			// Displaced or swept: the slot belongs to someone else now.
			st = ConnState{}
		}
		return st, []Action{send(conn, protocol.Outbound{Type: protocol.OutPong})}
	case protocol.FrameLeave:
		if !st.Joined() {
			return st, []Action{sendErr(conn, ErrMsgNotJoined)}
		}
		return ConnState{}, r.leave(conn, st)
	}
	// DecodeInbound only admits the four types above.
	return st, []Action{sendErr(conn, ErrMsgInvalidFrame)}
}

// Disconnect handles a transport-level close exactly like leave.
func (r *Router) Disconnect(conn Conn, st ConnState) []Action {
	if !st.Joined() {
		return nil
	}
	return r.leave(conn, st)
}

func (r *Router) join(conn Conn, st ConnState, f protocol.Inbound) (ConnState, []Action) {
	var actions []Action
	if st.Joined() {
		actions = append(actions, r.leave(conn, st)...)
	}

	_, displaced, peer := r.reg.AddClient(f.SessionID, f.Role, conn)
	if displaced != nil && displaced.Conn != conn {
		actions = append(actions,
			sendErr(displaced.Conn, ErrMsgReplaced),
			closeConn(displaced.Conn, CloseReplaced, "replaced"),
		)
		r.events.Publish(newEvent(EventClientReplaced, f.SessionID, f.Role, displaced.Conn.ID()))
	}

	actions = append(actions, send(conn, protocol.Outbound{Type: protocol.OutJoined}))
	if peer != nil {
		actions = append(actions,
			send(peer.Conn, protocol.Outbound{Type: protocol.OutPeerJoined}),
			send(conn, protocol.Outbound{Type: protocol.OutPeerJoined}),
		)
	}
	r.events.Publish(newEvent(EventSessionJoined, f.SessionID, f.Role, conn.ID()))

	return ConnState{SessionID: f.SessionID, Role: f.Role}, actions
}

func (r *Router) message(conn Conn, st ConnState, f protocol.Inbound) (ConnState, []Action) {
	if !st.Joined() {
		return st, []Action{sendErr(conn, ErrMsgNotJoined)}
	}
	if f.SessionID != st.SessionID || f.Role != st.Role {
		return st, []Action{sendErr(conn, ErrMsgMismatch)}
	}
	if r.maxPayload > 0 && len(f.Payload) > r.maxPayload {
		return st, []Action{sendErr(conn, ErrMsgTooLarge)}
	}
	peer, member := r.reg.PeerFor(st.SessionID, st.Role, conn)
	if !member {
		return ConnState{}, []Action{sendErr(conn, ErrMsgNotJoined)}
	}
	if peer == nil {
		return st, []Action{sendErr(conn, ErrMsgNoPeer)}
	}
	return st, []Action{send(peer.Conn, protocol.Outbound{Type: protocol.OutMessage, Payload: f.Payload})}
}

func (r *Router) leave(conn Conn, st ConnState) []Action {
	_, peer, ok := r.reg.RemoveClientIf(st.SessionID, st.Role, conn)
	if !ok {
		// Already displaced or swept.
		return nil
	}
	r.events.Publish(newEvent(EventSessionLeft, st.SessionID, st.Role, conn.ID()))
	if peer == nil {
		return nil
	}
	return []Action{send(peer.Conn, protocol.Outbound{Type: protocol.OutPeerLeft})}
}

// unknownType extracts the raw type field for the error message.
func unknownType(raw []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return fmt.Sprintf("%.32s", head.Type)
}
