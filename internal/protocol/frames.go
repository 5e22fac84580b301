package protocol

import (
	"encoding/json"
	"fmt"
)

// FrameType is the kind of an inbound relay frame.
type FrameType string

const (
	FrameJoin    FrameType = "join"
	FrameMessage FrameType = "message"
	FramePing    FrameType = "ping"
	FrameLeave   FrameType = "leave"
)

// OutboundType is the kind of a frame the relay sends.
type OutboundType string

const (
	OutJoined     OutboundType = "joined"
	OutPeerJoined OutboundType = "peer_joined"
	OutPeerLeft   OutboundType = "peer_left"
	OutMessage    OutboundType = "message"
	OutPong       OutboundType = "pong"
	OutError      OutboundType = "error"
)

// Inbound is a frame sent by an endpoint to the relay.
type Inbound struct {
	SessionID string    `json:"session_id,omitempty" validate:"omitempty,sessionid"`
	Role      Role      `json:"role,omitempty" validate:"omitempty,role"`
	Type      FrameType `json:"type"`
	Payload   string    `json:"payload,omitempty"`
}

// Outbound is a frame sent by the relay to an endpoint.
type Outbound struct {
	Type    OutboundType `json:"type"`
	Payload string       `json:"payload,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// ErrorFrame builds an error frame.
func ErrorFrame(msg string) Outbound { return Outbound{Type: OutError, Error: msg} }

// DecodeInbound parses and validates an inbound frame. Malformed input wraps
// ErrInvalid; an unknown frame type wraps ErrUnknownType.
func DecodeInbound(data []byte) (Inbound, error) {
	var f Inbound
	if err := json.Unmarshal(data, &f); err != nil {
		return Inbound{}, invalidf("malformed json: %v", err)
	}
	switch f.Type {
	case FrameJoin, FrameMessage, FrameLeave:
		if f.SessionID == "" || f.Role == "" {
			return Inbound{}, invalidf("session_id and role are required for %s", f.Type)
		}
	case FramePing:
	case "":
		return Inbound{}, invalidf("type is required")
	default:
		return Inbound{}, fmt.Errorf("%w: %s", ErrUnknownType, f.Type)
	}
	if err := check(f); err != nil {
		return Inbound{}, err
	}
	return f, nil
}

// DecodeOutbound parses a relay frame on the endpoint side.
func DecodeOutbound(data []byte) (Outbound, error) {
	var f Outbound
	if err := json.Unmarshal(data, &f); err != nil {
		return Outbound{}, invalidf("malformed json: %v", err)
	}
	switch f.Type {
	case OutJoined, OutPeerJoined, OutPeerLeft, OutMessage, OutPong, OutError:
		return f, nil
	case "":
		return Outbound{}, invalidf("type is required")
	}
	return Outbound{}, fmt.Errorf("%w: %s", ErrUnknownType, f.Type)
}
