package endpoint

import "errors"

var (
	// ErrHandshake is returned when a handshake message is rejected.
	ErrHandshake = errors.New("endpoint: handshake failed")
	// ErrNotPaired is returned when a channel is used before the handshake
	// completed.
	ErrNotPaired = errors.New("endpoint: handshake not complete")
	// ErrWrongSession is returned for an envelope addressed to another session.
	ErrWrongSession = errors.New("endpoint: envelope for another session")
	// ErrReflected is returned for an envelope claiming our own role as sender.
	ErrReflected = errors.New("endpoint: envelope sent by own role")
	// ErrStaleMessage is returned for an envelope outside the accepted time
	// window.
	ErrStaleMessage = errors.New("endpoint: message timestamp outside window")
	// ErrReplay is returned for an envelope whose nonce was already accepted.
	ErrReplay = errors.New("endpoint: replayed message")
	// ErrChannelClosed is returned after Channel.Close.
	ErrChannelClosed = errors.New("endpoint: channel closed")
)

// ErrReplaced is returned by Runner.Run when another connection took over
// our role in the session.
var ErrReplaced = errors.New("endpoint: replaced by a newer connection")
