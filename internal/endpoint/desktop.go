package endpoint

import (
	"crypto/rand"
	"fmt"
	"sync"

	"tether/internal/crypto"
	"tether/internal/pairing"
	"tether/internal/protocol"
)

// sessionIDBytes of randomness give a 24 character base64 session id.
const sessionIDBytes = 18

// NewSessionID returns a fresh random session id.
func NewSessionID() (string, error) {
	var b [sessionIDBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return crypto.B64(b[:]), nil
}

// Desktop is the initiating side of a pairing. It owns the session id and
// the key pair advertised in the pairing string.
type Desktop struct {
	sessionID string
	relayURL  string
	keys      crypto.KeyPair
	opts      []ChannelOption

	mu   sync.Mutex
	peer *crypto.PublicKey
}

// NewDesktop starts a new pairing against relayURL.
func NewDesktop(relayURL string, opts ...ChannelOption) (*Desktop, error) {
	if !protocol.ValidRelayURL(relayURL) {
		return nil, fmt.Errorf("%w: relay url %q", protocol.ErrInvalid, relayURL)
	}
	id, err := NewSessionID()
	if err != nil {
		return nil, err
	}
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Desktop{sessionID: id, relayURL: relayURL, keys: kp, opts: withSharedGuard(opts)}, nil
}

// RestoreDesktop rebuilds a Desktop from persisted state. A non-nil peer pins
// the mobile key: responses carrying any other key are refused.
func RestoreDesktop(sessionID, relayURL string, keys crypto.KeyPair, peer *crypto.PublicKey, opts ...ChannelOption) *Desktop {
	d := &Desktop{sessionID: sessionID, relayURL: relayURL, keys: keys, opts: withSharedGuard(opts)}
	if peer != nil {
		p := *peer
		d.peer = &p
	}
	return d
}

func (d *Desktop) SessionID() string       { return d.sessionID }
func (d *Desktop) RelayURL() string        { return d.relayURL }
func (d *Desktop) Role() protocol.Role     { return protocol.RoleDesktop }
func (d *Desktop) KeyPair() crypto.KeyPair { return d.keys }

// PeerPublicKey returns the mobile key once a response was accepted.
func (d *Desktop) PeerPublicKey() (crypto.PublicKey, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.peer == nil {
		return crypto.PublicKey{}, false
	}
	return *d.peer, true
}

// PairingString encodes the out-of-band pairing payload.
func (d *Desktop) PairingString() (string, error) {
	return pairing.Encode(d.sessionID, d.keys.PublicKey, d.relayURL)
}

// Fingerprint is the short form of our public key, for the user to compare
// with what the mobile shows.
func (d *Desktop) Fingerprint() string {
	return crypto.Fingerprint(d.keys.PublicKey.Slice())
}

// AcceptResponse completes the handshake. The returned HandshakeComplete
// must be sent to the mobile in both outcomes; the Channel is nil on failure.
func (d *Desktop) AcceptResponse(resp protocol.HandshakeResponse) (*Channel, protocol.HandshakeComplete, error) {
	fail := func(reason string, err error) (*Channel, protocol.HandshakeComplete, error) {
		return nil, protocol.NewHandshakeComplete(d.sessionID, false, reason), fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	if err := resp.Validate(); err != nil {
		return fail("invalid handshake response", err)
	}
	if resp.SessionID != d.sessionID {
		return fail("session mismatch", ErrWrongSession)
	}
	pub, err := resp.PublicKey()
	if err != nil {
		return fail("invalid public key", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.peer != nil && !crypto.ConstantTimeEqual(d.peer[:], pub[:]) {
		return fail("unexpected mobile key", fmt.Errorf("key %s does not match paired device", crypto.Fingerprint(pub[:])))
	}

	secret, err := crypto.DeriveSharedSecret(d.keys.SecretKey, pub)
	if err != nil {
		return fail("key agreement failed", err)
	}
	d.peer = &pub
	return NewChannel(d.sessionID, protocol.RoleDesktop, secret, d.opts...),
		protocol.NewHandshakeComplete(d.sessionID, true, ""), nil
}

// Close wipes the desktop secret key.
func (d *Desktop) Close() { d.keys.Wipe() }
