package endpoint

import (
	"fmt"

	"tether/internal/crypto"
	"tether/internal/pairing"
	"tether/internal/protocol"
)

// Mobile is the responding side of a pairing.
type Mobile struct {
	sessionID string
	relayURL  string
	desktop   crypto.PublicKey
	keys      crypto.KeyPair
	opts      []ChannelOption
}

// NewMobile decodes a scanned pairing string and generates our key pair.
func NewMobile(pairingString string, opts ...ChannelOption) (*Mobile, error) {
	hs, err := pairing.Decode(pairingString)
	if err != nil {
		return nil, err
	}
	desktop, err := hs.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pairing.ErrInvalid, err)
	}
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Mobile{
		sessionID: hs.SessionID,
		relayURL:  hs.RelayURL,
		desktop:   desktop,
		keys:      kp,
		opts:      withSharedGuard(opts),
	}, nil
}

// RestoreMobile rebuilds a Mobile from persisted state.
func RestoreMobile(sessionID, relayURL string, keys crypto.KeyPair, desktop crypto.PublicKey, opts ...ChannelOption) *Mobile {
	return &Mobile{sessionID: sessionID, relayURL: relayURL, desktop: desktop, keys: keys, opts: withSharedGuard(opts)}
}

func (m *Mobile) SessionID() string                  { return m.sessionID }
func (m *Mobile) RelayURL() string                   { return m.relayURL }
func (m *Mobile) Role() protocol.Role                { return protocol.RoleMobile }
func (m *Mobile) KeyPair() crypto.KeyPair            { return m.keys }
func (m *Mobile) DesktopPublicKey() crypto.PublicKey { return m.desktop }

// DesktopFingerprint is the fingerprint the desktop displays.
func (m *Mobile) DesktopFingerprint() string {
	return crypto.Fingerprint(m.desktop.Slice())
}

// Response is the message announcing our public key to the desktop.
func (m *Mobile) Response() protocol.HandshakeResponse {
	return protocol.NewHandshakeResponse(m.sessionID, m.keys.PublicKey)
}

// Complete finishes the handshake from the desktop's confirmation.
func (m *Mobile) Complete(c protocol.HandshakeComplete) (*Channel, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if c.SessionID != m.sessionID {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, ErrWrongSession)
	}
	if !c.Success {
		return nil, fmt.Errorf("%w: rejected by desktop: %s", ErrHandshake, c.Error)
	}
	secret, err := crypto.DeriveSharedSecret(m.keys.SecretKey, m.desktop)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return NewChannel(m.sessionID, protocol.RoleMobile, secret, m.opts...), nil
}

// Close wipes the mobile secret key.
func (m *Mobile) Close() { m.keys.Wipe() }
