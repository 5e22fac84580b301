package endpoint

import (
	"fmt"
	"sync"
	"time"

	"tether/internal/crypto"
	"tether/internal/protocol"
)

// Channel is the encrypted link between two paired endpoints. It is safe for
// concurrent use.
type Channel struct {
	sessionID string
	role      protocol.Role
	guard     *ReplayGuard
	now       func() time.Time

	mu     sync.Mutex
	secret crypto.SharedSecret
	closed bool
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithReplayGuard replaces the default replay guard.
func WithReplayGuard(g *ReplayGuard) ChannelOption {
	return func(c *Channel) { c.guard = g }
}

// WithChannelClock overrides time.Now for envelope timestamps.
func WithChannelClock(now func() time.Time) ChannelOption {
	return func(c *Channel) { c.now = now }
}

// withSharedGuard gives every channel built from one Desktop or Mobile the
// same replay guard, so a re-handshake does not reopen the replay window.
// A caller-supplied WithReplayGuard still wins.
func withSharedGuard(opts []ChannelOption) []ChannelOption {
	out := make([]ChannelOption, 0, len(opts)+1)
	out = append(out, WithReplayGuard(NewReplayGuard(ReplayConfig{})))
	return append(out, opts...)
}

// NewChannel takes ownership of secret; the caller must not reuse it.
func NewChannel(sessionID string, role protocol.Role, secret crypto.SharedSecret, opts ...ChannelOption) *Channel {
	c := &Channel{
		sessionID: sessionID,
		role:      role,
		secret:    secret,
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.guard == nil {
		c.guard = NewReplayGuard(ReplayConfig{})
	}
	return c
}

// SessionID returns the session this channel belongs to.
func (c *Channel) SessionID() string { return c.sessionID }

// Role returns our side of the channel.
func (c *Channel) Role() protocol.Role { return c.role }

// Seal encrypts plaintext into an envelope from our role.
func (c *Channel) Seal(plaintext []byte) (protocol.EncryptedEnvelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return protocol.EncryptedEnvelope{}, ErrChannelClosed
	}

	env := protocol.EncryptedEnvelope{SessionID: c.sessionID, Sender: c.role}
	ct, nonce, err := crypto.EncryptWithAD(plaintext, env.AssociatedData(), c.secret)
	if err != nil {
		return protocol.EncryptedEnvelope{}, fmt.Errorf("seal: %w", err)
	}
	return protocol.NewEncryptedEnvelope(c.sessionID, c.role, ct, nonce, c.now().UnixMilli()), nil
}

// Open authenticates and decrypts an envelope from the peer.
func (c *Channel) Open(env protocol.EncryptedEnvelope) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}
	if env.SessionID != c.sessionID {
		return nil, ErrWrongSession
	}
	if env.Sender != c.role.Other() {
		return nil, ErrReflected
	}
	ct, nonce, err := env.Sealed()
	if err != nil {
		return nil, err
	}
	if err := c.guard.Check(nonce, env.Timestamp); err != nil {
		return nil, err
	}
	pt, err := crypto.DecryptWithAD(ct, env.AssociatedData(), nonce, c.secret)
	if err != nil {
		return nil, err
	}
	c.guard.Record(nonce, env.Timestamp)
	return pt, nil
}

// SealMessage encodes an application message and seals it into the JSON
// payload string carried by a relay message frame.
func (c *Channel) SealMessage(m protocol.Message) (string, error) {
	pt, err := protocol.Encode(m)
	if err != nil {
		return "", err
	}
	defer crypto.Wipe(pt)
	env, err := c.Seal(pt)
	if err != nil {
		return "", err
	}
	b, err := protocol.Encode(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// OpenMessage decrypts an envelope and parses its application message.
func (c *Channel) OpenMessage(env protocol.EncryptedEnvelope) (protocol.Message, error) {
	pt, err := c.Open(env)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(pt)
	return protocol.ParseApplication(pt)
}

// Close wipes the shared secret. Further Seal and Open calls fail.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.secret.Wipe()
		c.closed = true
	}
}

// encodePayload renders a handshake message as a relay payload string.
func encodePayload(m protocol.Message) (string, error) {
	b, err := protocol.Encode(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
