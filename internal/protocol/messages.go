package protocol

import (
	"encoding/json"
	"fmt"

	"tether/internal/crypto"
)

// Type is the discriminator carried by every message.
type Type string

const (
	TypeHandshakeInit     Type = "handshake_init"
	TypeHandshakeResponse Type = "handshake_response"
	TypeHandshakeComplete Type = "handshake_complete"
	TypeEncrypted         Type = "encrypted"
	TypeCommand           Type = "command"
	TypeEvent             Type = "event"
)

// Message is implemented by every message variant.
type Message interface {
	MessageType() Type
	Validate() error
}

// HandshakeInit is the out-of-band pairing message. It never travels through
// the relay.
type HandshakeInit struct {
	Type             Type   `json:"type" validate:"eq=handshake_init"`
	SessionID        string `json:"sessionId" validate:"required,sessionid"`
	DesktopPublicKey string `json:"desktopPublicKey" validate:"required,key32"`
	RelayURL         string `json:"relayUrl" validate:"required,relayurl"`
	Version          string `json:"version" validate:"required"`
}

// NewHandshakeInit builds a HandshakeInit from raw key material.
func NewHandshakeInit(sessionID string, desktop crypto.PublicKey, relayURL, version string) HandshakeInit {
	return HandshakeInit{
		Type:             TypeHandshakeInit,
		SessionID:        sessionID,
		DesktopPublicKey: crypto.B64(desktop[:]),
		RelayURL:         relayURL,
		Version:          version,
	}
}

func (m HandshakeInit) MessageType() Type { return TypeHandshakeInit }

func (m HandshakeInit) Validate() error { return check(m) }

// PublicKey decodes the desktop public key.
func (m HandshakeInit) PublicKey() (crypto.PublicKey, error) {
	return decodeKey(m.DesktopPublicKey)
}

// HandshakeResponse carries the mobile public key to the desktop.
type HandshakeResponse struct {
	Type            Type   `json:"type" validate:"eq=handshake_response"`
	SessionID       string `json:"sessionId" validate:"required,sessionid"`
	MobilePublicKey string `json:"mobilePublicKey" validate:"required,key32"`
}

// NewHandshakeResponse builds a HandshakeResponse.
func NewHandshakeResponse(sessionID string, mobile crypto.PublicKey) HandshakeResponse {
	return HandshakeResponse{
		Type:            TypeHandshakeResponse,
		SessionID:       sessionID,
		MobilePublicKey: crypto.B64(mobile[:]),
	}
}

func (m HandshakeResponse) MessageType() Type { return TypeHandshakeResponse }

func (m HandshakeResponse) Validate() error { return check(m) }

// PublicKey decodes the mobile public key.
func (m HandshakeResponse) PublicKey() (crypto.PublicKey, error) {
	return decodeKey(m.MobilePublicKey)
}

// HandshakeComplete confirms the handshake outcome to the mobile side.
type HandshakeComplete struct {
	Type      Type   `json:"type" validate:"eq=handshake_complete"`
	SessionID string `json:"sessionId" validate:"required,sessionid"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`

	hasSuccess bool
}

// NewHandshakeComplete builds a HandshakeComplete.
func NewHandshakeComplete(sessionID string, success bool, reason string) HandshakeComplete {
	return HandshakeComplete{
		Type:       TypeHandshakeComplete,
		SessionID:  sessionID,
		Success:    success,
		Error:      reason,
		hasSuccess: true,
	}
}

func (m HandshakeComplete) MessageType() Type { return TypeHandshakeComplete }

func (m HandshakeComplete) Validate() error {
	if !m.hasSuccess {
		return invalidf("success is required")
	}
	return check(m)
}

// UnmarshalJSON records whether "success" was present, since false is a
// meaningful value.
func (m *HandshakeComplete) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      Type   `json:"type"`
		SessionID string `json:"sessionId"`
		Success   *bool  `json:"success"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = HandshakeComplete{Type: raw.Type, SessionID: raw.SessionID, Error: raw.Error}
	if raw.Success != nil {
		m.Success = *raw.Success
		m.hasSuccess = true
	}
	return nil
}

// EncryptedEnvelope is the relay-routable wrapper around application
// plaintext. The relay may look at SessionID and Sender, never at the body.
type EncryptedEnvelope struct {
	Type       Type   `json:"type" validate:"eq=encrypted"`
	SessionID  string `json:"sessionId" validate:"required,sessionid"`
	Sender     Role   `json:"sender" validate:"required,role"`
	Ciphertext string `json:"ciphertext" validate:"required,base64"`
	Nonce      string `json:"nonce" validate:"required,nonce24"`
	Timestamp  int64  `json:"timestamp" validate:"gt=0"`
}

// NewEncryptedEnvelope builds an envelope from sealed bytes.
func NewEncryptedEnvelope(sessionID string, sender Role, ciphertext []byte, nonce crypto.Nonce, timestamp int64) EncryptedEnvelope {
	return EncryptedEnvelope{
		Type:       TypeEncrypted,
		SessionID:  sessionID,
		Sender:     sender,
		Ciphertext: crypto.B64(ciphertext),
		Nonce:      crypto.B64(nonce[:]),
		Timestamp:  timestamp,
	}
}

func (m EncryptedEnvelope) MessageType() Type { return TypeEncrypted }

func (m EncryptedEnvelope) Validate() error { return check(m) }

// Sealed decodes the ciphertext and nonce.
func (m EncryptedEnvelope) Sealed() ([]byte, crypto.Nonce, error) {
	ct, err := crypto.FromB64(m.Ciphertext)
	if err != nil {
		return nil, crypto.Nonce{}, invalidf("ciphertext: %v", err)
	}
	nb, err := crypto.FromB64(m.Nonce)
	if err != nil {
		return nil, crypto.Nonce{}, invalidf("nonce: %v", err)
	}
	nonce, err := crypto.NonceFromBytes(nb)
	if err != nil {
		return nil, crypto.Nonce{}, invalidf("%v", err)
	}
	return ct, nonce, nil
}

// AssociatedData is the routing context bound into the envelope AEAD.
func (m EncryptedEnvelope) AssociatedData() []byte {
	return []byte(fmt.Sprintf("%s|%s", m.SessionID, m.Sender))
}

func decodeKey(s string) (crypto.PublicKey, error) {
	b, err := crypto.FromB64(s)
	if err != nil {
		return crypto.PublicKey{}, invalidf("public key: %v", err)
	}
	pk, err := crypto.PublicKeyFromBytes(b)
	if err != nil {
		return crypto.PublicKey{}, invalidf("%v", err)
	}
	return pk, nil
}
