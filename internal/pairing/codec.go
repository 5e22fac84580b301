package pairing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"tether/internal/crypto"
	"tether/internal/protocol"
)

const (
	// Version is stamped into every payload this package produces.
	Version = "1"
	// MaxEncodedLen is the largest payload Encode will produce.
	MaxEncodedLen = 500
)

var (
	// ErrInvalid wraps every decode failure.
	ErrInvalid = errors.New("pairing: invalid payload")
	// ErrUnsupportedVersion is returned for a version this build cannot read.
	ErrUnsupportedVersion = errors.New("pairing: unsupported version")
	// ErrTooLarge is returned when the encoded payload exceeds MaxEncodedLen.
	ErrTooLarge = errors.New("pairing: payload too large")
)

// payload is the compact wire form.
type payload struct {
	V string `json:"v"`
	S string `json:"s"`
	K string `json:"k"`
	R string `json:"r"`
}

// IsVersionSupported reports whether v can be decoded by this build.
func IsVersionSupported(v string) bool {
	return v == Version
}

// Encode serialises a pairing payload and enforces MaxEncodedLen.
func Encode(sessionID string, desktopPublicKey crypto.PublicKey, relayURL string) (string, error) {
	msg := protocol.NewHandshakeInit(sessionID, desktopPublicKey, relayURL, Version)
	if err := msg.Validate(); err != nil {
		return "", fmt.Errorf("pairing: encode: %w", err)
	}
	b, err := json.Marshal(payload{
		V: Version,
		S: msg.SessionID,
		K: msg.DesktopPublicKey,
		R: msg.RelayURL,
	})
	if err != nil {
		return "", err
	}
	if len(b) > MaxEncodedLen {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(b), MaxEncodedLen)
	}
	return string(b), nil
}

// Decode parses a scanned payload into a validated HandshakeInit. Callers
// must not use any part of the result when err is non-nil.
func Decode(s string) (protocol.HandshakeInit, error) {
	s = strings.TrimSpace(s)

	// The version gates every other field, so it is read before the strict
	// pass: a newer payload with extra fields reports as unsupported.
	var head struct {
		V *string `json:"v"`
	}
	if err := json.Unmarshal([]byte(s), &head); err != nil {
		return protocol.HandshakeInit{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if head.V == nil || *head.V == "" {
		return protocol.HandshakeInit{}, fmt.Errorf("%w: missing version", ErrInvalid)
	}
	if !IsVersionSupported(*head.V) {
		return protocol.HandshakeInit{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, *head.V)
	}

	dec := json.NewDecoder(strings.NewReader(s))
	dec.DisallowUnknownFields()

	var p payload
	if err := dec.Decode(&p); err != nil {
		return protocol.HandshakeInit{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return protocol.HandshakeInit{}, fmt.Errorf("%w: trailing data", ErrInvalid)
	}

	msg := protocol.HandshakeInit{
		Type:             protocol.TypeHandshakeInit,
		SessionID:        p.S,
		DesktopPublicKey: p.K,
		RelayURL:         p.R,
		Version:          p.V,
	}
	if err := msg.Validate(); err != nil {
		return protocol.HandshakeInit{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return msg, nil
}

// Compact strips insignificant whitespace, for payloads pasted by hand.
func Compact(s string) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(strings.TrimSpace(s))); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return buf.String(), nil
}
