package protocol

import (
	"encoding/json"
	"fmt"
)

// Parse decodes any message variant by its discriminator and validates it.
func Parse(data []byte) (Message, error) {
	t, err := peekType(data)
	if err != nil {
		return nil, err
	}
	var m Message
	switch t {
	case TypeHandshakeInit:
		m, err = decode[HandshakeInit](data)
	case TypeHandshakeResponse:
		m, err = decode[HandshakeResponse](data)
	case TypeHandshakeComplete:
		m, err = decode[HandshakeComplete](data)
	case TypeEncrypted:
		m, err = decode[EncryptedEnvelope](data)
	case TypeCommand:
		m, err = decode[Command](data)
	case TypeEvent:
		m, err = decode[Event](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ParseRelayed accepts only what may legitimately arrive through the relay:
// a handshake response or complete, or an encrypted envelope.
func ParseRelayed(data []byte) (Message, error) {
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	switch m.MessageType() {
	case TypeHandshakeResponse, TypeHandshakeComplete, TypeEncrypted:
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q is not valid through the relay", ErrUnknownType, m.MessageType())
}

// ParseApplication accepts only decrypted envelope plaintext: a command or
// an event.
func ParseApplication(data []byte) (Message, error) {
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	switch m.MessageType() {
	case TypeCommand, TypeEvent:
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q is not an application message", ErrUnknownType, m.MessageType())
}

// Encode validates m and returns its JSON form.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func peekType(data []byte) (Type, error) {
	var head struct {
		Type *Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", invalidf("malformed json: %v", err)
	}
	if head.Type == nil || *head.Type == "" {
		return "", invalidf("type is required")
	}
	return *head.Type, nil
}

func decode[T Message](data []byte) (T, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return m, invalidf("malformed json: %v", err)
	}
	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}
