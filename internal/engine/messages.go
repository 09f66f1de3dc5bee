package engine

import (
	"encoding/json"
	"fmt"

	"sigbridge/internal/engine/ratchet"
)

const messageVersion = 3

// MessageType tags a ciphertext so the receiver can choose the decrypt path.
type MessageType uint8

const (
	TypeWhisper MessageType = 2
	TypePreKey  MessageType = 3
)

// Ciphertext is an encrypted message and its type.
type Ciphertext struct {
	Type MessageType
	Body []byte
}

// WhisperMessage is an ordinary ratchet message.
type WhisperMessage struct {
	Version    int            `json:"v"`
	Header     ratchet.Header `json:"h"`
	Ciphertext []byte         `json:"ct"`
}

// PreKeyMessage carries the handshake fields in front of the first whisper
// messages of a session.
type PreKeyMessage struct {
	Version        int            `json:"v"`
	RegistrationID uint32         `json:"reg"`
	PreKeyID       *uint32        `json:"pk,omitempty"`
	SignedPreKeyID uint32         `json:"spk"`
	BaseKey        []byte         `json:"base"`
	IdentityKey    []byte         `json:"id"`
	Message        WhisperMessage `json:"msg"`
}

// ParseWhisperMessage decodes a serialized ratchet message.
func ParseWhisperMessage(body []byte) (WhisperMessage, error) {
	var m WhisperMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.check(); err != nil {
		return m, err
	}
	return m, nil
}

// Serialize encodes m.
func (m WhisperMessage) Serialize() ([]byte, error) { return json.Marshal(m) }

func (m WhisperMessage) check() error {
	if m.Version != messageVersion {
		return fmt.Errorf("%w: version %d", ErrInvalidMessage, m.Version)
	}
	if len(m.Header.DHPub) != 32 || len(m.Ciphertext) == 0 {
		return fmt.Errorf("%w: malformed whisper message", ErrInvalidMessage)
	}
	return nil
}

// ParsePreKeyMessage decodes a serialized prekey message.
func ParsePreKeyMessage(body []byte) (PreKeyMessage, error) {
	var m PreKeyMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.Version != messageVersion || len(m.BaseKey) != 32 {
		return m, fmt.Errorf("%w: malformed prekey message", ErrInvalidMessage)
	}
	if err := ValidateIdentityKey(m.IdentityKey); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Message.check(); err != nil {
		return m, err
	}
	return m, nil
}

// Serialize encodes m.
func (m PreKeyMessage) Serialize() ([]byte, error) { return json.Marshal(m) }
