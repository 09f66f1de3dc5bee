package types

import "fmt"

// MessageType tags a ciphertext so the receiver picks the right decrypt path.
type MessageType uint8

const (
	// MessageWhisper is an ordinary ratchet message.
	MessageWhisper MessageType = 2
	// MessagePreKey carries the handshake fields needed to open a session.
	MessagePreKey MessageType = 3
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageWhisper:
		return "whisper"
	case MessagePreKey:
		return "prekey"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// CipherMessage is the tagged ciphertext handed to the application.
type CipherMessage struct {
	Type MessageType `json:"type"`
	Body []byte      `json:"body"`
}
