package types

import "time"

// SessionStatus is the lifecycle state of the session with one peer.
type SessionStatus uint8

const (
	SessionAbsent SessionStatus = iota
	SessionPending
	SessionEstablished
)

// String returns the status name.
func (s SessionStatus) String() string {
	switch s {
	case SessionPending:
		return "pending"
	case SessionEstablished:
		return "established"
	default:
		return "absent"
	}
}

// SessionInfo is the metadata kept next to an opaque session record.
type SessionInfo struct {
	Peer      Address       `json:"peer"`
	Status    SessionStatus `json:"status"`
	Epoch     uint64        `json:"epoch"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
