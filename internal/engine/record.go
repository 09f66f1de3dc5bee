package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"sigbridge/internal/engine/ratchet"
)

const recordVersion = 1

type pendingPreKey struct {
	PreKeyID       *uint32 `json:"pk,omitempty"`
	SignedPreKeyID uint32  `json:"spk"`
	BaseKey        []byte  `json:"base"`
}

type sessionRecord struct {
	Version              int            `json:"v"`
	Initiator            bool           `json:"initiator"`
	LocalIdentity        []byte         `json:"local_id"`
	RemoteIdentity       []byte         `json:"remote_id"`
	LocalRegistrationID  uint32         `json:"local_reg"`
	RemoteRegistrationID uint32         `json:"remote_reg"`
	BaseKey              []byte         `json:"base"`
	Pending              *pendingPreKey `json:"pending,omitempty"`
	Ratchet              ratchet.State  `json:"ratchet"`
}

// SessionInfo is what a caller may learn about a session record without
// touching its key material.
type SessionInfo struct {
	Initiator            bool
	AwaitingReply        bool
	RemoteIdentity       []byte
	RemoteRegistrationID uint32
}

// ReadSessionRecord returns the public facts held in a session record.
func ReadSessionRecord(record []byte) (SessionInfo, error) {
	r, err := parseRecord(record)
	if err != nil {
		return SessionInfo{}, err
	}
	return SessionInfo{
		Initiator:            r.Initiator,
		AwaitingReply:        r.Pending != nil,
		RemoteIdentity:       r.RemoteIdentity,
		RemoteRegistrationID: r.RemoteRegistrationID,
	}, nil
}

func parseRecord(record []byte) (*sessionRecord, error) {
	var r sessionRecord
	if err := json.Unmarshal(record, &r); err != nil {
		return nil, fmt.Errorf("%w: session record: %v", ErrInvalidKey, err)
	}
	if r.Version != recordVersion {
		return nil, fmt.Errorf("%w: session record version %d", ErrInvalidKey, r.Version)
	}
	return &r, nil
}

func (r *sessionRecord) serialize() ([]byte, error) { return json.Marshal(r) }

// associatedData is initiator identity then responder identity.
func (r *sessionRecord) associatedData() []byte {
	if r.Initiator {
		return append(append([]byte(nil), r.LocalIdentity...), r.RemoteIdentity...)
	}
	return append(append([]byte(nil), r.RemoteIdentity...), r.LocalIdentity...)
}

func (r *sessionRecord) hasBaseKey(base []byte) bool {
	return !r.Initiator && bytes.Equal(r.BaseKey, base)
}
