package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced at the ProtocolService boundary.
var (
	// ErrUnknownCallback means a dispatch ID has no registered handler.
	ErrUnknownCallback = errors.New("unknown callback")
	// ErrStoreFailure is a persistence read/write failure from a collaborator.
	ErrStoreFailure = errors.New("store failure")
	// ErrHandshakeFailure covers invalid or expired bundles and bad signatures.
	ErrHandshakeFailure = errors.New("handshake failure")
	// ErrRatchetFailure is a rejected message; session state is untouched.
	ErrRatchetFailure = errors.New("ratchet failure")
	// ErrPreKeyExhausted means the referenced one-time prekey is not available.
	ErrPreKeyExhausted = errors.New("one-time prekey exhausted")
	// ErrNoSession means there is no session with the peer and none could be started.
	ErrNoSession = errors.New("no session with peer")
	// ErrUntrustedIdentity means the peer presented a different identity key.
	ErrUntrustedIdentity = fmt.Errorf("%w: untrusted identity", ErrHandshakeFailure)
)

// ProtocolError is returned by the protocol service. errors.Is matches both
// Kind and the wrapped cause.
type ProtocolError struct {
	Op   string
	Peer Address
	Kind error
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Peer.IsZero() {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Peer, e.Kind, e.Err)
}

// Unwrap exposes both the taxonomy kind and the cause.
func (e *ProtocolError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Retryable reports whether repeating the call unchanged may succeed.
// Decrypt failures need a resync instead.
func (e *ProtocolError) Retryable() bool {
	return errors.Is(e.Kind, ErrStoreFailure)
}
