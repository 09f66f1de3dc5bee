package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature      = errors.New("engine: invalid signed prekey signature")
	ErrInvalidKey            = errors.New("engine: invalid key")
	ErrUntrustedIdentity     = errors.New("engine: untrusted identity")
	ErrInvalidMessage        = errors.New("engine: invalid message")
	ErrDuplicateMessage      = errors.New("engine: duplicate message")
	ErrTooManySkipped        = errors.New("engine: too many skipped messages")
	ErrInvalidPreKeyID       = errors.New("engine: invalid prekey id")
	ErrInvalidSignedPreKeyID = errors.New("engine: invalid signed prekey id")
	ErrNoSession             = errors.New("engine: no session")
	ErrInvalidStore          = errors.New("engine: incomplete store vtable")
)

// CallbackError reports a store callback that returned a non-OK status.
type CallbackError struct {
	Op     string
	Status Status
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("engine: %s callback failed with status %d", e.Op, e.Status)
}
