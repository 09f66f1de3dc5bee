package protocol

import (
	"errors"

	"sigbridge/internal/domain"
	"sigbridge/internal/engine"
	"sigbridge/internal/keys"
	"sigbridge/internal/session"
)

// translate classifies err into the domain taxonomy. fallback is used when
// nothing more specific is recognised.
func translate(op string, peer domain.Address, err error, fallback error) error {
	if err == nil {
		return nil
	}
	var pe *domain.ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	return &domain.ProtocolError{Op: op, Peer: peer, Kind: classify(err, fallback), Err: err}
}

func classify(err error, fallback error) error {
	switch {
	case errors.Is(err, domain.ErrStoreFailure):
		return domain.ErrStoreFailure
	case errors.Is(err, domain.ErrUnknownCallback):
		return domain.ErrUnknownCallback
	case errors.Is(err, engine.ErrUntrustedIdentity), errors.Is(err, domain.ErrUntrustedIdentity):
		return domain.ErrUntrustedIdentity
	case errors.Is(err, engine.ErrNoSession), errors.Is(err, domain.ErrNoSession):
		return domain.ErrNoSession
	case errors.Is(err, engine.ErrInvalidPreKeyID), errors.Is(err, domain.ErrPreKeyExhausted):
		return domain.ErrPreKeyExhausted
	case errors.Is(err, engine.ErrInvalidSignature),
		errors.Is(err, engine.ErrInvalidKey),
		errors.Is(err, engine.ErrInvalidSignedPreKeyID),
		errors.Is(err, keys.ErrNoSignedPreKey),
		errors.Is(err, domain.ErrHandshakeFailure):
		return domain.ErrHandshakeFailure
	case errors.Is(err, engine.ErrInvalidMessage),
		errors.Is(err, engine.ErrDuplicateMessage),
		errors.Is(err, engine.ErrTooManySkipped):
		return domain.ErrRatchetFailure
	}

	var cbe *engine.CallbackError
	if errors.As(err, &cbe) {
		switch cbe.Status {
		case engine.StatusUnknownCallback, engine.StatusInvalidArgument:
			return domain.ErrUnknownCallback
		default:
			return domain.ErrStoreFailure
		}
	}
	if errors.Is(err, engine.ErrInvalidStore) || errors.Is(err, session.ErrClosed) {
		return domain.ErrUnknownCallback
	}
	return fallback
}
