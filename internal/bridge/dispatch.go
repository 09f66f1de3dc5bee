package bridge

import (
	"errors"
	"fmt"

	"sigbridge/internal/domain"
	"sigbridge/internal/engine"
)

// PanicError wraps a handler panic recovered at the dispatch boundary.
type PanicError struct {
	Kind  Kind
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("bridge: %s handler panicked: %v", e.Kind, e.Value)
}

// DispatchSession is the fixed thunk for the session family.
func DispatchSession(arg uint64) int32 { return dispatch(FamilySession, arg) }

// DispatchIdentity is the fixed thunk for the identity family.
func DispatchIdentity(arg uint64) int32 { return dispatch(FamilyIdentity, arg) }

// DispatchPreKey is the fixed thunk for the one-time prekey family.
func DispatchPreKey(arg uint64) int32 { return dispatch(FamilyPreKey, arg) }

// DispatchSignedPreKey is the fixed thunk for the signed prekey family.
func DispatchSignedPreKey(arg uint64) int32 { return dispatch(FamilySignedPreKey, arg) }

var thunks = [...]func(uint64) int32{
	FamilySession:      DispatchSession,
	FamilyIdentity:     DispatchIdentity,
	FamilyPreKey:       DispatchPreKey,
	FamilySignedPreKey: DispatchSignedPreKey,
}

// Dispatch runs p through the thunk for its kind's family, exactly as an
// engine callback would.
func Dispatch(p *Params) engine.Status {
	f := p.Kind.Family()
	if f == FamilyInvalid {
		return engine.StatusInvalidArgument
	}
	h := pins.pin(p)
	defer pins.unpin(h)
	return engine.Status(thunks[f](h))
}

func dispatch(f Family, arg uint64) (status int32) {
	v, ok := pins.get(arg)
	if !ok {
		return int32(engine.StatusInvalidArgument)
	}
	p, ok := v.(*Params)
	if !ok || p.Kind.Family() != f {
		return int32(engine.StatusInvalidArgument)
	}

	reg, err := p.registry().Resolve(p.CallbackID)
	if err != nil {
		p.fail(err)
		return int32(engine.StatusUnknownCallback)
	}
	if reg.Kind != p.Kind {
		p.fail(fmt.Errorf("%w: id %d is registered for %s, not %s",
			domain.ErrUnknownCallback, p.CallbackID, reg.Kind, p.Kind))
		return int32(engine.StatusUnknownCallback)
	}

	defer func() {
		if r := recover(); r != nil {
			p.fail(&PanicError{Kind: p.Kind, Value: r})
			status = int32(engine.StatusPanic)
		}
	}()
	if err := reg.Handler(p); err != nil {
		p.fail(err)
		return int32(StatusFor(err))
	}
	return int32(engine.StatusOK)
}

// StatusFor maps a handler error to the status the engine sees.
func StatusFor(err error) engine.Status {
	switch {
	case err == nil:
		return engine.StatusOK
	case errors.Is(err, domain.ErrStoreFailure):
		return engine.StatusStoreFailure
	case errors.Is(err, domain.ErrUnknownCallback):
		return engine.StatusUnknownCallback
	default:
		return engine.StatusError
	}
}

func (p *Params) fail(err error) {
	if p.Call != nil {
		p.Call.setErr(err)
	}
}
