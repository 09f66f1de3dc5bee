package bridge

import (
	"sigbridge/internal/domain"
)

// Params is the single argument bundle for one store callback. The shim fills
// the input fields for Kind; the handler fills the Out fields it owns.
type Params struct {
	Kind       Kind
	CallbackID uint64
	Call       *CallContext

	// Inputs.
	Address   domain.Address
	ID        uint32
	Record    []byte
	Key       []byte
	Direction domain.Direction

	// Outputs.
	OutRecord         []byte
	OutPublic         []byte
	OutPrivate        []byte
	OutRegistrationID uint32
	OutBool           bool
}

func (p *Params) registry() *Registry {
	if p.Call != nil && p.Call.Registry != nil {
		return p.Call.Registry
	}
	return DefaultRegistry
}
