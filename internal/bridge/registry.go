package bridge

import (
	"errors"
	"fmt"
	"sync"

	"sigbridge/internal/domain"
)

// Handler serves one store operation.
type Handler func(p *Params) error

// Registration binds a callback ID to a handler for one kind.
type Registration struct {
	Kind    Kind
	ID      uint64
	Handler Handler
}

var (
	ErrNilHandler = errors.New("bridge: nil handler")
	ErrZeroID     = errors.New("bridge: callback id 0 is reserved")
	ErrBadKind    = errors.New("bridge: invalid callback kind")
)

// UnknownCallbackError is returned by Resolve for an ID with no registration.
type UnknownCallbackError struct {
	ID uint64
}

func (e *UnknownCallbackError) Error() string {
	return fmt.Sprintf("bridge: no handler registered for callback id %d", e.ID)
}

// Is makes UnknownCallbackError match domain.ErrUnknownCallback.
func (e *UnknownCallbackError) Is(target error) bool { return target == domain.ErrUnknownCallback }

// Registry maps callback IDs to handlers. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	regs map[uint64]Registration
}

// DefaultRegistry is the process-wide registry. Adapters populate it when
// constructed and remove their entries on Close; nothing resets it implicitly.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty, isolated registry.
func NewRegistry() *Registry {
	return &Registry{regs: make(map[uint64]Registration)}
}

// Register stores h under id, replacing any previous registration wholesale.
func (r *Registry) Register(kind Kind, id uint64, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	if id == 0 {
		return ErrZeroID
	}
	if kind.Family() == FamilyInvalid {
		return fmt.Errorf("%w: %d", ErrBadKind, kind)
	}
	r.mu.Lock()
	r.regs[id] = Registration{Kind: kind, ID: id, Handler: h}
	r.mu.Unlock()
	return nil
}

// Resolve returns the current registration for id.
func (r *Registry) Resolve(id uint64) (Registration, error) {
	r.mu.RLock()
	reg, ok := r.regs[id]
	r.mu.RUnlock()
	if !ok {
		return Registration{}, &UnknownCallbackError{ID: id}
	}
	return reg, nil
}

// Unregister removes id. Unknown ids are ignored.
func (r *Registry) Unregister(id uint64) {
	r.mu.Lock()
	delete(r.regs, id)
	r.mu.Unlock()
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regs)
}
