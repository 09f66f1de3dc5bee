package bridge

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"sigbridge/internal/domain"
)

// CallContext is the per-invocation side channel shared by every callback
// the engine makes during one operation.
type CallContext struct {
	ID       uuid.UUID
	Peer     domain.Address
	IDs      IDSet
	Registry *Registry

	handle uint64

	mu      sync.Mutex
	removed []uint32
	lastErr error
}

// NewCallContext pins a new context. Release must be called when the engine
// call returns.
func NewCallContext(reg *Registry, ids IDSet, peer domain.Address) *CallContext {
	cc := &CallContext{ID: uuid.New(), Peer: peer, IDs: ids, Registry: reg}
	cc.handle = pins.pin(cc)
	return cc
}

// Handle is the scalar the engine carries as its vtable Ctx.
func (c *CallContext) Handle() uintptr { return uintptr(c.handle) }

// Release unpins c. Further callbacks carrying its handle fail.
func (c *CallContext) Release() {
	if c.handle != 0 {
		pins.unpin(c.handle)
		c.handle = 0
	}
}

// StagePreKeyRemoval records a one-time prekey the engine asked to remove.
func (c *CallContext) StagePreKeyRemoval(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.removed, id) {
		c.removed = append(c.removed, id)
	}
}

// RemovedPreKeys returns the staged prekey ids.
func (c *CallContext) RemovedPreKeys() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.removed)
}

// Err returns the last error a handler reported during this call.
func (c *CallContext) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *CallContext) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func lookupCall(ctx uintptr) (*CallContext, bool) {
	v, ok := pins.get(uint64(ctx))
	if !ok {
		return nil, false
	}
	cc, ok := v.(*CallContext)
	return cc, ok
}
