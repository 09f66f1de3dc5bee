package bridge

import "sync"

// pinTable hands out scalar handles for live Go values so they can cross a
// boundary that only carries integers. Handle 0 is never issued.
type pinTable struct {
	mu    sync.Mutex
	next  uint64
	items map[uint64]any
}

var pins = &pinTable{items: make(map[uint64]any)}

func (t *pinTable) pin(v any) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	if t.next == 0 {
		t.next = 1
	}
	t.items[t.next] = v
	return t.next
}

func (t *pinTable) get(h uint64) (any, bool) {
	t.mu.Lock()
	v, ok := t.items[h]
	t.mu.Unlock()
	return v, ok
}

func (t *pinTable) unpin(h uint64) {
	t.mu.Lock()
	delete(t.items, h)
	t.mu.Unlock()
}

func (t *pinTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
