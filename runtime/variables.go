package runtime

import (
	"maps"
	"sync"

	"github.com/BDNK1/autoflow/runtime/expression"
)

// VariableBag is the mutable variable namespace of a run. Writes are never
// rolled back. It is safe for concurrent readers such as progress snapshots.
type VariableBag struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewVariableBag(initial map[string]any) *VariableBag {
	values := make(map[string]any, len(initial))
	maps.Copy(values, initial)
	return &VariableBag{values: values}
}

func (b *VariableBag) Set(key string, value any) {
	b.mu.Lock()
	b.values[key] = value
	b.mu.Unlock()
}

// Get resolves key exactly, then as a dotted path into nested values.
func (b *VariableBag) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return expression.Lookup(b.values, key)
}

// All returns a shallow copy of the bag.
func (b *VariableBag) All() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.values)
}
