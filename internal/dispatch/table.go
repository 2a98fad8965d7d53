package dispatch

import (
	"fmt"
	"sort"
	"sync"
)

// Table maps provider names to callables for one capability.
type Table[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

func NewTable[T any]() *Table[T] {
	return &Table[T]{entries: make(map[string]T)}
}

// Register panics on duplicates: the tables are built once at startup and
// a duplicate is a wiring bug.
func (t *Table[T]) Register(name string, fn T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[name]; ok {
		panic(fmt.Sprintf("dispatch: provider %q registered twice", name))
	}
	t.entries[name] = fn
}

func (t *Table[T]) Lookup(name string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.entries[name]
	return fn, ok
}

func (t *Table[T]) Has(name string) bool {
	_, ok := t.Lookup(name)
	return ok
}

// Names returns the registered provider names, sorted.
func (t *Table[T]) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
