package kv

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore — Store в памяти процесса. Используется в тестах.
type MemoryStore struct {
	namespaces map[string]*memoryNamespace
}

// NewMemoryStore создаёт пустое хранилище со всеми пространствами имён.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{namespaces: make(map[string]*memoryNamespace, len(Namespaces))}
	for _, name := range Namespaces {
		s.namespaces[name] = &memoryNamespace{name: name, values: make(map[string][]byte)}
	}
	return s
}

// Namespace возвращает пространство имён.
func (s *MemoryStore) Namespace(name string) (Namespace, error) {
	if !knownNamespace(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNamespace, name)
	}
	return s.namespaces[name], nil
}

// Ping всегда успешен.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close ничего не делает.
func (s *MemoryStore) Close() error { return nil }

type memoryNamespace struct {
	mu     sync.Mutex
	name   string
	values map[string][]byte
	order  []string
}

func (n *memoryNamespace) Name() string { return n.name }

func (n *memoryNamespace) Get(_ context.Context, key string) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	v, ok := n.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (n *memoryNamespace) Insert(_ context.Context, key string, value []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.put(key, value)
	return nil
}

func (n *memoryNamespace) UpdateAndFetch(_ context.Context, key string, fn UpdateFunc) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	updated, err := fn(clone(n.values[key]))
	if err != nil {
		return nil, err
	}
	if updated == nil {
		n.delete(key)
		return nil, nil
	}
	n.put(key, updated)
	return clone(updated), nil
}

func (n *memoryNamespace) Remove(_ context.Context, key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.delete(key)
	return nil
}

func (n *memoryNamespace) Scan(_ context.Context) ([]Entry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	entries := make([]Entry, 0, len(n.order))
	for _, key := range n.order {
		entries = append(entries, Entry{Key: key, Value: clone(n.values[key])})
	}
	return entries, nil
}

func (n *memoryNamespace) Flush(context.Context) error { return nil }

func (n *memoryNamespace) put(key string, value []byte) {
	if _, exists := n.values[key]; !exists {
		n.order = append(n.order, key)
	}
	n.values[key] = clone(value)
}

func (n *memoryNamespace) delete(key string) {
	if _, exists := n.values[key]; !exists {
		return
	}
	delete(n.values, key)
	for i, k := range n.order {
		if k == key {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
