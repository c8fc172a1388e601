package location

import (
	"bytes"
	"sync"
)

// Mapping is the target of a registered id.
type Mapping struct {
	// Path is the real location the id stands for. Empty for in-memory
	// mappings.
	Path string

	// Data is the in-memory content the id stands for.
	Data []byte
}

// InMemory reports whether the mapping holds content rather than a path.
func (m Mapping) InMemory() bool {
	return m.Path == ""
}

// Registry maps virtual ids to real paths or in-memory content.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Mapping
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Mapping)}
}

// MapID makes id resolve to path.
func (r *Registry) MapID(id, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = Mapping{Path: path}
}

// MapBytes makes id resolve to a copy of data.
func (r *Registry) MapBytes(id string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if data == nil {
		data = []byte{}
	}
	r.entries[id] = Mapping{Data: bytes.Clone(data)}
}

// Unmap removes id.
func (r *Registry) Unmap(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Lookup returns the mapping for id.
func (r *Registry) Lookup(id string) (Mapping, bool) {
	if r == nil {
		return Mapping{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.entries[id]
	return m, ok
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
