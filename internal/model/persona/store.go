package persona

import "sync"

// Store exposes persona retrieval.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the persona list.
func (s *MemoryStore) List() []Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// Replace swaps the whole persona set.
func (s *MemoryStore) Replace(items []Persona) {
	s.mu.Lock()
	s.items = append([]Persona(nil), items...)
	s.mu.Unlock()
}

// Resolve returns the persona with id, falling back to the first available
// persona and finally to the built-in seed.
func Resolve(store Store, id string) Persona {
	if store != nil {
		if p, ok := store.FindByID(id); ok {
			return p
		}
		if items := store.List(); len(items) > 0 {
			return items[0]
		}
	}
	return Seed()[0]
}
