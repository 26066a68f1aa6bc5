package profile

// Store exposes profile retrieval for HTTP handlers.
type Store interface {
	List() []Profile
	FindByID(id string) (Profile, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Profile
}

func NewMemoryStore(items []Profile) *MemoryStore {
	return &MemoryStore{items: append([]Profile(nil), items...)}
}

func (s *MemoryStore) List() []Profile {
	return append([]Profile(nil), s.items...)
}

// FindByID looks up a profile; an empty id resolves to DefaultID.
func (s *MemoryStore) FindByID(id string) (Profile, bool) {
	if id == "" {
		id = DefaultID
	}
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Profile{}, false
}
