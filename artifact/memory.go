package artifact

import (
	"fmt"
	"slices"
)

// MemoryStore implements Store in memory. Intended for tests.
type MemoryStore struct {
	blobs map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under name.
func (s *MemoryStore) Put(name string, data []byte) error {
	s.blobs[name] = slices.Clone(data)
	return nil
}

// Get retrieves the blob stored under name.
func (s *MemoryStore) Get(name string) ([]byte, error) {
	data, ok := s.blobs[name]
	if !ok {
		return nil, fmt.Errorf("artifact %q: %w", name, ErrNotFound)
	}

	return slices.Clone(data), nil
}

// Names returns the stored artifact names.
func (s *MemoryStore) Names() []string {
	names := make([]string, 0, len(s.blobs))
	for name := range s.blobs {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
