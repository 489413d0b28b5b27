package artifact

import (
	"os"
	"path/filepath"
)

// LocalStore implements Store on the local file system under a root
// directory. Writes go through a temp file and rename so a crashed run never
// leaves a truncated artifact behind.
type LocalStore struct {
	root        string
	compression Compression
}

// NewLocalStore creates a LocalStore rooted at the given directory.
func NewLocalStore(root string, compression Compression) *LocalStore {
	return &LocalStore{root: root, compression: compression}
}

// Put stores data under name, creating parent directories as needed.
func (s *LocalStore) Put(name string, data []byte) error {
	encoded, err := compress(data, s.compression)
	if err != nil {
		return err
	}

	path := filepath.Join(s.root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// Get retrieves the blob stored under name.
func (s *LocalStore) Get(name string) ([]byte, error) {
	encoded, err := os.ReadFile(filepath.Join(s.root, name))
	if err != nil {
		return nil, err
	}

	return decompress(encoded, s.compression)
}
